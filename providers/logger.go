package providers

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	modguard "github.com/heibot/modguard"
)

var providerCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "modguard_provider_call_duration_seconds",
	Help:    "External validator call latency, by provider and result",
	Buckets: prometheus.DefBuckets,
}, []string{"provider", "operation", "result"})

// APILogEntry represents a single external API call.
type APILogEntry struct {
	Timestamp    time.Time      `json:"timestamp"`
	Provider     string         `json:"provider"`
	Operation    string         `json:"operation"`
	ContentID    string         `json:"content_id,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	Duration     time.Duration  `json:"duration_ms"`
	Success      bool           `json:"success"`
	StatusCode   int            `json:"status_code,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	RetryCount   int            `json:"retry_count,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// APILogger records external API calls.
type APILogger interface {
	Log(ctx context.Context, entry APILogEntry)
}

// ZapLogger writes API call entries to a zap logger and records latency.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger creates an API logger over logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

// Log records entry. Failures log at warn level.
func (l *ZapLogger) Log(ctx context.Context, entry APILogEntry) {
	result := "success"
	if !entry.Success {
		result = "error"
	}
	providerCallDuration.WithLabelValues(entry.Provider, entry.Operation, result).Observe(entry.Duration.Seconds())

	fields := []zap.Field{
		zap.String("provider", entry.Provider),
		zap.String("operation", entry.Operation),
		zap.String("content_id", entry.ContentID),
		zap.String("request_id", entry.RequestID),
		zap.Duration("duration", entry.Duration),
		zap.Int("retry_count", entry.RetryCount),
	}
	for k, v := range entry.Extra {
		fields = append(fields, zap.Any(k, v))
	}
	if entry.Success {
		l.logger.Debug("provider call", fields...)
		return
	}
	fields = append(fields,
		zap.Int("status_code", entry.StatusCode),
		zap.String("error_code", entry.ErrorCode),
		zap.String("error", entry.ErrorMessage))
	l.logger.Warn("provider call failed", fields...)
}

// NopLogger is a no-op logger that discards all logs.
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, entry APILogEntry) {}

// LogTimer is a helper for timing API calls.
type LogTimer struct {
	entry     APILogEntry
	startTime time.Time
	logger    APILogger
}

// StartLog starts timing an API call and returns a LogTimer.
func StartLog(logger APILogger, provider, operation string) *LogTimer {
	now := time.Now()
	return &LogTimer{
		entry: APILogEntry{
			Provider:  provider,
			Operation: operation,
			Timestamp: now,
		},
		startTime: now,
		logger:    logger,
	}
}

// WithContent sets the content id.
func (t *LogTimer) WithContent(contentID string) *LogTimer {
	t.entry.ContentID = contentID
	return t
}

// WithRequestID sets the provider request id.
func (t *LogTimer) WithRequestID(requestID string) *LogTimer {
	t.entry.RequestID = requestID
	return t
}

// WithRetryCount sets the retry count.
func (t *LogTimer) WithRetryCount(count int) *LogTimer {
	t.entry.RetryCount = count
	return t
}

// WithExtra adds extra metadata.
func (t *LogTimer) WithExtra(key string, value any) *LogTimer {
	if t.entry.Extra == nil {
		t.entry.Extra = make(map[string]any)
	}
	t.entry.Extra[key] = value
	return t
}

// Success logs a successful API call.
func (t *LogTimer) Success(ctx context.Context) {
	t.entry.Duration = time.Since(t.startTime)
	t.entry.Success = true
	t.logger.Log(ctx, t.entry)
}

// Error logs a failed API call.
func (t *LogTimer) Error(ctx context.Context, err error) {
	t.entry.Duration = time.Since(t.startTime)
	t.entry.Success = false

	var pe *modguard.ProviderError
	if errors.As(err, &pe) {
		t.entry.ErrorCode = pe.Code
		t.entry.ErrorMessage = pe.Message
		t.entry.StatusCode = pe.StatusCode
	} else if err != nil {
		t.entry.ErrorCode = string(modguard.GetErrorCategory(err))
		t.entry.ErrorMessage = err.Error()
	}

	t.logger.Log(ctx, t.entry)
}
