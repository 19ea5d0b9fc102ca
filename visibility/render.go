package visibility

import (
	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/utils"
)

// RenderResult represents the result of rendering a message.
type RenderResult struct {
	Visible      bool   `json:"visible"`           // Whether the message is shown at all
	Value        string `json:"value"`             // The text to display (may be replaced)
	IsReplaced   bool   `json:"is_replaced"`       // Whether the text was replaced
	OriginalHash string `json:"original_hash"`     // Fingerprint of the original text
	Message      string `json:"message,omitempty"` // Optional notice (e.g., "Under review")
}

// Renderer renders messages according to their visibility.
type Renderer struct {
	replacements map[string]string
}

// NewRenderer creates a new renderer.
func NewRenderer() *Renderer {
	return &Renderer{
		replacements: map[string]string{
			"message": "[message removed]",
			"comment": "[comment removed]",
			"post":    "This content was removed for violating community rules",
		},
	}
}

// SetReplacement sets the replacement text for a content type.
func (r *Renderer) SetReplacement(contentType, value string) {
	r.replacements[contentType] = value
}

// RenderContext provides context for rendering.
type RenderContext struct {
	ContentType string
	AuthorID    string
	ViewerID    string
	Admin       bool
}

// Render renders text in state for the viewer described by ctx.
func (r *Renderer) Render(ctx RenderContext, text string, state State) RenderResult {
	viewer := RoleOf(ctx.ViewerID, ctx.AuthorID, ctx.Admin)
	policy := GetPolicy(ctx.ContentType)
	hash := utils.HashText(text)

	if !CanView(policy, state, viewer) {
		if state.Shadowed {
			return RenderResult{} // no notice for shadowed content
		}
		return RenderResult{Message: r.blockedMessage(state)}
	}

	if state.Review == modguard.QueueRejected && viewer != ViewerAdmin {
		value, ok := r.replacements[ctx.ContentType]
		if !ok {
			value = MaskValue(text)
		}
		return RenderResult{
			Visible:      true,
			Value:        value,
			IsReplaced:   true,
			OriginalHash: hash,
		}
	}

	result := RenderResult{Visible: true, Value: text, OriginalHash: hash}
	if state.Review == modguard.QueuePending && viewer != ViewerPublic {
		result.Message = "Under review"
	}
	return result
}

func (r *Renderer) blockedMessage(state State) string {
	if state.Review == modguard.QueueRejected {
		return "Content unavailable"
	}
	return "Content under review"
}

// MaskValue keeps the first and last rune of value and masks the rest.
func MaskValue(value string) string {
	runes := []rune(value)
	if len(runes) <= 2 {
		return "**"
	}
	for i := 1; i < len(runes)-1; i++ {
		runes[i] = '*'
	}
	return string(runes)
}
