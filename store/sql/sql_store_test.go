package sql

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		dialect Dialect
		query   string
		want    string
	}{
		{DialectMySQL, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{DialectTiDB, "UPDATE t SET a = ?", "UPDATE t SET a = ?"},
		{DialectPostgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{DialectPostgres, "VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", "VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)"},
	}
	for _, tt := range tests {
		s := &Store{dialect: tt.dialect}
		if got := s.rebind(tt.query); got != tt.want {
			t.Errorf("rebind(%s) = %q, want %q", tt.dialect, got, tt.want)
		}
	}
}

func TestDriverName(t *testing.T) {
	if got := DialectPostgres.driverName(); got != "pgx" {
		t.Errorf("driverName() = %q, want pgx", got)
	}
	if got := DialectTiDB.driverName(); got != "mysql" {
		t.Errorf("driverName() = %q, want mysql", got)
	}
}

func TestLockClause(t *testing.T) {
	s := &Store{dialect: DialectMySQL}
	if got := s.lockClause(); got != "" {
		t.Errorf("lockClause() outside tx = %q, want empty", got)
	}
}

func TestIsDuplicate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"mysql other", &mysql.MySQLError{Number: 1146}, false},
		{"postgres unique", &pgconn.PgError{Code: "23505"}, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDuplicate(tt.err); got != tt.want {
				t.Errorf("isDuplicate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNullHelpers(t *testing.T) {
	if v := ptrInt64(nullInt64(nil)); v != nil {
		t.Errorf("ptrInt64(nullInt64(nil)) = %v, want nil", *v)
	}
	x := int64(42)
	if v := ptrInt64(nullInt64(&x)); v == nil || *v != 42 {
		t.Errorf("ptrInt64(nullInt64(&42)) = %v, want 42", v)
	}
	d := 60
	if v := ptrInt(nullInt(&d)); v == nil || *v != 60 {
		t.Errorf("ptrInt(nullInt(&60)) = %v, want 60", v)
	}
}
