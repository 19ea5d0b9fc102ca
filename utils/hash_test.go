package utils

import "testing"

func TestHashText(t *testing.T) {
	a := HashText("hello world")
	if a != HashText("hello world") {
		t.Error("HashText() is not stable")
	}
	if a == HashText("hello world!") {
		t.Error("HashText() collides for different input")
	}
	if a == "" {
		t.Error("HashText() returned empty string")
	}
}

func TestEventID(t *testing.T) {
	tests := []struct {
		name  string
		a, b  []string
		equal bool
	}{
		{"same parts", []string{"q1", "approved"}, []string{"q1", "approved"}, true},
		{"different parts", []string{"q1", "approved"}, []string{"q1", "rejected"}, false},
		{"no ambiguous joins", []string{"ab", "c"}, []string{"a", "bc"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EventID("queue", tt.a...) == EventID("queue", tt.b...)
			if got != tt.equal {
				t.Errorf("EventID equality = %v, want %v", got, tt.equal)
			}
		})
	}

	if EventID("queue", "x") == EventID("sanction", "x") {
		t.Error("EventID() should differ across kinds")
	}
}
