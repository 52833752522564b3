package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxRunes 0 returns as-is")
	}
	if got := Truncate("파이썬 입문서", 3); got != "파이썬..." {
		t.Errorf("multi-byte truncate = %q", got)
	}
}

func TestDisplayWidth(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"파이썬", 6},
		{"Go 언어", 7},
		{"ＡＢ", 4},
	}
	for _, tt := range tests {
		if got := DisplayWidth(tt.in); got != tt.want {
			t.Errorf("DisplayWidth(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFitWidth(t *testing.T) {
	tests := []struct {
		in   string
		cols int
		want string
	}{
		{"abc", 5, "abc  "},
		{"abcdef", 4, "abc…"},
		{"파이썬", 6, "파이썬"},
		{"파이썬", 5, "파이…"},
		{"anything", 0, ""},
	}
	for _, tt := range tests {
		got := FitWidth(tt.in, tt.cols)
		if got != tt.want {
			t.Errorf("FitWidth(%q, %d) = %q, want %q", tt.in, tt.cols, got, tt.want)
		}
		if tt.cols > 0 && DisplayWidth(got) != tt.cols {
			t.Errorf("FitWidth(%q, %d) occupies %d columns", tt.in, tt.cols, DisplayWidth(got))
		}
	}
}
