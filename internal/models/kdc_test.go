package models

import "testing"

func TestKDCClass(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"004", "총류"},
		{"181.5", "철학"},
		{"594", "기술과학"},
		{"813.6", "문학"},
		{"911", "역사"},
		{"9", "역사"},
		{"", "기타"},
		{"pets", "기타"},
		{"Ⅳ", "기타"},
	}
	for _, tt := range tests {
		if got := KDCClass(tt.code); got != tt.want {
			t.Errorf("KDCClass(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
