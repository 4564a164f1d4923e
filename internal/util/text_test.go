package util

import "testing"

func TestTitleCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"banda furacão", "Banda Furacão"},
		{"BANDA DO MAR", "Banda do Mar"},
		{"forró de favela", "Forró de Favela"},
		{"são paulo", "São Paulo"},
		{"de repente", "De Repente"},
		{"  rock total  ", "Rock Total"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := TitleCase(tt.in); got != tt.want {
			t.Errorf("TitleCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
