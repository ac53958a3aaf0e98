package cmd

import "testing"

func TestShortID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{"full uuid", "0b39c7a2-51f3-4f6e-9d1c-8a2e4b7d6f01", "0b39c7a2"},
		{"exactly eight", "abcd1234", "abcd1234"},
		{"shorter than eight", "abc", "abc"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shortID(tt.id); got != tt.want {
				t.Errorf("shortID(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}
