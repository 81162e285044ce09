package normalization

import "testing"

func TestSplitHostPort(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare domain", "sub.example.com", "sub.example.com"},
		{"domain with port", "example.com:443", "example.com"},
		{"IPv4", "192.168.1.1", "192.168.1.1"},
		{"IPv4 with port", "192.168.1.1:8080", "192.168.1.1"},
		{"IPv6 brackets", "[::1]", "::1"},
		{"IPv6 with port", "[2001:db8::1]:8443", "2001:db8::1"},
		{"bare IPv6", "2001:db8::1", "2001:db8::1"},
		{"surrounding whitespace", "  example.com  ", "example.com"},
		{"bare hostname", "localhost", "localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitHostPort(tt.input)
			if got != tt.expected {
				t.Errorf("SplitHostPort(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
