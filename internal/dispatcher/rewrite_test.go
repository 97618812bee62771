package dispatcher

import "testing"

func TestRewriteURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sse://billing.internal/mcp", "http://billing.internal/mcp"},
		{"sses://billing.internal/mcp", "https://billing.internal/mcp"},
		{"http://billing.internal/mcp", "http://billing.internal/mcp"},
		{"https://billing.internal/mcp", "https://billing.internal/mcp"},
	}
	for _, tt := range tests {
		if got := rewriteURL(tt.in); got != tt.want {
			t.Errorf("rewriteURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
