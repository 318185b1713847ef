package transport

import (
	"strings"
	"testing"
)

func TestKVAttrsRedactsToken(t *testing.T) {
	t.Parallel()

	attrs := kvAttrs([]any{
		"url", "https://openway.example.com/v1/write/tracing?token=secret",
		"error", `Post "https://openway.example.com/v1/write/tracing?token=secret": EOF`,
		"dangling",
	})

	if len(attrs) != 1 {
		t.Fatalf("expected only the error attribute, got %v", attrs)
	}

	if got := attrs[0].Value.AsString(); strings.Contains(got, "secret") {
		t.Fatalf("token leaked: %q", got)
	}
}
