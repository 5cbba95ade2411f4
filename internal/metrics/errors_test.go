package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/torosent/ga4sim/internal/failure"
)

func TestFriendlyErrorName(t *testing.T) {
	tests := map[string]string{
		"":                                "Unknown error",
		"*runner.HTTPError":               "Collection endpoint HTTP error",
		"*net.OpError":                    "Network error",
		"*url.Error":                      "Request URL error",
		"*errors.errorString":             "Error",
		"*runner.PanicError":              "Job panic",
		"*failure.Error":                  "Classified error",
		"*playwright.Error":               "Browser driver error",
		"context.deadlineExceededError":   "Context deadline exceeded",
		"*github.com/x/foo.BadThingError": "Bad Thing Error (foo)",
	}
	for in, want := range tests {
		if got := FriendlyErrorName(in); got != want {
			t.Errorf("FriendlyErrorName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestErrorLabel(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"plain transient", failure.TransientNetwork("emit", errors.New("reset")), "Transient network error"},
		{"transient with cause", failure.TransientNetwork("emit", opErr), "Transient network error: Network error"},
		{"fatal", failure.FatalConfig("emit", errors.New("bad secret")), "Rejected (fatal)"},
		{"exhausted", failure.ResourceExhausted("bootstrap", errors.New("launch")), "Browser resources exhausted"},
		{"wrapped classified", fmt.Errorf("job: %w", failure.FatalConfig("emit", errors.New("x"))), "Rejected (fatal)"},
		{"canceled", fmt.Errorf("acquire: %w", context.Canceled), "Context canceled"},
		{"unclassified", opErr, "Network error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorLabel(tt.err); got != tt.want {
				t.Errorf("ErrorLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}
