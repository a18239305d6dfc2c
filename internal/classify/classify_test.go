package classify

import (
	"errors"
	"testing"

	"github.com/podlog/podlog/internal/remote"
)

func TestClassifyTable(t *testing.T) {
	tests := []struct {
		category    remote.Category
		wantRetry   bool
		wantMax     int
		wantAction  UserAction
	}{
		{remote.CategoryMalformed, false, 0, ActionEdit},
		{remote.CategoryUnauthenticated, false, 0, ActionReauth},
		{remote.CategoryEntityMissing, false, 0, ActionRemove},
		{remote.CategoryConflict, false, 0, ActionResolve},
		{remote.CategoryRateLimited, true, 5, ""},
		{remote.CategoryServerError, true, 3, ""},
		{remote.CategoryUnavailable, true, 5, ""},
		{remote.CategoryNoNetwork, true, UnboundedAttempts, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			strategy := Classify(&remote.RemoteError{
				Category: tt.category,
				Message:  "details",
			})

			if strategy.Retry != tt.wantRetry {
				t.Errorf("retry = %t, want %t", strategy.Retry, tt.wantRetry)
			}
			if strategy.MaxAttempts != tt.wantMax {
				t.Errorf("maxAttempts = %d, want %d", strategy.MaxAttempts, tt.wantMax)
			}
			if strategy.UserAction != tt.wantAction {
				t.Errorf("userAction = %q, want %q", strategy.UserAction, tt.wantAction)
			}
			if strategy.Message != "details" {
				t.Errorf("message = %q, want %q", strategy.Message, "details")
			}
		})
	}
}

func TestClassifyTransportError(t *testing.T) {
	strategy := Classify(&remote.TransportError{Err: errors.New("connection refused")})

	if !strategy.Retry {
		t.Error("transport error not retryable")
	}
	if strategy.MaxAttempts != UnboundedAttempts {
		t.Errorf("transport error has attempt cap %d", strategy.MaxAttempts)
	}
}

func TestClassifyUnknownDefaultsToTransient(t *testing.T) {
	strategy := Classify(errors.New("something odd"))

	if !strategy.Retry {
		t.Error("unclassified outcome not retryable")
	}
	if strategy.MaxAttempts != 3 {
		t.Errorf("unclassified outcome maxAttempts = %d, want 3", strategy.MaxAttempts)
	}
}

func TestClassifyWrappedOutcome(t *testing.T) {
	wrapped := errors.Join(errors.New("attempt 2"),
		&remote.RemoteError{Category: remote.CategoryUnauthenticated, Message: "expired"})

	strategy := Classify(wrapped)
	if strategy.Retry {
		t.Error("wrapped unauthenticated outcome classified retryable")
	}
	if strategy.UserAction != ActionReauth {
		t.Errorf("userAction = %q, want reauth", strategy.UserAction)
	}
}
