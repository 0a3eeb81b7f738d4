package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapPreservesCodeThroughFmtWrapping(t *testing.T) {
	cause := stdErrors.New("connection reset")
	wrapped := fmt.Errorf("handle: %w", Wrap(CodeUpstreamFailure, cause, "invoke model"))

	if got := CodeOf(wrapped); got != CodeUpstreamFailure {
		t.Fatalf("unexpected code: got %s want %s", got, CodeUpstreamFailure)
	}
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("expected cause to be reachable through errors.Is")
	}
	if !stdErrors.Is(wrapped, New(CodeUpstreamFailure, "")) {
		t.Fatalf("expected code comparison through errors.Is")
	}
	if !RetryableError(wrapped) {
		t.Fatalf("upstream failures should be retryable by default")
	}
}

func TestAttributesFallbackToUnknown(t *testing.T) {
	attr := AttributesOf(Code("NOT_REGISTERED"))
	if attr.Message != "unknown error" {
		t.Fatalf("unexpected fallback message: %q", attr.Message)
	}
	if CodeOf(stdErrors.New("plain")) != CodeUnknown {
		t.Fatalf("plain errors should map to UNKNOWN")
	}
	if SeverityOf(stdErrors.New("plain")) != SeverityCritical || !ShouldAlert(stdErrors.New("plain")) {
		t.Fatalf("plain errors should carry UNKNOWN severity and alert")
	}
}

func TestHTTPStatusOf(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"nil":           {err: nil, want: http.StatusOK},
		"configuration": {err: New(CodeConfiguration, ""), want: http.StatusInternalServerError},
		"upstream":      {err: New(CodeUpstreamFailure, ""), want: http.StatusBadGateway},
		"decode":        {err: fmt.Errorf("relay: %w", New(CodeDecodeFailure, "")), want: http.StatusBadGateway},
		"timeout":       {err: New(CodeTimeout, ""), want: http.StatusGatewayTimeout},
		"plain":         {err: stdErrors.New("boom"), want: http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := HTTPStatusOf(tc.err); got != tc.want {
				t.Fatalf("unexpected status: got %d want %d", got, tc.want)
			}
		})
	}
}

func TestDefaultsAndMetadata(t *testing.T) {
	err := New(CodeDecodeFailure, "", WithMetadata("model", "m"))
	if err.Error() != "[DECODE_FAILURE] inference response could not be decoded" {
		t.Fatalf("default message not applied: %q", err.Error())
	}
	if err.Retryable() {
		t.Fatalf("decode failures are not retryable")
	}
	if SeverityOf(err) != SeverityCritical || !ShouldAlert(err) {
		t.Fatalf("unexpected severity or alert: %s", SeverityOf(err))
	}
	meta := err.Metadata()
	if meta["model"] != "m" {
		t.Fatalf("metadata missing: %+v", meta)
	}
	meta["model"] = "changed"
	if err.Metadata()["model"] != "m" {
		t.Fatalf("metadata should be returned as a copy")
	}
}
