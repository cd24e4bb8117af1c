package cli

import (
	"errors"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("tls.min_version", "must be \"1.2\" or \"1.3\"")
	want := `config error in tls.min_version: must be "1.2" or "1.3"`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	err = NewConfigError("", "file not found")
	if got := err.Error(); got != "config error: file not found" {
		t.Errorf("Error() = %q, want field-less message", got)
	}
}

func TestCommandError_Unwrap(t *testing.T) {
	cause := errors.New("bind: address already in use")
	err := NewCommandError("run", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is() = false, want unwrap to cause")
	}
	want := "command run failed: bind: address already in use"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
