package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := IO("read", "/data/a.png", os.ErrPermission)
	want := "read: io_failure /data/a.png: permission denied"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, os.ErrPermission) {
		t.Error("expected wrapped cause to be reachable through errors.Is")
	}
}

func TestKindMatching(t *testing.T) {
	wrapped := fmt.Errorf("scan item: %w", Decode("decode", "/x.png", errors.New("bad header")))

	if KindOf(wrapped) != KindDecode {
		t.Errorf("KindOf = %q, want %q", KindOf(wrapped), KindDecode)
	}
	if !IsKind(wrapped, KindDecode) {
		t.Error("IsKind should match through wrapping")
	}
	if IsKind(errors.New("plain"), KindDecode) {
		t.Error("plain errors carry no kind")
	}
	if !errors.Is(NotFound("get", "abc"), ErrNotFound) {
		t.Error("NotFound should match ErrNotFound")
	}
	if errors.Is(Invalid("add", "empty"), ErrNotFound) {
		t.Error("Invalid must not match ErrNotFound")
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  *Error
		code int
	}{
		{NotFound("get", "x"), http.StatusNotFound},
		{Invalid("add", "empty tag"), http.StatusBadRequest},
		{Decode("thumb", "x", nil), http.StatusUnprocessableEntity},
		{IO("read", "x", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.err.StatusCode(); got != tt.code {
			t.Errorf("%s: StatusCode() = %d, want %d", tt.err.Kind, got, tt.code)
		}
	}
}

func TestViolation(t *testing.T) {
	v := Violation("tag-count", "decrement of %q below zero", "cat")
	if v.Error() != `invariant violation (tag-count): decrement of "cat" below zero` {
		t.Errorf("unexpected message: %s", v.Error())
	}
}
