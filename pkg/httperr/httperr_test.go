package httperr

import (
	"fmt"
	"testing"
)

func TestIsBadRequest(t *testing.T) {
	if IsBadRequest(nil) {
		t.Fatalf("expected false for nil")
	}
	if IsBadRequest(NewBadRequest("bad")) != true {
		t.Fatalf("expected true for BadRequestError")
	}
	if IsBadRequest(assertErr("other")) {
		t.Fatalf("expected false for non-BadRequestError")
	}
	wrapped := fmt.Errorf("upload: %w", BadRequestf("row %d: bad value", 3))
	if !IsBadRequest(wrapped) {
		t.Fatalf("expected wrapped bad request")
	}
	if got := Message(wrapped); got != "row 3: bad value" {
		t.Fatalf("message=%q", got)
	}
	if got := Message(assertErr("x")); got != "" {
		t.Fatalf("message=%q", got)
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
