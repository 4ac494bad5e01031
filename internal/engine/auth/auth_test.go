package auth

import (
	"errors"
	"testing"
)

func TestEnsureOwner(t *testing.T) {
	if err := EnsureOwner("record", "r1", "Ada@Example.com", " ada@example.com"); err != nil {
		t.Fatalf("owner rejected: %v", err)
	}
	err := EnsureOwner("record", "r1", "ada@example.com", "eve@example.com")
	var fe ForbiddenError
	if !errors.As(err, &fe) || fe.ID != "r1" {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
	if EnsureOwner("record", "r1", "ada@example.com", "") == nil {
		t.Fatalf("anonymous caller allowed")
	}
}
