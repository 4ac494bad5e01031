package auth

import (
	"fmt"
	"strings"
)

// ForbiddenError indicates the caller does not own the resource.
type ForbiddenError struct {
	Resource string
	ID       string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("not allowed to access %s %s", e.Resource, e.ID)
}

// NormalizeEmail lowercases and trims an identity email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EnsureOwner allows access only when the caller is the identity that
// created the resource.
func EnsureOwner(resource, id, owner, caller string) error {
	if caller == "" || NormalizeEmail(owner) != NormalizeEmail(caller) {
		return ForbiddenError{Resource: resource, ID: id}
	}
	return nil
}
