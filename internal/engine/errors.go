package engine

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// ErrMissingUsername is returned when an operation that needs a username
// gets an empty or all-whitespace one.
var ErrMissingUsername = errors.New("engine: please provide a username")

// NotFoundError is returned by Allocation for a user that has never been
// allocated any volume.
type NotFoundError struct {
	Username string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("engine: username %s not found", e.Username)
}

// normalizeUsername trims surrounding whitespace and rejects blank names.
func normalizeUsername(username string) (string, error) {
	name := strings.TrimSpace(username)
	if name == "" {
		return "", ErrMissingUsername
	}
	return name, nil
}

// mustAdd returns a+b and panics if the sum does not fit in a uint64.
func mustAdd(a, b uint64, what string) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		panic(fmt.Sprintf("engine: %s overflows uint64 (%d + %d)", what, a, b))
	}
	return sum
}
