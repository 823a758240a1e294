// Package blob stores content bodies outside the record store.
//
// Records carry a Content value rather than raw text. Content is either a
// reference into a Store or, for legacy rows only, an inline string, and
// Resolve returns the bytes in both cases.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a ref has no stored body.
	ErrNotFound = errors.New("blob: not found")

	// ErrInvalidRef is returned for refs that are not sha256:<hex>.
	ErrInvalidRef = errors.New("blob: invalid ref")
)

// DefaultInlineThreshold is the largest body a legacy row may hold inline.
const DefaultInlineThreshold = 4096

const refPrefix = "sha256:"

// Ref addresses a stored body by content hash.
type Ref string

// RefFor returns the ref a body will be stored under.
func RefFor(data []byte) Ref {
	sum := sha256.Sum256(data)
	return Ref(refPrefix + hex.EncodeToString(sum[:]))
}

// Validate checks the ref shape.
func (r Ref) Validate() error {
	s := string(r)
	if !strings.HasPrefix(s, refPrefix) || len(s) != len(refPrefix)+64 {
		return fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	if _, err := hex.DecodeString(s[len(refPrefix):]); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	return nil
}

// Getter reads bodies by ref.
type Getter interface {
	Get(ctx context.Context, ref Ref) ([]byte, error)
}

// Store is the blob store collaborator. Put is idempotent: storing the same
// body twice yields the same ref.
type Store interface {
	Getter
	Put(ctx context.Context, data []byte) (Ref, error)
}
