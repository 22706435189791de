// Package id generates document identifiers.
package id

import "github.com/google/uuid"

// NewUUID returns a random version 4 UUID in canonical text form.
func NewUUID() string {
	return uuid.NewString()
}

// Generator returns identifiers; NewUUID satisfies it. Tests substitute
// deterministic sequences.
type Generator func() string

// Sequence returns a Generator that yields ids in order and then falls back
// to NewUUID.
func Sequence(ids ...string) Generator {
	next := 0
	return func() string {
		if next < len(ids) {
			value := ids[next]
			next++
			return value
		}
		return NewUUID()
	}
}
