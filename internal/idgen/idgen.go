// Package idgen centralizes unique identifier generation so every
// aggregate, saga execution, and step result is addressed the same way.
package idgen

import "github.com/google/uuid"

// Generator produces unique identifiers.
type Generator interface {
	NewID() uuid.UUID
}

// UUIDGenerator generates random (v4) UUIDs.
type UUIDGenerator struct{}

// NewID returns a new random UUID.
func (UUIDGenerator) NewID() uuid.UUID { return uuid.New() }

// Sequence is a deterministic test Generator that replays a fixed list of
// ids, panicking once exhausted.
type Sequence struct {
	ids []uuid.UUID
	pos int
}

// NewSequence builds a Sequence generator over the given ids.
func NewSequence(ids ...uuid.UUID) *Sequence {
	return &Sequence{ids: ids}
}

// NewID returns the next id in the sequence.
func (s *Sequence) NewID() uuid.UUID {
	id := s.ids[s.pos]
	s.pos++

	return id
}
