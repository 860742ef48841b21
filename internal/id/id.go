// Package id generates the 24-hex-character document identifiers docdb
// uses as primary keys: 8 hex chars of Unix-second timestamp, 10 hex chars
// of per-call randomness, and 6 hex chars drawn fresh each call.
//
// Grounded on the teacher's adapter/idgenerator package: an
// Option-configurable generator holding an io.Reader entropy source, so
// tests can seed it deterministically.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"time"
)

// Generator produces document identifiers as described in spec.md §3.
type Generator struct {
	reader io.Reader
	clock  func() int64
}

// Option configures a Generator.
type Option func(*Generator)

// WithRandomReader overrides the entropy source used for the random
// segments of the id, primarily for deterministic tests.
func WithRandomReader(r io.Reader) Option {
	return func(g *Generator) { g.reader = r }
}

// WithClock overrides the function used to read the current Unix second,
// primarily for deterministic tests.
func WithClock(clock func() int64) Option {
	return func(g *Generator) { g.clock = clock }
}

// New returns a Generator using crypto/rand and the real wall clock unless
// overridden by options.
func New(opts ...Option) *Generator {
	g := &Generator{reader: rand.Reader}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewID returns a new 24-character lowercase hex identifier.
func (g *Generator) NewID() (string, error) {
	var buf [4 + 5 + 3]byte

	now := g.now()
	buf[0] = byte(now >> 24)
	buf[1] = byte(now >> 16)
	buf[2] = byte(now >> 8)
	buf[3] = byte(now)

	if _, err := io.ReadFull(g.reader, buf[4:9]); err != nil {
		return "", err
	}
	if _, err := io.ReadFull(g.reader, buf[9:12]); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf[:]), nil
}

func (g *Generator) now() int64 {
	if g.clock != nil {
		return g.clock()
	}
	return time.Now().Unix()
}
