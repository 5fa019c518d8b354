// Package ident generates short, shareable session codes such as SARAH-42.
package ident

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"strings"
	"unicode"

	"github.com/pawsitive/pawsync/internal/schema"
)

const (
	// MaxAttempts is how many candidates are checked before falling back
	// to an extra digit.
	MaxAttempts = 5

	// MaxPrefixLen bounds the sitter part of a code.
	MaxPrefixLen = 10

	// Placeholder replaces a sitter name with no usable letters.
	Placeholder = "SITTER"
)

// Store is the part of the gateway needed to mint a session.
type Store interface {
	Exists(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, s *schema.Session) error
}

// Generator produces session codes. The zero value is not usable; use New.
type Generator struct {
	rng    *rand.Rand
	logger *log.Logger
}

// New returns a Generator drawing from rng. A nil rng uses a randomly
// seeded source; a nil logger writes to stderr.
func New(rng *rand.Rand, logger *log.Logger) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[ident] ", log.LstdFlags)
	}
	return &Generator{rng: rng, logger: logger}
}

// Prefix returns the sitter part of a code: the first name, letters only,
// uppercased and truncated.
func Prefix(sitterName string) string {
	first := ""
	if fields := strings.Fields(sitterName); len(fields) > 0 {
		first = fields[0]
	}
	var b strings.Builder
	n := 0
	for _, r := range first {
		if n == MaxPrefixLen {
			break
		}
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		n++
	}
	if b.Len() == 0 {
		return Placeholder
	}
	return b.String()
}

// Candidate returns PREFIX-NN with NN drawn from [10,99].
func (g *Generator) Candidate(sitterName string) string {
	return fmt.Sprintf("%s-%d", Prefix(sitterName), 10+g.rng.IntN(90))
}

// CreateUnique picks an unused code for the sitter, stores payload under it
// and returns the code.
//
// Up to MaxAttempts candidates are checked. When all are taken, a random
// digit is appended to the last one; that code is not checked again, so
// uniqueness is probabilistic in that case. The payload's ID is set to the
// chosen code. Any store error aborts the operation before anything is
// written.
func (g *Generator) CreateUnique(ctx context.Context, st Store, sitterName string, payload *schema.Session) (string, error) {
	var id string
	unique := false
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		id = g.Candidate(sitterName)
		exists, err := st.Exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("failed to check session code %s: %w", id, err)
		}
		if !exists {
			unique = true
			break
		}
		g.logger.Printf("Code %s taken, retrying", id)
	}
	if !unique {
		id = fmt.Sprintf("%s-%d", id, g.rng.IntN(10))
		g.logger.Printf("No free code after %d attempts, using %s", MaxAttempts, id)
	}

	payload.ID = id
	if err := st.Create(ctx, payload); err != nil {
		return "", fmt.Errorf("failed to create session %s: %w", id, err)
	}
	return id, nil
}
