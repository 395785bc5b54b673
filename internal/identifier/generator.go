// Package identifier produces human-readable invoice numbers for stock items.
package identifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"

	"github.com/pharmaops/pharmaops/internal/shared"
)

// DefaultMaxAttempts bounds collision retries.
const DefaultMaxAttempts = 10

const (
	suffixMin = 1000
	suffixMax = 9999
)

// ErrExhaustedRetries is returned when every candidate collided.
var ErrExhaustedRetries = fmt.Errorf("identifier: no unique invoice number: %w", shared.ErrExhaustedRetries)

var pattern = regexp.MustCompile(`^INV-\d{8}-\d{9}-\d{4}$`)

// ExistsFunc reports whether an invoice number is already taken.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// Generator builds INV-{YYYYMMDD}-{HHMMSSmmm}-{NNNN} identifiers.
type Generator struct {
	exists      ExistsFunc
	maxAttempts int
	now         func() time.Time
	suffix      func() int
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithSuffix overrides the random suffix source. Values outside 1000..9999 are clamped.
func WithSuffix(fn func() int) Option {
	return func(g *Generator) { g.suffix = fn }
}

// WithMaxAttempts overrides the retry bound.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// New constructs a Generator checking uniqueness with exists.
func New(exists ExistsFunc, opts ...Option) *Generator {
	g := &Generator{
		exists:      exists,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		suffix:      func() int { return suffixMin + rand.IntN(suffixMax-suffixMin+1) },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Format renders the identifier for t and suffix.
func Format(t time.Time, suffix int) string {
	t = t.UTC()
	if suffix < suffixMin {
		suffix = suffixMin
	}
	if suffix > suffixMax {
		suffix = suffixMax
	}
	return fmt.Sprintf("INV-%s-%s%03d-%04d", t.Format("20060102"), t.Format("150405"), t.Nanosecond()/int(time.Millisecond), suffix)
}

// Valid reports whether s has the invoice number shape.
func Valid(s string) bool {
	return pattern.MatchString(s)
}

// Generate returns an identifier that exists reported as free.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	if g.exists == nil {
		return "", errors.New("identifier: exists check not configured")
	}
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := Format(g.now(), g.suffix())
		taken, err := g.exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("identifier: check %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrExhaustedRetries
}

// MaxAttempts exposes the configured retry bound.
func (g *Generator) MaxAttempts() int {
	return g.maxAttempts
}
