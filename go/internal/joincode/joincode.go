// Package joincode hands out short, shareable room codes.
package joincode

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	Alphabet           = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	DefaultLength      = 6
	DefaultMaxAttempts = 32
)

// Checker reports whether a waiting room already holds code
type Checker interface {
	WaitingCodeExists(ctx context.Context, code string) (bool, error)
}

// Allocator generates codes and retries on collision with a waiting room
type Allocator struct {
	checker     Checker
	random      io.Reader
	length      int
	maxAttempts int
}

type Option func(*Allocator)

// WithRandom replaces the crypto/rand source, mainly for deterministic tests
func WithRandom(r io.Reader) Option {
	return func(a *Allocator) { a.random = r }
}

func WithLength(n int) Option {
	return func(a *Allocator) { a.length = n }
}

func WithMaxAttempts(n int) Option {
	return func(a *Allocator) { a.maxAttempts = n }
}

// New creates an Allocator
func New(checker Checker, opts ...Option) *Allocator {
	a := &Allocator{
		checker:     checker,
		random:      rand.Reader,
		length:      DefaultLength,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generate returns a random code without checking for collisions
func (a *Allocator) Generate() (string, error) {
	base := big.NewInt(int64(len(Alphabet)))
	code := make([]byte, a.length)
	for i := range code {
		n, err := rand.Int(a.random, base)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		code[i] = Alphabet[n.Int64()]
	}
	return string(code), nil
}

// Allocate returns a code no waiting room currently uses. The check is
// advisory; the store's unique index on waiting codes is the final arbiter.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		code, err := a.Generate()
		if err != nil {
			return "", err
		}
		exists, err := a.checker.WaitingCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check join code: %w", err)
		}
		if !exists {
			return code, nil
		}
		log.Debug().Str("code", code).Int("attempt", attempt).Msg("join code collision")
	}
	return "", fmt.Errorf("after %d attempts: %w", a.maxAttempts, models.ErrJoinCodeExhausted)
}

// Valid reports whether code has the allocator's shape
func (a *Allocator) Valid(code string) bool {
	if len(code) != a.length {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
