package joincode

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type waitingSet map[string]bool

func (w waitingSet) WaitingCodeExists(_ context.Context, code string) (bool, error) {
	return w[code], nil
}

// scriptedChecker reports a collision for the first n checks
type scriptedChecker struct {
	collisions int
	calls      int
}

func (s *scriptedChecker) WaitingCodeExists(context.Context, string) (bool, error) {
	s.calls++
	return s.calls <= s.collisions, nil
}

type failingChecker struct{}

func (failingChecker) WaitingCodeExists(context.Context, string) (bool, error) {
	return false, errors.New("db down")
}

func TestAllocateNeverReturnsWaitingCode(t *testing.T) {
	ctx := context.Background()
	waiting := waitingSet{}
	a := New(waiting, WithRandom(rand.NewChaCha8([32]byte{7})))

	for i := 0; i < 10000; i++ {
		code, err := a.Allocate(ctx)
		require.NoError(t, err)
		require.False(t, waiting[code], "allocation %d returned waiting code %s", i, code)
		require.True(t, a.Valid(code))
		waiting[code] = true
	}
	assert.Len(t, waiting, 10000)
}

func TestAllocateRetriesOnCollision(t *testing.T) {
	checker := &scriptedChecker{collisions: 3}
	a := New(checker)

	code, err := a.Allocate(context.Background())
	require.NoError(t, err)
	assert.Len(t, code, DefaultLength)
	assert.Equal(t, 4, checker.calls)
}

func TestAllocateExhausted(t *testing.T) {
	checker := &scriptedChecker{collisions: 1 << 30}
	a := New(checker, WithMaxAttempts(5))

	_, err := a.Allocate(context.Background())
	assert.ErrorIs(t, err, models.ErrJoinCodeExhausted)
	assert.Equal(t, 5, checker.calls)
}

func TestAllocateCheckerError(t *testing.T) {
	_, err := New(failingChecker{}).Allocate(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrJoinCodeExhausted)
}

func TestGenerateShape(t *testing.T) {
	a := New(waitingSet{}, WithLength(8))
	code, err := a.Generate()
	require.NoError(t, err)
	assert.Len(t, code, 8)
	assert.True(t, a.Valid(code))

	assert.False(t, a.Valid("abcdefgh"))
	assert.False(t, a.Valid("ABC"))
}
