package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/ankianan/passingstone/go/internal/models"
	"github.com/ankianan/passingstone/go/internal/presence"
	"github.com/ankianan/passingstone/go/internal/roster"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// each client has its own registry; they only share the transport
func joinClient(t *testing.T, tr presence.Transport, clock *clockwork.FakeClock, roomID uuid.UUID, name string) (*presence.Member, *presence.Registry) {
	t.Helper()
	reg := presence.NewRegistry(tr)
	m, err := presence.Join(context.Background(), reg, clock, roomID, uuid.New(), name)
	require.NoError(t, err)
	clock.Advance(time.Second)
	return m, reg
}

func TestMembersConvergeAndPass(t *testing.T) {
	ctx := context.Background()
	tr := presence.NewMemoryTransport()
	clock := clockwork.NewFakeClock()
	roomID := uuid.New()

	a, _ := joinClient(t, tr, clock, roomID, "a")
	assert.True(t, a.HasStone(), "first member starts with the stone")

	b, _ := joinClient(t, tr, clock, roomID, "b")
	c, _ := joinClient(t, tr, clock, roomID, "c")
	assert.False(t, b.HasStone())
	assert.False(t, c.HasStone())

	for _, m := range []*presence.Member{a, b, c} {
		s := m.State()
		assert.Equal(t, []uuid.UUID{a.ID(), b.ID(), c.ID()}, s.Roster.IDs())
		assert.Equal(t, a.ID(), s.Holder)
	}

	require.NoError(t, a.Pass(ctx, roster.DirectionNext))
	for _, m := range []*presence.Member{a, b, c} {
		assert.Equal(t, b.ID(), m.State().Holder)
	}

	assert.ErrorIs(t, c.Pass(ctx, roster.DirectionNext), models.ErrIllegalTransition)

	require.NoError(t, b.Pass(ctx, roster.DirectionNext))
	assert.True(t, c.HasStone())
	require.NoError(t, c.Pass(ctx, roster.DirectionNext))
	assert.True(t, a.HasStone(), "next wraps around")
}

func TestLeaveRemovesMember(t *testing.T) {
	ctx := context.Background()
	tr := presence.NewMemoryTransport()
	clock := clockwork.NewFakeClock()
	roomID := uuid.New()

	a, regA := joinClient(t, tr, clock, roomID, "a")
	b, _ := joinClient(t, tr, clock, roomID, "b")

	require.NoError(t, a.Leave(ctx))
	assert.Equal(t, 0, regA.Rooms())
	assert.Equal(t, []uuid.UUID{b.ID()}, b.State().Roster.IDs())
	// nobody is flagged any more, so the only member is the default holder
	assert.True(t, b.HasStone())
}

func TestRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	tr := presence.NewMemoryTransport()
	reg := presence.NewRegistry(tr)
	clock := clockwork.NewFakeClock()
	roomID := uuid.New()

	a, err := presence.Join(ctx, reg, clock, roomID, uuid.New(), "a")
	require.NoError(t, err)
	b, err := presence.Join(ctx, reg, clock, roomID, uuid.New(), "b")
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Rooms(), "one aggregate per room")

	require.NoError(t, a.Leave(ctx))
	assert.Equal(t, 1, reg.Rooms())
	require.NoError(t, b.Leave(ctx))
	assert.Equal(t, 0, reg.Rooms())

	torn, err := reg.Release(roomID)
	require.NoError(t, err)
	assert.False(t, torn)
}

func TestMemberChangesSignalled(t *testing.T) {
	ctx := context.Background()
	tr := presence.NewMemoryTransport()
	clock := clockwork.NewFakeClock()
	roomID := uuid.New()

	a, _ := joinClient(t, tr, clock, roomID, "a")
	select {
	case <-a.Changes():
	default:
		t.Fatal("own join was not signalled")
	}

	b, _ := joinClient(t, tr, clock, roomID, "b")
	select {
	case <-a.Changes():
	default:
		t.Fatal("second join was not signalled")
	}
	assert.Len(t, a.State().Members, 2)

	require.NoError(t, b.Leave(ctx))
	select {
	case <-a.Changes():
	default:
		t.Fatal("leave was not signalled")
	}
	assert.Len(t, a.State().Members, 1)
}
