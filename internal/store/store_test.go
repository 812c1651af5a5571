package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelin/oracle/internal/config"
	"github.com/avelin/oracle/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(config.DBConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestUserRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateUser(ctx, &domain.User{
		ID: "u1", Username: "mara", Role: domain.RoleClient, BalanceCents: 500,
	}))

	u, err := st.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "mara", u.Username)
	assert.Equal(t, int64(500), u.BalanceCents)

	_, err = st.GetUser(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdjustBalance(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateUser(ctx, &domain.User{ID: "u1", Role: domain.RoleClient, BalanceCents: 100}))

	bal, err := st.AdjustBalance(ctx, "u1", -40)
	require.NoError(t, err)
	assert.Equal(t, int64(60), bal)

	bal, err = st.AdjustBalance(ctx, "u1", 15)
	require.NoError(t, err)
	assert.Equal(t, int64(75), bal)

	// A debit past zero is refused and leaves the row untouched.
	bal, err = st.AdjustBalance(ctx, "u1", -76)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, int64(75), bal)

	_, err = st.AdjustBalance(ctx, "ghost", -1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// Concurrent debits never overdraw: the guard and the increment are one
// statement.
func TestAdjustBalanceConcurrent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateUser(ctx, &domain.User{ID: "u1", Role: domain.RoleClient, BalanceCents: 500}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = st.AdjustBalance(ctx, "u1", -100)
		}()
	}
	wg.Wait()

	u, err := st.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.BalanceCents, "exactly five of ten debits may succeed")
}

func TestReadingPatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.CreateReading(ctx, &domain.Reading{
		ID: "r1", ClientID: "c1", ReaderID: "rd1",
		PricePerMinuteCents: 100, Status: domain.ReadingPaymentCompleted,
	}))

	now := time.Now().UTC()
	status := domain.ReadingInProgress
	require.NoError(t, st.UpdateReading(ctx, "r1", domain.ReadingPatch{
		Status:    &status,
		StartedAt: &now,
	}))

	minutes := int64(3)
	total := int64(300)
	require.NoError(t, st.UpdateReading(ctx, "r1", domain.ReadingPatch{
		BilledMinutes:   &minutes,
		TotalPriceCents: &total,
	}))

	r, err := st.GetReading(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReadingInProgress, r.Status, "later patch must not clear the status")
	assert.Equal(t, int64(3), r.BilledMinutes)
	assert.Equal(t, int64(300), r.TotalPriceCents)
	require.NotNil(t, r.StartedAt)
	assert.Nil(t, r.EndedAt)

	assert.ErrorIs(t, st.UpdateReading(ctx, "ghost", domain.ReadingPatch{Status: &status}), domain.ErrNotFound)
	// An empty patch is a no-op, not an error.
	assert.NoError(t, st.UpdateReading(ctx, "r1", domain.ReadingPatch{}))
}
