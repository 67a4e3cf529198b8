package circulation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"library-circulation/internal/notify"
)

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewULID(time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("ID%04d", g.n)
}

type fixture struct {
	svc   *Service
	store *MemoryStore
	clock *fakeClock
	woken int
}

// newFixture は蔵書 1..n を登録した台帳とサービスを作る
func newFixture(t *testing.T, copies int) *fixture {
	t.Helper()
	f := &fixture{
		store: NewMemoryStore(200 * time.Millisecond),
		clock: &fakeClock{t: t0},
	}
	for i := 0; i < copies; i++ {
		_, err := f.store.AddCopy(context.Background(), BookCopy{
			BookID:          int64(100 + i),
			LibraryID:       1,
			InventoryNumber: fmt.Sprintf("INV-%03d", i+1),
		})
		require.NoError(t, err)
	}
	f.svc = NewService(f.store, DefaultPolicy(),
		WithClock(f.clock),
		WithIDGen(&seqIDs{}),
		WithWakeup(func() { f.woken++ }),
	)
	return f
}

func (f *fixture) borrow(t *testing.T, patron string, due time.Time, ids ...int64) *Loan {
	t.Helper()
	l, err := f.svc.Borrow(context.Background(), patron, ids, due)
	require.NoError(t, err)
	return l
}

func (f *fixture) copyStatus(t *testing.T, id int64) CopyStatus {
	t.Helper()
	m, err := f.store.GetCopies(context.Background(), []int64{id})
	require.NoError(t, err)
	return m[id].Status
}

func (f *fixture) eventTypes() []notify.EventType {
	var out []notify.EventType
	for _, e := range f.store.Events() {
		out = append(out, e.Type)
	}
	return out
}

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func patron(id string) Caller { return Caller{ID: id, Role: "user"} }

var staff = Caller{ID: "librarian", Role: "staff"}
