package circulation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-circulation/internal/notify"
)

func Test_FindDueSoon_InclusiveWindow(t *testing.T) {
	f := newFixture(t, 4)
	now := t0.Add(days(1))

	// 作成時刻は now より前、期日はそれぞれ now / now+3日 / now+3日+1秒 / now-1秒
	f.clock.Set(t0)
	atNow := f.borrow(t, "p1", now, 1)
	atEdge := f.borrow(t, "p2", now.Add(days(3)), 2)
	f.borrow(t, "p3", now.Add(days(3)+time.Second), 3)
	f.borrow(t, "p4", now.Add(-time.Second), 4)
	f.clock.Set(now)

	rs, err := f.svc.FindDueSoon(context.Background(), staff, 3)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, atNow.Items[0].ID, rs[0].ItemID)
	assert.Equal(t, 0, rs[0].DaysLeft)
	assert.Equal(t, atEdge.Items[0].ID, rs[1].ItemID)
	assert.Equal(t, "p2", rs[1].PatronID)
	assert.Equal(t, 3, rs[1].DaysLeft)

	var dueSoon []notify.Event
	for _, e := range f.store.Events() {
		if e.Type == notify.TypeDueSoon {
			dueSoon = append(dueSoon, e)
		}
	}
	require.Len(t, dueSoon, 2)
	require.NotNil(t, dueSoon[1].DaysLeft)
	assert.Equal(t, 3, *dueSoon[1].DaysLeft)
	assert.Equal(t, atEdge.Items[0].ID, dueSoon[1].ItemID)

	// 記録を持たないので再実行すると再度通知する
	_, err = f.svc.FindDueSoon(context.Background(), staff, 3)
	require.NoError(t, err)
	assert.Len(t, f.store.Events(), 4+2+2)
}

func Test_FindDueSoon_SkipsReturnedItems(t *testing.T) {
	f := newFixture(t, 1)
	l := f.borrow(t, "p1", t0.Add(days(1)), 1)
	_, err := f.svc.ReturnItems(context.Background(), patron("p1"), l.ID, []string{l.Items[0].ID})
	require.NoError(t, err)

	rs, err := f.svc.FindDueSoon(context.Background(), staff, 3)
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func Test_FindDueSoon_Rejects(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.svc.FindDueSoon(context.Background(), patron("p1"), 3)
	assert.True(t, IsCode(err, CodeUnauthorized))

	_, err = f.svc.FindDueSoon(context.Background(), staff, -1)
	assert.True(t, IsCode(err, CodeInvalidArgument))

	rs, err := f.svc.FindDueSoon(context.Background(), staff, 0)
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func Test_FindOverdue(t *testing.T) {
	f := newFixture(t, 2)
	late := f.borrow(t, "p1", t0.Add(days(1)), 1)
	f.borrow(t, "p2", t0.Add(days(10)), 2)
	f.clock.Set(t0.Add(days(3)))

	_, err := f.svc.FindOverdue(context.Background(), patron("p1"))
	assert.True(t, IsCode(err, CodeUnauthorized))

	rs, err := f.svc.FindOverdue(context.Background(), staff)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, late.Items[0].ID, rs[0].ItemID)
	assert.Equal(t, 2, rs[0].DaysOverdue)

	evs := f.store.Events()
	assert.Equal(t, notify.TypeOverdue, evs[len(evs)-1].Type)
	assert.Equal(t, "p1", evs[len(evs)-1].PatronID)
}

func Test_RunReminders_ScansUntilCancelled(t *testing.T) {
	f := newFixture(t, 1)
	f.borrow(t, "p1", t0.Add(days(1)), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.RunReminders(ctx, time.Hour, 3) }()

	assert.Eventually(t, func() bool {
		for _, e := range f.store.Events() {
			if e.Type == notify.TypeDueSoon {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
