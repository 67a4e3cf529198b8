package circulation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func Test_OverdueDays(t *testing.T) {
	due := date(2024, 1, 1, 0)
	tests := []struct {
		name string
		item LoanItem
		now  time.Time
		want int
	}{
		{"before_due", LoanItem{DueDate: due}, date(2023, 12, 30, 12), 0},
		{"due_day", LoanItem{DueDate: due}, date(2024, 1, 1, 23), 0},
		{"three_days_late", LoanItem{DueDate: due}, date(2024, 1, 4, 0), 3},
		{"calendar_days_ignore_time", LoanItem{DueDate: date(2024, 1, 1, 23)}, date(2024, 1, 2, 1), 1},
		{"returned_late_uses_return_date", LoanItem{DueDate: due, ReturnedAt: ptr(date(2024, 1, 3, 9))}, date(2024, 2, 1, 0), 2},
		{"returned_early", LoanItem{DueDate: due, ReturnedAt: ptr(date(2023, 12, 20, 9))}, date(2024, 2, 1, 0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OverdueDays(tt.item, tt.now))
		})
	}
}

func Test_TotalPenalty(t *testing.T) {
	rate := decimal.RequireFromString("0.50")
	items := []LoanItem{
		{DueDate: date(2024, 1, 1, 0)},
		{DueDate: date(2024, 1, 3, 0), ReturnedAt: ptr(date(2024, 1, 4, 0))},
		{DueDate: date(2024, 1, 10, 0)},
	}
	got := TotalPenalty(items, date(2024, 1, 5, 8), rate)
	// 4日 + 1日 + 0日
	assert.Equal(t, "2.50", got.StringFixed(2))
	assert.Equal(t, "2.00", ItemPenalty(items[0], date(2024, 1, 5, 8), rate).StringFixed(2))
}

func Test_RollupStatus(t *testing.T) {
	now := date(2024, 1, 5, 12)
	open := LoanItem{DueDate: date(2024, 1, 10, 0)}
	late := LoanItem{DueDate: date(2024, 1, 5, 11)}
	done := LoanItem{DueDate: date(2024, 1, 1, 0), ReturnedAt: ptr(date(2024, 1, 3, 0))}

	assert.Equal(t, LoanActive, RollupStatus([]LoanItem{open, done}, LoanActive, now))
	assert.Equal(t, LoanOverdue, RollupStatus([]LoanItem{open, late}, LoanActive, now))
	assert.Equal(t, LoanReturned, RollupStatus([]LoanItem{done}, LoanOverdue, now))
	// 明細が無ければ現状維持
	assert.Equal(t, LoanOverdue, RollupStatus(nil, LoanOverdue, now))
	// 返却済みの延滞明細は状態に影響しない
	assert.Equal(t, LoanActive, RollupStatus([]LoanItem{open, done}, LoanOverdue, now))
}

func Test_settle_ReportsChange(t *testing.T) {
	rate := decimal.RequireFromString("1.00")
	l := &Loan{Status: LoanActive, Penalty: decimal.Zero, Items: []LoanItem{{DueDate: date(2024, 1, 1, 0), Penalty: decimal.Zero}}}

	assert.False(t, settle(l, date(2023, 12, 31, 0), rate))
	assert.True(t, settle(l, date(2024, 1, 3, 0), rate))
	assert.Equal(t, LoanOverdue, l.Status)
	assert.Equal(t, "2.00", l.Penalty.StringFixed(2))
	assert.False(t, settle(l, date(2024, 1, 3, 5), rate))
}
