package circulation

import (
	"time"

	"github.com/shopspring/decimal"
)

// 日数計算は UTC の暦日で行う（時刻は切り捨て）
func civilDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween は from から to までの暦日差（負もあり得る）
func daysBetween(from, to time.Time) int {
	return int(civilDay(to).Sub(civilDay(from)).Hours() / 24)
}

// OverdueDays: 返却済みなら返却日、未返却なら今日を基準にした延滞日数
func OverdueDays(it LoanItem, now time.Time) int {
	ref := now
	if it.ReturnedAt != nil {
		ref = *it.ReturnedAt
	}
	return max(0, daysBetween(it.DueDate, ref))
}

func ItemPenalty(it LoanItem, now time.Time, rate decimal.Decimal) decimal.Decimal {
	return rate.Mul(decimal.NewFromInt(int64(OverdueDays(it, now)))).Round(2)
}

func TotalPenalty(items []LoanItem, now time.Time, rate decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(ItemPenalty(it, now, rate))
	}
	return sum.Round(2)
}

// RollupStatus は明細から貸出の状態を導く。明細が無ければ現状維持
func RollupStatus(items []LoanItem, current LoanStatus, now time.Time) LoanStatus {
	if len(items) == 0 {
		return current
	}
	allReturned := true
	for _, it := range items {
		if it.Returned() {
			continue
		}
		allReturned = false
		if it.DueDate.Before(now) {
			return LoanOverdue
		}
	}
	if allReturned {
		return LoanReturned
	}
	return LoanActive
}

// settle は延滞料→状態の順に再計算し、変化があれば true
func settle(l *Loan, now time.Time, rate decimal.Decimal) bool {
	changed := false
	for i := range l.Items {
		p := ItemPenalty(l.Items[i], now, rate)
		if !p.Equal(l.Items[i].Penalty) {
			l.Items[i].Penalty = p
			changed = true
		}
	}
	total := TotalPenalty(l.Items, now, rate)
	if !total.Equal(l.Penalty) {
		l.Penalty = total
		changed = true
	}
	st := RollupStatus(l.Items, l.Status, now)
	if st != l.Status {
		l.Status = st
		changed = true
	}
	return changed
}
