package circulation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Policy は貸出ルール。起動時に設定から組み立てて Service に渡す
type Policy struct {
	MaxActiveItems     int
	MaxLoanDays        int
	DailyPenaltyRate   decimal.Decimal
	ReservationTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxActiveItems:     3,
		MaxLoanDays:        30,
		DailyPenaltyRate:   decimal.RequireFromString("1.00"),
		ReservationTimeout: 2 * time.Second,
	}
}

func NewPolicy(maxItems, maxDays int, rate string, timeout time.Duration) (Policy, error) {
	if maxItems < 1 {
		return Policy{}, fmt.Errorf("max active items must be >= 1, got %d", maxItems)
	}
	if maxDays < 1 {
		return Policy{}, fmt.Errorf("max loan days must be >= 1, got %d", maxDays)
	}
	r, err := decimal.NewFromString(rate)
	if err != nil {
		return Policy{}, fmt.Errorf("daily penalty rate %q: %w", rate, err)
	}
	if r.IsNegative() {
		return Policy{}, fmt.Errorf("daily penalty rate must not be negative, got %s", rate)
	}
	if timeout <= 0 {
		return Policy{}, fmt.Errorf("reservation timeout must be positive, got %s", timeout)
	}
	return Policy{
		MaxActiveItems:     maxItems,
		MaxLoanDays:        maxDays,
		DailyPenaltyRate:   r,
		ReservationTimeout: timeout,
	}, nil
}

// CheckDueDate: now < due <= now + MaxLoanDays
func (p Policy) CheckDueDate(now, due time.Time) error {
	if !due.After(now) {
		return ErrInvalid("due date must be in the future")
	}
	if due.After(now.AddDate(0, 0, p.MaxLoanDays)) {
		return ErrInvalid(fmt.Sprintf("due date must be within %d days", p.MaxLoanDays))
	}
	return nil
}

func (p Policy) CheckLimit(active, requested int) error {
	if active+requested > p.MaxActiveItems {
		return ErrLimit(fmt.Sprintf("borrowing limit exceeded: %d active, %d requested, max %d",
			active, requested, p.MaxActiveItems))
	}
	return nil
}
