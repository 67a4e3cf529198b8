package circulation

import (
	"fmt"
	"time"
)

// ---------- requests ----------

type BorrowRequest struct {
	CopyIDs []int64 `json:"copy_ids" binding:"dive,gt=0"`
	DueDate string  `json:"due_date" binding:"required,duedate"` // "2006-01-02" か RFC3339
}

type ReturnRequest struct {
	ItemIDs []string `json:"item_ids"`
}

// ParseDueDate: 日付だけなら UTC の 0 時とみなす
func ParseDueDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("due_date must be YYYY-MM-DD or RFC3339: %q", s)
	}
	return t.UTC(), nil
}

// ---------- responses ----------

type LoanItemResponse struct {
	ItemID       string     `json:"item_id"`
	CopyID       int64      `json:"copy_id"`
	DueDate      time.Time  `json:"due_date"`
	ReturnedAt   *time.Time `json:"returned_at"`
	Penalty      string     `json:"penalty"`
	IsOverdue    bool       `json:"is_overdue"`
	DaysUntilDue int        `json:"days_until_due"`
}

type LoanResponse struct {
	LoanID       string             `json:"loan_id"`
	PatronID     string             `json:"patron_id"`
	CreatedAt    time.Time          `json:"created_at"`
	Status       LoanStatus         `json:"status"`
	TotalPenalty string             `json:"total_penalty"`
	Items        []LoanItemResponse `json:"items"`
}

type PenaltyResponse struct {
	LoanID       string `json:"loan_id"`
	TotalPenalty string `json:"total_penalty"`
}

type ListLoansResponse struct {
	Items []LoanResponse `json:"items"`
	Total int            `json:"total"`
}

type RemindersResponse struct {
	Items []Reminder `json:"items"`
	Total int        `json:"total"`
}

func toLoanResponse(l *Loan, now time.Time) LoanResponse {
	items := make([]LoanItemResponse, 0, len(l.Items))
	for _, it := range l.Items {
		items = append(items, LoanItemResponse{
			ItemID:       it.ID,
			CopyID:       it.CopyID,
			DueDate:      it.DueDate,
			ReturnedAt:   it.ReturnedAt,
			Penalty:      it.Penalty.StringFixed(2),
			IsOverdue:    !it.Returned() && it.DueDate.Before(now),
			DaysUntilDue: daysBetween(now, it.DueDate),
		})
	}
	return LoanResponse{
		LoanID:       l.ID,
		PatronID:     l.PatronID,
		CreatedAt:    l.CreatedAt,
		Status:       l.Status,
		TotalPenalty: l.Penalty.StringFixed(2),
		Items:        items,
	}
}
