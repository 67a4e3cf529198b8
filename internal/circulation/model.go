package circulation

import (
	"time"

	"github.com/shopspring/decimal"
)

type CopyStatus string

const (
	CopyAvailable CopyStatus = "available"
	CopyBorrowed  CopyStatus = "borrowed"
)

type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanOverdue  LoanStatus = "overdue"
	LoanReturned LoanStatus = "returned"
)

// BookCopy は蔵書1冊。status を書き換えるのは貸出台帳だけ
type BookCopy struct {
	ID              int64      `db:"copy_id"`
	BookID          int64      `db:"book_id"`
	LibraryID       int64      `db:"library_id"`
	Status          CopyStatus `db:"status"`
	InventoryNumber string     `db:"inventory_number"`
	AddedAt         time.Time  `db:"added_at"`
}

// Loan は一度に借りた複数冊のまとまり。作成後に明細は増えない
type Loan struct {
	ID        string          `db:"loan_id"`
	PatronID  string          `db:"patron_id"`
	CreatedAt time.Time       `db:"created_at"`
	Status    LoanStatus      `db:"status"`
	Penalty   decimal.Decimal `db:"total_penalty"`
	Items     []LoanItem      `db:"-"`
}

type LoanItem struct {
	ID         string          `db:"item_id"`
	LoanID     string          `db:"loan_id"`
	CopyID     int64           `db:"copy_id"`
	DueDate    time.Time       `db:"due_date"`
	ReturnedAt *time.Time      `db:"returned_at"` // 一度だけ書かれる
	Penalty    decimal.Decimal `db:"penalty"`
}

func (it LoanItem) Returned() bool { return it.ReturnedAt != nil }

// OpenItem は未返却明細と借り手。リマインダー用
type OpenItem struct {
	LoanItem
	PatronID string `db:"patron_id"`
}

func (l *Loan) Item(itemID string) (*LoanItem, bool) {
	for i := range l.Items {
		if l.Items[i].ID == itemID {
			return &l.Items[i], true
		}
	}
	return nil, false
}

func (l *Loan) OpenItemCount() int {
	n := 0
	for _, it := range l.Items {
		if !it.Returned() {
			n++
		}
	}
	return n
}

// Clone は ReturnedAt まで含めた深いコピー
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	c := *l
	c.Items = make([]LoanItem, len(l.Items))
	for i, it := range l.Items {
		if it.ReturnedAt != nil {
			t := *it.ReturnedAt
			it.ReturnedAt = &t
		}
		c.Items[i] = it
	}
	return &c
}
