package circulation

import (
	"context"
	"time"

	"library-circulation/internal/notify"
)

// Store は貸出台帳の永続化。読み取り系はコミット済みの状態だけを返す
type Store interface {
	GetCopies(ctx context.Context, ids []int64) (map[int64]BookCopy, error)
	ActiveItemCount(ctx context.Context, patronID string) (int, error)
	GetLoan(ctx context.Context, loanID string) (*Loan, error)
	ListLoansByPatron(ctx context.Context, patronID string, includeReturned bool) ([]*Loan, error)
	// 期日が [from, to] に入る未返却明細（両端含む）
	ListOpenItemsDueBetween(ctx context.Context, from, to time.Time) ([]OpenItem, error)
	// 期日が t より前の未返却明細
	ListOpenItemsDueBefore(ctx context.Context, t time.Time) ([]OpenItem, error)

	// fn が nil を返せばコミット、エラーなら全て破棄
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// 台帳の変更を伴わないイベント（リマインダー）をアウトボックスへ
	Publish(ctx context.Context, events ...notify.Event) error

	notify.Outbox
}

// Tx は1つの作業単位。ロックはコミット/ロールバックまで保持される
type Tx interface {
	// 蔵書行の排他ロック。待ちが上限を超えたら Conflict
	LockCopy(ctx context.Context, copyID int64) (BookCopy, error)
	SetCopyStatus(ctx context.Context, copyID int64, st CopyStatus) error

	InsertLoan(ctx context.Context, l *Loan) error
	// 貸出と明細をロックして読む
	LockLoan(ctx context.Context, loanID string) (*Loan, error)
	MarkItemReturned(ctx context.Context, loanID, itemID string, at time.Time) error
	// 状態・延滞料（明細ごと含む）を書き戻す
	UpdateLoanTotals(ctx context.Context, l *Loan) error

	Enqueue(ctx context.Context, events ...notify.Event) error
}
