package circulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"library-circulation/internal/notify"
	platformdb "library-circulation/internal/platform/db"
)

const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

type MySQLStore struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

func NewMySQLStore(db *sqlx.DB, lockTimeout time.Duration) *MySQLStore {
	if lockTimeout <= 0 {
		lockTimeout = DefaultPolicy().ReservationTimeout
	}
	return &MySQLStore{db: db, lockTimeout: lockTimeout}
}

const copyColumns = `copy_id, book_id, library_id, status, inventory_number, added_at`
const loanColumns = `loan_id, patron_id, created_at, status, total_penalty`
const itemColumns = `item_id, loan_id, copy_id, due_date, returned_at, penalty`

// ---------- reads ----------

func (s *MySQLStore) GetCopies(ctx context.Context, ids []int64) (map[int64]BookCopy, error) {
	out := make(map[int64]BookCopy, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`SELECT `+copyColumns+` FROM book_copies WHERE copy_id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build copies query: %w", err)
	}
	var rows []BookCopy
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("select copies: %w", err)
	}
	for _, c := range rows {
		out[c.ID] = c
	}
	return out, nil
}

func (s *MySQLStore) ActiveItemCount(ctx context.Context, patronID string) (int, error) {
	const q = `
	SELECT COUNT(*)
	FROM loan_items i
	JOIN loans l ON l.loan_id = i.loan_id
	WHERE l.patron_id = ? AND i.returned_at IS NULL`
	var n int
	if err := s.db.GetContext(ctx, &n, q, patronID); err != nil {
		return 0, fmt.Errorf("count active items: %w", err)
	}
	return n, nil
}

// GetLoan: 貸出行と明細を同じ読み取り専用 Tx で読む
func (s *MySQLStore) GetLoan(ctx context.Context, loanID string) (*Loan, error) {
	var l *Loan
	err := platformdb.ReadOnly(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		l, err = getLoan(ctx, tx, loanID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *MySQLStore) ListLoansByPatron(ctx context.Context, patronID string, includeReturned bool) ([]*Loan, error) {
	var loans []*Loan
	err := platformdb.ReadOnly(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		loans, err = listLoansByPatron(ctx, tx, patronID, includeReturned)
		return err
	})
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func listLoansByPatron(ctx context.Context, tx *sqlx.Tx, patronID string, includeReturned bool) ([]*Loan, error) {
	q := `SELECT ` + loanColumns + ` FROM loans WHERE patron_id = ?`
	if !includeReturned {
		q += ` AND status <> 'returned'`
	}
	q += ` ORDER BY created_at, loan_id`

	var loans []*Loan
	if err := tx.SelectContext(ctx, &loans, q, patronID); err != nil {
		return nil, fmt.Errorf("select loans: %w", err)
	}
	if len(loans) == 0 {
		return nil, nil
	}

	ids := make([]string, len(loans))
	byID := make(map[string]*Loan, len(loans))
	for i, l := range loans {
		ids[i] = l.ID
		byID[l.ID] = l
	}
	iq, args, err := sqlx.In(`SELECT `+itemColumns+` FROM loan_items WHERE loan_id IN (?) ORDER BY copy_id`, ids)
	if err != nil {
		return nil, fmt.Errorf("build items query: %w", err)
	}
	var items []LoanItem
	if err := tx.SelectContext(ctx, &items, tx.Rebind(iq), args...); err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	for _, it := range items {
		l := byID[it.LoanID]
		l.Items = append(l.Items, it)
	}
	return loans, nil
}

func (s *MySQLStore) ListOpenItemsDueBetween(ctx context.Context, from, to time.Time) ([]OpenItem, error) {
	const q = `
	SELECT i.item_id, i.loan_id, i.copy_id, i.due_date, i.returned_at, i.penalty, l.patron_id
	FROM loan_items i
	JOIN loans l ON l.loan_id = i.loan_id
	WHERE i.returned_at IS NULL AND i.due_date BETWEEN ? AND ?
	ORDER BY i.due_date, i.item_id`
	var out []OpenItem
	if err := s.db.SelectContext(ctx, &out, q, from.UTC(), to.UTC()); err != nil {
		return nil, fmt.Errorf("select due items: %w", err)
	}
	return out, nil
}

func (s *MySQLStore) ListOpenItemsDueBefore(ctx context.Context, t time.Time) ([]OpenItem, error) {
	const q = `
	SELECT i.item_id, i.loan_id, i.copy_id, i.due_date, i.returned_at, i.penalty, l.patron_id
	FROM loan_items i
	JOIN loans l ON l.loan_id = i.loan_id
	WHERE i.returned_at IS NULL AND i.due_date < ?
	ORDER BY i.due_date, i.item_id`
	var out []OpenItem
	if err := s.db.SelectContext(ctx, &out, q, t.UTC()); err != nil {
		return nil, fmt.Errorf("select overdue items: %w", err)
	}
	return out, nil
}

// forUpdate なら貸出行と明細行をロックする
func getLoan(ctx context.Context, q sqlx.QueryerContext, loanID string, forUpdate bool) (*Loan, error) {
	suffix := ""
	if forUpdate {
		suffix = " FOR UPDATE"
	}
	var l Loan
	if err := sqlx.GetContext(ctx, q, &l, `SELECT `+loanColumns+` FROM loans WHERE loan_id = ?`+suffix, loanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound("loan not found", loanID)
		}
		return nil, fmt.Errorf("select loan: %w", err)
	}
	if err := sqlx.SelectContext(ctx, q, &l.Items,
		`SELECT `+itemColumns+` FROM loan_items WHERE loan_id = ? ORDER BY copy_id`+suffix, loanID); err != nil {
		return nil, fmt.Errorf("select loan items: %w", err)
	}
	return &l, nil
}

// ---------- outbox ----------

type outboxRow struct {
	EventID   string    `db:"event_id"`
	EventType string    `db:"event_type"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
	Attempts  int       `db:"attempts"`
}

func insertEvents(ctx context.Context, ex sqlx.ExtContext, at time.Time, events []notify.Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]outboxRow, 0, len(events))
	for _, e := range events {
		b, err := e.Payload()
		if err != nil {
			return err
		}
		rows = append(rows, outboxRow{EventID: e.ID, EventType: string(e.Type), Payload: b, CreatedAt: at})
	}
	const q = `
	INSERT INTO outbox_events (event_id, event_type, payload, created_at, attempts)
	VALUES (:event_id, :event_type, :payload, :created_at, :attempts)`
	if _, err := sqlx.NamedExecContext(ctx, ex, q, rows); err != nil {
		return fmt.Errorf("insert outbox events: %w", err)
	}
	return nil
}

func (s *MySQLStore) Publish(ctx context.Context, events ...notify.Event) error {
	return insertEvents(ctx, s.db, time.Now().UTC(), events)
}

func (s *MySQLStore) Pending(ctx context.Context, limit, maxAttempts int) ([]notify.Record, error) {
	const q = `
	SELECT event_id, event_type, payload, created_at, attempts
	FROM outbox_events
	WHERE delivered_at IS NULL AND attempts < ?
	ORDER BY created_at, event_id
	LIMIT ?`
	var rows []outboxRow
	if err := s.db.SelectContext(ctx, &rows, q, maxAttempts, limit); err != nil {
		return nil, fmt.Errorf("select pending events: %w", err)
	}
	out := make([]notify.Record, 0, len(rows))
	for _, r := range rows {
		e, err := notify.DecodeEvent(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", r.EventID, err)
		}
		out = append(out, notify.Record{Event: e, Attempts: r.Attempts})
	}
	return out, nil
}

func (s *MySQLStore) MarkDelivered(ctx context.Context, eventID string, at time.Time) error {
	const q = `UPDATE outbox_events SET delivered_at = ? WHERE event_id = ?`
	if _, err := s.db.ExecContext(ctx, q, at.UTC(), eventID); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

func (s *MySQLStore) MarkFailed(ctx context.Context, eventID, cause string) error {
	const q = `UPDATE outbox_events SET attempts = attempts + 1, last_error = ? WHERE event_id = ?`
	if _, err := s.db.ExecContext(ctx, q, cause, eventID); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ---------- transactions ----------

func (s *MySQLStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	err := platformdb.RunInTx(ctx, s.db, opts, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, lockWaitStatement(s.lockTimeout)); err != nil {
			return fmt.Errorf("set lock wait timeout: %w", err)
		}
		// 接続はプールに戻るので、COMMIT/ROLLBACK の前にセッション値を戻す
		defer tx.ExecContext(context.WithoutCancel(ctx), resetLockWaitStatement) //nolint:errcheck
		return fn(ctx, &mysqlTx{tx: tx})
	})
	return mapLockError(err)
}

const resetLockWaitStatement = "SET SESSION innodb_lock_wait_timeout = DEFAULT"

// 行ロック待ちの上限（秒単位・最小1秒）
func lockWaitStatement(d time.Duration) string {
	secs := max(1, int(math.Ceil(d.Seconds())))
	return fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs)
}

// ロック待ちタイムアウトとデッドロックは Conflict として返す（再試行はしない）
func mapLockError(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == mysqlErrLockWaitTimeout || me.Number == mysqlErrDeadlock) {
		return ErrConflict("concurrent update, try again")
	}
	return err
}

type mysqlTx struct {
	tx *sqlx.Tx
}

func (t *mysqlTx) LockCopy(ctx context.Context, copyID int64) (BookCopy, error) {
	var c BookCopy
	err := t.tx.GetContext(ctx, &c, `SELECT `+copyColumns+` FROM book_copies WHERE copy_id = ? FOR UPDATE`, copyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BookCopy{}, ErrNotFound("copy not found", strconv.FormatInt(copyID, 10))
		}
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlErrLockWaitTimeout {
			return BookCopy{}, ErrConflict("timed out waiting for copy", strconv.FormatInt(copyID, 10))
		}
		return BookCopy{}, fmt.Errorf("lock copy %d: %w", copyID, err)
	}
	return c, nil
}

func (t *mysqlTx) SetCopyStatus(ctx context.Context, copyID int64, st CopyStatus) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE book_copies SET status = ? WHERE copy_id = ?`, st, copyID)
	if err != nil {
		return fmt.Errorf("update copy %d: %w", copyID, err)
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return ErrInternal(fmt.Sprintf("failed to update book_copies.status for %d", copyID))
	}
	return nil
}

func (t *mysqlTx) InsertLoan(ctx context.Context, l *Loan) error {
	const q = `
	INSERT INTO loans (loan_id, patron_id, created_at, status, total_penalty)
	VALUES (:loan_id, :patron_id, :created_at, :status, :total_penalty)`
	if _, err := t.tx.NamedExecContext(ctx, q, l); err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	if len(l.Items) == 0 {
		return nil
	}
	const iq = `
	INSERT INTO loan_items (item_id, loan_id, copy_id, due_date, returned_at, penalty)
	VALUES (:item_id, :loan_id, :copy_id, :due_date, :returned_at, :penalty)`
	if _, err := t.tx.NamedExecContext(ctx, iq, l.Items); err != nil {
		return fmt.Errorf("insert loan items: %w", err)
	}
	return nil
}

func (t *mysqlTx) LockLoan(ctx context.Context, loanID string) (*Loan, error) {
	return getLoan(ctx, t.tx, loanID, true)
}

func (t *mysqlTx) MarkItemReturned(ctx context.Context, loanID, itemID string, at time.Time) error {
	const q = `
	UPDATE loan_items SET returned_at = ?
	WHERE loan_id = ? AND item_id = ? AND returned_at IS NULL`
	res, err := t.tx.ExecContext(ctx, q, at.UTC(), loanID, itemID)
	if err != nil {
		return fmt.Errorf("mark item %s returned: %w", itemID, err)
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return ErrNotFound("item not found or already returned", itemID)
	}
	return nil
}

func (t *mysqlTx) UpdateLoanTotals(ctx context.Context, l *Loan) error {
	const q = `UPDATE loans SET status = ?, total_penalty = ? WHERE loan_id = ?`
	if _, err := t.tx.ExecContext(ctx, q, l.Status, l.Penalty, l.ID); err != nil {
		return fmt.Errorf("update loan %s: %w", l.ID, err)
	}
	const iq = `UPDATE loan_items SET penalty = ? WHERE item_id = ?`
	for _, it := range l.Items {
		if _, err := t.tx.ExecContext(ctx, iq, it.Penalty, it.ID); err != nil {
			return fmt.Errorf("update item %s: %w", it.ID, err)
		}
	}
	return nil
}

func (t *mysqlTx) Enqueue(ctx context.Context, events ...notify.Event) error {
	return insertEvents(ctx, t.tx, time.Now().UTC(), events)
}
