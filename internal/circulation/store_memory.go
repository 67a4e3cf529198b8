package circulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"library-circulation/internal/notify"
)

var errLockTimeout = errors.New("lock wait timeout")

// MemoryStore は dev モードとテスト用の台帳。
// 行ロックは蔵書・貸出ごとの容量1チャネルで表し、コミット/ロールバックまで保持する。
// Tx 中の書き込みは Tx 内に溜め、コミット時にまとめて反映する。
type MemoryStore struct {
	mu         sync.RWMutex
	copies     map[int64]BookCopy
	nextCopyID int64
	loans      map[string]*Loan
	byPatron   map[string][]string
	outbox     []*memOutboxRow
	outboxByID map[string]*memOutboxRow

	locks       *lockTable
	lockTimeout time.Duration
	now         func() time.Time
}

type memOutboxRow struct {
	event       notify.Event
	createdAt   time.Time
	attempts    int
	deliveredAt *time.Time
	lastError   string
}

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	if lockTimeout <= 0 {
		lockTimeout = DefaultPolicy().ReservationTimeout
	}
	return &MemoryStore{
		copies:      map[int64]BookCopy{},
		loans:       map[string]*Loan{},
		byPatron:    map[string][]string{},
		outboxByID:  map[string]*memOutboxRow{},
		locks:       &lockTable{m: map[string]chan struct{}{}},
		lockTimeout: lockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ---------- copies (catalog から使う) ----------

// AddCopy は蔵書を登録する。ID は採番し、状態は available で始まる
func (s *MemoryStore) AddCopy(_ context.Context, c BookCopy) (BookCopy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.copies {
		if x.LibraryID == c.LibraryID && x.InventoryNumber == c.InventoryNumber {
			return BookCopy{}, ErrConflict("inventory number already registered", c.InventoryNumber)
		}
	}
	s.nextCopyID++
	c.ID = s.nextCopyID
	c.Status = CopyAvailable
	if c.AddedAt.IsZero() {
		c.AddedAt = s.now()
	}
	s.copies[c.ID] = c
	return c, nil
}

// Copies はコミット済みの全蔵書を ID 順で返す
func (s *MemoryStore) Copies(_ context.Context) ([]BookCopy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BookCopy, 0, len(s.copies))
	for _, c := range s.copies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------- reads ----------

func (s *MemoryStore) GetCopies(_ context.Context, ids []int64) (map[int64]BookCopy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int64]BookCopy, len(ids))
	for _, id := range ids {
		if c, ok := s.copies[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (s *MemoryStore) ActiveItemCount(_ context.Context, patronID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, id := range s.byPatron[patronID] {
		n += s.loans[id].OpenItemCount()
	}
	return n, nil
}

func (s *MemoryStore) GetLoan(_ context.Context, loanID string) (*Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.loans[loanID]
	if !ok {
		return nil, ErrNotFound("loan not found", loanID)
	}
	return l.Clone(), nil
}

func (s *MemoryStore) ListLoansByPatron(_ context.Context, patronID string, includeReturned bool) ([]*Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Loan
	for _, id := range s.byPatron[patronID] {
		l := s.loans[id]
		if !includeReturned && l.Status == LoanReturned {
			continue
		}
		out = append(out, l.Clone())
	}
	return out, nil
}

func (s *MemoryStore) ListOpenItemsDueBetween(_ context.Context, from, to time.Time) ([]OpenItem, error) {
	return s.openItems(func(due time.Time) bool { return !due.Before(from) && !due.After(to) }), nil
}

func (s *MemoryStore) ListOpenItemsDueBefore(_ context.Context, t time.Time) ([]OpenItem, error) {
	return s.openItems(func(due time.Time) bool { return due.Before(t) }), nil
}

func (s *MemoryStore) openItems(match func(due time.Time) bool) []OpenItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []OpenItem
	for _, l := range s.loans {
		for _, it := range l.Items {
			if it.Returned() || !match(it.DueDate) {
				continue
			}
			out = append(out, OpenItem{LoanItem: it, PatronID: l.PatronID})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ---------- outbox ----------

func (s *MemoryStore) Publish(_ context.Context, events ...notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendEvents(events)
	return nil
}

// s.mu を保持して呼ぶ
func (s *MemoryStore) appendEvents(events []notify.Event) {
	at := s.now()
	for _, e := range events {
		row := &memOutboxRow{event: e, createdAt: at}
		s.outbox = append(s.outbox, row)
		s.outboxByID[e.ID] = row
	}
}

func (s *MemoryStore) Pending(_ context.Context, limit, maxAttempts int) ([]notify.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []notify.Record
	for _, row := range s.outbox {
		if row.deliveredAt != nil || row.attempts >= maxAttempts {
			continue
		}
		out = append(out, notify.Record{Event: row.event, Attempts: row.attempts})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkDelivered(_ context.Context, eventID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outboxByID[eventID]
	if !ok {
		return ErrNotFound("outbox event not found", eventID)
	}
	row.deliveredAt = &at
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, eventID, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outboxByID[eventID]
	if !ok {
		return ErrNotFound("outbox event not found", eventID)
	}
	row.attempts++
	row.lastError = cause
	return nil
}

// Events はアウトボックスに入った全イベント（配信済み含む）を投入順で返す
func (s *MemoryStore) Events() []notify.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]notify.Event, len(s.outbox))
	for i, row := range s.outbox {
		out[i] = row.event
	}
	return out
}

// ---------- transactions ----------

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memTx{
		s:          s,
		heldSet:    map[string]bool{},
		copyStatus: map[int64]CopyStatus{},
		totals:     map[string]*Loan{},
	}
	defer tx.releaseLocks()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memReturn struct {
	loanID string
	itemID string
	at     time.Time
}

type memTx struct {
	s       *MemoryStore
	held    []string
	heldSet map[string]bool

	copyStatus map[int64]CopyStatus
	newLoans   []*Loan
	totals     map[string]*Loan
	returns    []memReturn
	events     []notify.Event
}

func copyKey(id int64) string  { return "copy:" + strconv.FormatInt(id, 10) }
func loanKey(id string) string { return "loan:" + id }

func (t *memTx) holds(key string) bool { return t.heldSet[key] }

func (t *memTx) lock(ctx context.Context, key string) error {
	if t.heldSet[key] {
		return nil
	}
	if err := t.s.locks.acquire(ctx, key, t.s.lockTimeout); err != nil {
		return err
	}
	t.held = append(t.held, key)
	t.heldSet[key] = true
	return nil
}

func (t *memTx) releaseLocks() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.s.locks.release(t.held[i])
	}
	t.held, t.heldSet = nil, map[string]bool{}
}

func (t *memTx) LockCopy(ctx context.Context, copyID int64) (BookCopy, error) {
	t.s.mu.RLock()
	_, ok := t.s.copies[copyID]
	t.s.mu.RUnlock()
	if !ok {
		return BookCopy{}, ErrNotFound("copy not found", strconv.FormatInt(copyID, 10))
	}
	if err := t.lock(ctx, copyKey(copyID)); err != nil {
		if errors.Is(err, errLockTimeout) {
			return BookCopy{}, ErrConflict("timed out waiting for copy", strconv.FormatInt(copyID, 10))
		}
		return BookCopy{}, err
	}

	// 待っている間に他の Tx がコミットしているかもしれないので読み直す
	t.s.mu.RLock()
	c := t.s.copies[copyID]
	t.s.mu.RUnlock()
	if st, ok := t.copyStatus[copyID]; ok {
		c.Status = st
	}
	return c, nil
}

func (t *memTx) SetCopyStatus(_ context.Context, copyID int64, st CopyStatus) error {
	if !t.holds(copyKey(copyID)) {
		return ErrInternal(fmt.Sprintf("copy %d is not locked", copyID))
	}
	t.copyStatus[copyID] = st
	return nil
}

func (t *memTx) InsertLoan(_ context.Context, l *Loan) error {
	t.s.mu.RLock()
	_, dup := t.s.loans[l.ID]
	t.s.mu.RUnlock()
	if dup {
		return ErrConflict("loan already exists", l.ID)
	}
	t.newLoans = append(t.newLoans, l.Clone())
	return nil
}

func (t *memTx) LockLoan(ctx context.Context, loanID string) (*Loan, error) {
	t.s.mu.RLock()
	_, ok := t.s.loans[loanID]
	t.s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound("loan not found", loanID)
	}
	if err := t.lock(ctx, loanKey(loanID)); err != nil {
		if errors.Is(err, errLockTimeout) {
			return nil, ErrConflict("timed out waiting for loan", loanID)
		}
		return nil, err
	}
	if l, ok := t.totals[loanID]; ok {
		return l.Clone(), nil
	}
	t.s.mu.RLock()
	l := t.s.loans[loanID].Clone()
	t.s.mu.RUnlock()
	return l, nil
}

func (t *memTx) MarkItemReturned(_ context.Context, loanID, itemID string, at time.Time) error {
	if !t.holds(loanKey(loanID)) {
		return ErrInternal("loan " + loanID + " is not locked")
	}
	t.s.mu.RLock()
	_, ok := t.s.loans[loanID].Item(itemID)
	t.s.mu.RUnlock()
	if !ok {
		return ErrNotFound("item not found", itemID)
	}
	t.returns = append(t.returns, memReturn{loanID: loanID, itemID: itemID, at: at})
	return nil
}

func (t *memTx) UpdateLoanTotals(_ context.Context, l *Loan) error {
	if !t.holds(loanKey(l.ID)) {
		return ErrInternal("loan " + l.ID + " is not locked")
	}
	t.totals[l.ID] = l.Clone()
	return nil
}

func (t *memTx) Enqueue(_ context.Context, events ...notify.Event) error {
	t.events = append(t.events, events...)
	return nil
}

func (t *memTx) commit() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, st := range t.copyStatus {
		c := s.copies[id]
		c.Status = st
		s.copies[id] = c
	}
	for _, l := range t.newLoans {
		s.loans[l.ID] = l
		s.byPatron[l.PatronID] = append(s.byPatron[l.PatronID], l.ID)
	}
	for id, l := range t.totals {
		stored := s.loans[id]
		stored.Status = l.Status
		stored.Penalty = l.Penalty
		for i := range stored.Items {
			if it, ok := l.Item(stored.Items[i].ID); ok {
				stored.Items[i].Penalty = it.Penalty
			}
		}
	}
	for _, r := range t.returns {
		it, ok := s.loans[r.loanID].Item(r.itemID)
		if ok && it.ReturnedAt == nil {
			at := r.at
			it.ReturnedAt = &at
		}
	}
	s.appendEvents(t.events)
}

// ---------- lock table ----------

type lockTable struct {
	mu sync.Mutex
	m  map[string]chan struct{}
}

func (lt *lockTable) slot(key string) chan struct{} {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	ch, ok := lt.m[key]
	if !ok {
		ch = make(chan struct{}, 1)
		lt.m[key] = ch
	}
	return ch
}

func (lt *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) error {
	ch := lt.slot(key)
	select {
	case ch <- struct{}{}:
		return nil
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errLockTimeout
	}
}

func (lt *lockTable) release(key string) {
	<-lt.slot(key)
}
