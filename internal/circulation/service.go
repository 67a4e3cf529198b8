package circulation

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"library-circulation/internal/platform/auth"
)

// -------------- Clock & ID --------------

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }

// 単調増加エントロピーは同一ミリ秒内の順序を保つため共有し、ロックで守る
type ulidGen struct {
	mu      sync.Mutex
	entropy io.Reader
}

func newULIDGen() *ulidGen {
	return &ulidGen{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ulidGen) NewULID(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

// -------------- Caller --------------

// Caller は操作主体（JWT の sub と role）
type Caller struct {
	ID   string
	Role string
}

func (c Caller) IsStaff() bool { return auth.IsStaff(c.Role) }

// SystemCaller は定期リマインダーなど内部処理用
var SystemCaller = Caller{ID: "system", Role: auth.RoleAdmin}

// -------------- Service --------------

type Service struct {
	store    Store
	policy   Policy
	registry Registry
	clock    Clock
	id       IDGen
	log      *zap.Logger
	wake     func()

	// テスト用：事前チェック後、確保 Tx の直前に呼ばれる
	beforeReserve func()
}

type Option func(*Service)

func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }
func WithIDGen(g IDGen) Option { return func(s *Service) { s.id = g } }

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithWakeup はコミット後に呼ぶ通知（Dispatcher.Wake）
func WithWakeup(fn func()) Option { return func(s *Service) { s.wake = fn } }

func NewService(store Store, policy Policy, opts ...Option) *Service {
	s := &Service{
		store:  store,
		policy: policy,
		clock:  realClock{},
		id:     newULIDGen(),
		log:    zap.NewNop(),
		wake:   func() {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Policy() Policy { return s.policy }
func (s *Service) Now() time.Time { return s.clock.Now() }

// GetLoan は延滞料・状態を再計算した貸出を返す（本人か職員のみ）。
// 権限を確かめてから再計算するので、他人の貸出を読んでも書き込みは起きない
func (s *Service) GetLoan(ctx context.Context, caller Caller, loanID string) (*Loan, error) {
	l, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if err := authorizeLoan(caller, l); err != nil {
		return nil, err
	}
	return s.refreshLoaded(ctx, l)
}

// ListActiveLoans は未返却の明細を含む貸出を再計算して返す
func (s *Service) ListActiveLoans(ctx context.Context, caller Caller, patronID string) ([]*Loan, error) {
	if patronID == "" {
		return nil, ErrInvalid("patron id required")
	}
	if caller.ID != patronID && !caller.IsStaff() {
		return nil, ErrUnauthorized("cannot view another patron's loans")
	}
	loans, err := s.store.ListLoansByPatron(ctx, patronID, false)
	if err != nil {
		return nil, err
	}
	out := make([]*Loan, 0, len(loans))
	for _, l := range loans {
		fresh, err := s.refreshLoaded(ctx, l)
		if err != nil {
			return nil, err
		}
		if fresh.Status != LoanReturned {
			out = append(out, fresh)
		}
	}
	return out, nil
}

// ListLoanHistory は返却済みを含む利用者の全貸出（作成順）
func (s *Service) ListLoanHistory(ctx context.Context, caller Caller, patronID string) ([]*Loan, error) {
	if patronID == "" {
		return nil, ErrInvalid("patron id required")
	}
	if caller.ID != patronID && !caller.IsStaff() {
		return nil, ErrUnauthorized("cannot view another patron's loans")
	}
	loans, err := s.store.ListLoansByPatron(ctx, patronID, true)
	if err != nil {
		return nil, err
	}
	out := make([]*Loan, 0, len(loans))
	for _, l := range loans {
		fresh, err := s.refreshLoaded(ctx, l)
		if err != nil {
			return nil, err
		}
		out = append(out, fresh)
	}
	return out, nil
}

func authorizeLoan(caller Caller, l *Loan) error {
	if caller.ID != l.PatronID && !caller.IsStaff() {
		return ErrUnauthorized("loan belongs to another patron")
	}
	return nil
}
