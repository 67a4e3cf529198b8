package circulation

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"library-circulation/internal/notify"
)

// ReturnItems は明細ごとに返却する。貸出に無い明細は NotFound に集めるが、
// 他の明細の返却はそのままコミットされ、更新後の貸出も返す。
func (s *Service) ReturnItems(ctx context.Context, caller Caller, loanID string, itemIDs []string) (*Loan, error) {
	if len(itemIDs) == 0 {
		return nil, ErrInvalid("item_ids must not be empty")
	}
	now := s.clock.Now()

	var (
		result   *Loan
		missing  []string
		returned []string
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		missing, returned = nil, nil

		l, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if err := authorizeLoan(caller, l); err != nil {
			return err
		}

		seen := make(map[string]struct{}, len(itemIDs))
		var touch []*LoanItem
		for _, id := range itemIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			it, ok := l.Item(id)
			if !ok {
				missing = append(missing, id)
				continue
			}
			if it.Returned() {
				continue // 返却済みは何もしない
			}
			touch = append(touch, it)
		}
		sort.Slice(touch, func(i, j int) bool { return touch[i].CopyID < touch[j].CopyID })

		// 返却日時は貸出日時より前にならない
		at := now
		if at.Before(l.CreatedAt) {
			at = l.CreatedAt
		}
		for _, it := range touch {
			if err := tx.MarkItemReturned(ctx, l.ID, it.ID, at); err != nil {
				return err
			}
			t := at
			it.ReturnedAt = &t
			if err := s.registry.Release(ctx, tx, it.CopyID); err != nil {
				return err
			}
			returned = append(returned, it.ID)
		}

		changed := s.settle(l, now)
		if changed || len(returned) > 0 {
			if err := tx.UpdateLoanTotals(ctx, l); err != nil {
				return err
			}
		}
		if len(returned) > 0 {
			if err := tx.Enqueue(ctx, notify.ItemsReturned(l.ID, l.PatronID, returned, now)); err != nil {
				return err
			}
		}
		result = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(returned) > 0 {
		s.log.Info("items returned",
			zap.String("loan_id", loanID),
			zap.Strings("item_ids", returned),
			zap.String("status", string(result.Status)),
			zap.String("penalty", result.Penalty.StringFixed(2)))
		s.wake()
	}
	if len(missing) > 0 {
		return result, ErrNotFound("items not found in loan", missing...)
	}
	return result, nil
}

// RecomputePenalty は明細ごとの延滞料と合計を付け直し、続けて状態も導き直す。
// 永続化はしない（保存するなら Refresh）
func (s *Service) RecomputePenalty(l *Loan) decimal.Decimal {
	s.settle(l, s.clock.Now())
	return l.Penalty
}

// UpdateStatus は明細から状態を導き直す（永続化はしない）
func (s *Service) UpdateStatus(l *Loan) LoanStatus {
	l.Status = RollupStatus(l.Items, l.Status, s.clock.Now())
	return l.Status
}

func (s *Service) settle(l *Loan, now time.Time) bool {
	return settle(l, now, s.policy.DailyPenaltyRate)
}

// Refresh は延滞料と状態を再計算し、変化があれば保存する
func (s *Service) Refresh(ctx context.Context, loanID string) (*Loan, error) {
	l, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return s.refreshLoaded(ctx, l)
}

func (s *Service) refreshLoaded(ctx context.Context, l *Loan) (*Loan, error) {
	now := s.clock.Now()
	probe := l.Clone()
	if !s.settle(probe, now) {
		return probe, nil
	}

	var result *Loan
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := tx.LockLoan(ctx, l.ID)
		if err != nil {
			return err
		}
		if s.settle(locked, now) {
			if err := tx.UpdateLoanTotals(ctx, locked); err != nil {
				return err
			}
		}
		result = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Status != l.Status {
		s.log.Info("loan status changed",
			zap.String("loan_id", l.ID),
			zap.String("from", string(l.Status)),
			zap.String("to", string(result.Status)))
	}
	return result, nil
}

// GetPenalty は最新の延滞料合計
func (s *Service) GetPenalty(ctx context.Context, caller Caller, loanID string) (decimal.Decimal, error) {
	l, err := s.GetLoan(ctx, caller, loanID)
	if err != nil {
		return decimal.Zero, err
	}
	return l.Penalty, nil
}
