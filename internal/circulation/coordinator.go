package circulation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"library-circulation/internal/notify"
)

// Borrow は複数冊をまとめて貸し出す。全冊確保できた場合だけ貸出が作られる
func (s *Service) Borrow(ctx context.Context, patronID string, copyIDs []int64, dueDate time.Time) (*Loan, error) {
	// 0. 入力
	if strings.TrimSpace(patronID) == "" {
		return nil, ErrInvalid("patron id required")
	}
	if len(copyIDs) == 0 {
		return nil, ErrInvalid("copy_ids must not be empty")
	}
	seen := make(map[int64]struct{}, len(copyIDs))
	for _, id := range copyIDs {
		if _, dup := seen[id]; dup {
			return nil, ErrInvalid("copy_ids must not contain duplicates")
		}
		seen[id] = struct{}{}
	}

	now := s.clock.Now()
	dueDate = dueDate.UTC()

	// 1. 返却期限
	if err := s.policy.CheckDueDate(now, dueDate); err != nil {
		return nil, err
	}

	// 2. 上限冊数
	// トランザクションの外で数える。同じ利用者の貸出が同時に走ると、両方がこの判定を
	// 通って上限を超えることがある（書き込み対象は蔵書と貸出行だけに留めている）
	active, err := s.store.ActiveItemCount(ctx, patronID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CheckLimit(active, len(copyIDs)); err != nil {
		return nil, err
	}

	// 3. 存在と貸出可否（コミット済みの状態で事前に判定）
	copies, err := s.store.GetCopies(ctx, copyIDs)
	if err != nil {
		return nil, err
	}
	var missing, unavailable []int64
	for _, id := range copyIDs {
		c, ok := copies[id]
		switch {
		case !ok:
			missing = append(missing, id)
		case c.Status != CopyAvailable:
			unavailable = append(unavailable, id)
		}
	}
	if len(missing) > 0 {
		return nil, ErrNotFound("copies not found", copyIDStrings(missing)...)
	}
	if len(unavailable) > 0 {
		return nil, ErrConflict("copies not available", copyIDStrings(unavailable)...)
	}

	if s.beforeReserve != nil {
		s.beforeReserve()
	}

	loan := &Loan{
		ID:        s.id.NewULID(now),
		PatronID:  patronID,
		CreatedAt: now,
		Status:    LoanActive,
		Penalty:   decimal.Zero,
	}
	itemIDs := make([]string, 0, len(copyIDs))
	for _, id := range ascending(copyIDs) {
		it := LoanItem{
			ID:      s.id.NewULID(now),
			LoanID:  loan.ID,
			CopyID:  id,
			DueDate: dueDate,
			Penalty: decimal.Zero,
		}
		loan.Items = append(loan.Items, it)
		itemIDs = append(itemIDs, it.ID)
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := s.registry.ReserveAll(ctx, tx, copyIDs); err != nil {
			// 確保中に他の貸出に取られた・消えた場合はまとめて Conflict
			var api *APIError
			if !errors.As(err, &api) {
				return err
			}
			return ErrConflict("copies were taken by a concurrent borrow", api.IDs...)
		}
		if err := tx.InsertLoan(ctx, loan); err != nil {
			return s.unwind(ctx, tx, copyIDs, err)
		}
		ev := notify.LoanConfirmed(loan.ID, patronID, itemIDs, now)
		if err := tx.Enqueue(ctx, ev); err != nil {
			return s.unwind(ctx, tx, copyIDs, err)
		}
		return nil
	})
	if err != nil {
		s.log.Info("borrow rejected",
			zap.String("patron_id", patronID),
			zap.Int64s("copy_ids", copyIDs),
			zap.Error(err))
		return nil, err
	}

	s.log.Info("loan created",
		zap.String("loan_id", loan.ID),
		zap.String("patron_id", patronID),
		zap.Int("items", len(loan.Items)))
	s.wake()
	return loan, nil
}

// 確保済みの蔵書を戻してから元のエラーを返す
func (s *Service) unwind(ctx context.Context, tx Tx, copyIDs []int64, cause error) error {
	if err := s.registry.ReleaseAll(ctx, tx, copyIDs); err != nil {
		s.log.Error("failed to release reserved copies", zap.Int64s("copy_ids", copyIDs), zap.Error(err))
	}
	return cause
}
