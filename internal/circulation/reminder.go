package circulation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"library-circulation/internal/notify"
)

// Reminder は通知対象になった明細1件
type Reminder struct {
	ItemID      string    `json:"item_id"`
	LoanID      string    `json:"loan_id"`
	CopyID      int64     `json:"copy_id"`
	PatronID    string    `json:"patron_id"`
	DueDate     time.Time `json:"due_date"`
	DaysLeft    int       `json:"days_left"`
	DaysOverdue int       `json:"days_overdue,omitempty"`
}

// FindDueSoon は期日が [now, now+windowDays] の未返却明細を探し、1件ごとに due_soon を出す。
// 送信済みの記録は持たないので、繰り返し呼べば同じ明細に再度通知する。
func (s *Service) FindDueSoon(ctx context.Context, caller Caller, windowDays int) ([]Reminder, error) {
	if !caller.IsStaff() {
		return nil, ErrUnauthorized("staff only")
	}
	if windowDays < 0 {
		return nil, ErrInvalid("window_days must be >= 0")
	}
	now := s.clock.Now()
	items, err := s.store.ListOpenItemsDueBetween(ctx, now, now.AddDate(0, 0, windowDays))
	if err != nil {
		return nil, err
	}

	out := make([]Reminder, 0, len(items))
	events := make([]notify.Event, 0, len(items))
	for _, it := range items {
		left := daysBetween(now, it.DueDate)
		out = append(out, Reminder{
			ItemID:   it.ID,
			LoanID:   it.LoanID,
			CopyID:   it.CopyID,
			PatronID: it.PatronID,
			DueDate:  it.DueDate,
			DaysLeft: left,
		})
		events = append(events, notify.DueSoon(it.ID, it.PatronID, left, now))
	}
	s.publish(ctx, "due_soon", events)
	return out, nil
}

// FindOverdue は期日を過ぎた未返却明細を探し、1件ごとに overdue を出す
func (s *Service) FindOverdue(ctx context.Context, caller Caller) ([]Reminder, error) {
	if !caller.IsStaff() {
		return nil, ErrUnauthorized("staff only")
	}
	now := s.clock.Now()
	items, err := s.store.ListOpenItemsDueBefore(ctx, now)
	if err != nil {
		return nil, err
	}

	out := make([]Reminder, 0, len(items))
	events := make([]notify.Event, 0, len(items))
	for _, it := range items {
		out = append(out, Reminder{
			ItemID:      it.ID,
			LoanID:      it.LoanID,
			CopyID:      it.CopyID,
			PatronID:    it.PatronID,
			DueDate:     it.DueDate,
			DaysLeft:    daysBetween(now, it.DueDate),
			DaysOverdue: OverdueDays(it.LoanItem, now),
		})
		events = append(events, notify.Overdue(it.ID, it.PatronID, now))
	}
	s.publish(ctx, "overdue", events)
	return out, nil
}

// 通知はベストエフォート。失敗しても検索結果は返す
func (s *Service) publish(ctx context.Context, kind string, events []notify.Event) {
	if len(events) == 0 {
		return
	}
	if err := s.store.Publish(ctx, events...); err != nil {
		s.log.Warn("failed to enqueue reminders", zap.String("kind", kind), zap.Int("count", len(events)), zap.Error(err))
		return
	}
	s.wake()
}

// RunReminders は interval ごとに due_soon と overdue の走査を行う。ctx が終わるまで戻らない
func (s *Service) RunReminders(ctx context.Context, interval time.Duration, windowDays int) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s.runRemindersOnce(ctx, windowDays)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *Service) runRemindersOnce(ctx context.Context, windowDays int) {
	due, err := s.FindDueSoon(ctx, SystemCaller, windowDays)
	if err != nil {
		s.log.Warn("due-soon scan failed", zap.Error(err))
	}
	overdue, err := s.FindOverdue(ctx, SystemCaller)
	if err != nil {
		s.log.Warn("overdue scan failed", zap.Error(err))
	}
	s.log.Info("reminder scan finished", zap.Int("due_soon", len(due)), zap.Int("overdue", len(overdue)))
}
