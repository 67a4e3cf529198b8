package notify

import (
	"context"

	"go.uber.org/zap"
)

// Sink は通知の実配信先（メール等）。配信はベストエフォート
type Sink interface {
	Deliver(ctx context.Context, e Event) error
}

type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Deliver(ctx context.Context, e Event) error { return f(ctx, e) }

// LogSink は配信手段が未接続の環境向け。イベントをログに書くだけ
type LogSink struct{ log *zap.Logger }

func NewLogSink(l *zap.Logger) *LogSink { return &LogSink{log: l} }

func (s *LogSink) Deliver(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("event_id", e.ID),
		zap.String("type", string(e.Type)),
		zap.String("patron_id", e.PatronID),
	}
	if e.LoanID != "" {
		fields = append(fields, zap.String("loan_id", e.LoanID))
	}
	if e.ItemID != "" {
		fields = append(fields, zap.String("item_id", e.ItemID))
	}
	if len(e.ItemIDs) > 0 {
		fields = append(fields, zap.Strings("item_ids", e.ItemIDs))
	}
	if e.DaysLeft != nil {
		fields = append(fields, zap.Int("days_left", *e.DaysLeft))
	}
	s.log.Info("notification", fields...)
	return nil
}
