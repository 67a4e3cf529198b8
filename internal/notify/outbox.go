package notify

import (
	"context"
	"time"
)

type Record struct {
	Event    Event
	Attempts int
}

// Outbox は未配信イベントの保管庫。台帳ストアが実装する
type Outbox interface {
	// 未配信かつ試行回数が maxAttempts 未満のものを古い順に最大 limit 件
	Pending(ctx context.Context, limit, maxAttempts int) ([]Record, error)
	MarkDelivered(ctx context.Context, eventID string, at time.Time) error
	MarkFailed(ctx context.Context, eventID string, cause string) error
}
