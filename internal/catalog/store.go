package catalog

import (
	"context"

	"library-circulation/internal/circulation"
)

// Store は蔵書の参照と登録。貸出状態の変更は circulation 側だけが行う
type Store interface {
	GetCopy(ctx context.Context, copyID int64) (circulation.BookCopy, error)
	ListCopies(ctx context.Context, f Filter, p Page) ([]circulation.BookCopy, int64, error)
	CountCopies(ctx context.Context, bookID int64, libraryID *int64) (available, total int, err error)
	InsertCopy(ctx context.Context, c circulation.BookCopy) (circulation.BookCopy, error)
}

func normalizePage(p Page) Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Order != "asc" {
		p.Order = "desc"
	}
	return p
}
