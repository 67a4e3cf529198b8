package catalog

import (
	"context"
	"sort"
	"strconv"

	"library-circulation/internal/circulation"
)

// MemoryStore は dev モード用。貸出台帳（circulation.MemoryStore）の蔵書をそのまま見る
type MemoryStore struct {
	ledger *circulation.MemoryStore
}

func NewMemoryStore(ledger *circulation.MemoryStore) *MemoryStore {
	return &MemoryStore{ledger: ledger}
}

func (s *MemoryStore) GetCopy(ctx context.Context, copyID int64) (circulation.BookCopy, error) {
	m, err := s.ledger.GetCopies(ctx, []int64{copyID})
	if err != nil {
		return circulation.BookCopy{}, err
	}
	c, ok := m[copyID]
	if !ok {
		return circulation.BookCopy{}, circulation.ErrNotFound("copy not found", strconv.FormatInt(copyID, 10))
	}
	return c, nil
}

func (s *MemoryStore) match(ctx context.Context, f Filter) ([]circulation.BookCopy, error) {
	all, err := s.ledger.Copies(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if f.BookID != nil && c.BookID != *f.BookID {
			continue
		}
		if f.LibraryID != nil && c.LibraryID != *f.LibraryID {
			continue
		}
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) ListCopies(ctx context.Context, f Filter, p Page) ([]circulation.BookCopy, int64, error) {
	p = normalizePage(p)
	list, err := s.match(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	if p.Order == "desc" {
		sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	}
	total := int64(len(list))
	if p.Offset >= len(list) {
		return []circulation.BookCopy{}, total, nil
	}
	end := min(p.Offset+p.Limit, len(list))
	return list[p.Offset:end], total, nil
}

func (s *MemoryStore) CountCopies(ctx context.Context, bookID int64, libraryID *int64) (int, int, error) {
	list, err := s.match(ctx, Filter{BookID: &bookID, LibraryID: libraryID})
	if err != nil {
		return 0, 0, err
	}
	available := 0
	for _, c := range list {
		if c.Status == circulation.CopyAvailable {
			available++
		}
	}
	return available, len(list), nil
}

func (s *MemoryStore) InsertCopy(ctx context.Context, c circulation.BookCopy) (circulation.BookCopy, error) {
	return s.ledger.AddCopy(ctx, c)
}
