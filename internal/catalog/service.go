package catalog

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"library-circulation/internal/circulation"
)

// ラベル出力で一度に読む上限
const maxLabelRows = 10000

type Service struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) GetCopy(ctx context.Context, copyID int64) (CopyResponse, error) {
	c, err := s.store.GetCopy(ctx, copyID)
	if err != nil {
		return CopyResponse{}, err
	}
	return toCopyResponse(c), nil
}

func (s *Service) ListCopies(ctx context.Context, f Filter, p Page) (ListCopiesResult, error) {
	p = normalizePage(p)
	rows, total, err := s.store.ListCopies(ctx, f, p)
	if err != nil {
		return ListCopiesResult{}, err
	}
	items := make([]CopyResponse, 0, len(rows))
	for _, c := range rows {
		items = append(items, toCopyResponse(c))
	}
	next := p.Offset + p.Limit
	if next >= int(total) {
		next = 0
	} // 0=終端
	return ListCopiesResult{Items: items, Total: total, NextOffset: next}, nil
}

// AvailableCount は書誌ごとの貸出可能冊数（図書館で絞り込み可）
func (s *Service) AvailableCount(ctx context.Context, bookID int64, libraryID *int64) (AvailabilityResponse, error) {
	if bookID <= 0 {
		return AvailabilityResponse{}, circulation.ErrInvalid("book_id must be > 0")
	}
	available, total, err := s.store.CountCopies(ctx, bookID, libraryID)
	if err != nil {
		return AvailabilityResponse{}, err
	}
	return AvailabilityResponse{BookID: bookID, LibraryID: libraryID, Available: available, Total: total}, nil
}

// AddCopy は蔵書を受け入れる（職員のみ）。状態は available で始まる
func (s *Service) AddCopy(ctx context.Context, caller circulation.Caller, in CreateCopyRequest) (CopyResponse, error) {
	if !caller.IsStaff() {
		return CopyResponse{}, circulation.ErrUnauthorized("staff only")
	}
	in.InventoryNumber = strings.TrimSpace(in.InventoryNumber)
	if in.BookID <= 0 || in.LibraryID <= 0 || in.InventoryNumber == "" {
		return CopyResponse{}, circulation.ErrInvalid("book_id, library_id and inventory_number are required")
	}
	c, err := s.store.InsertCopy(ctx, circulation.BookCopy{
		BookID:          in.BookID,
		LibraryID:       in.LibraryID,
		InventoryNumber: in.InventoryNumber,
		AddedAt:         s.now(),
	})
	if err != nil {
		return CopyResponse{}, err
	}
	s.log.Info("copy added",
		zap.Int64("copy_id", c.ID),
		zap.Int64("book_id", c.BookID),
		zap.String("inventory_number", c.InventoryNumber),
		zap.String("by", caller.ID))
	return toCopyResponse(c), nil
}

// ExportLabels はラベル印刷用 CSV を作る（職員のみ）。戻り値は本文と Content-Type
func (s *Service) ExportLabels(ctx context.Context, caller circulation.Caller, f Filter, encodingName string) ([]byte, string, error) {
	if !caller.IsStaff() {
		return nil, "", circulation.ErrUnauthorized("staff only")
	}
	enc, contentType, ok := labelEncoding(encodingName)
	if !ok {
		return nil, "", circulation.ErrInvalid(fmt.Sprintf("unsupported encoding %q (cp932|utf-8|utf-16le)", encodingName))
	}
	rows, _, err := s.store.ListCopies(ctx, f, Page{Limit: maxLabelRows, Order: "asc"})
	if err != nil {
		return nil, "", err
	}
	var b bytes.Buffer
	if err := writeLabelsCSV(&b, rows, enc); err != nil {
		// CP932 で表せない文字など
		return nil, "", circulation.ErrInvalid("cannot encode labels: " + err.Error())
	}
	return b.Bytes(), contentType, nil
}
