package catalog

import (
	"time"

	"library-circulation/internal/circulation"
)

// ===== Requests =====

type CreateCopyRequest struct {
	BookID          int64  `json:"book_id"          binding:"required,gt=0"`
	LibraryID       int64  `json:"library_id"       binding:"required,gt=0"`
	InventoryNumber string `json:"inventory_number" binding:"required,max=50"`
}

// 蔵書一覧の絞り込み（nil は条件なし）
type Filter struct {
	BookID    *int64
	LibraryID *int64
	Status    *circulation.CopyStatus
}

type Page struct {
	Limit  int
	Offset int
	Order  string // asc | desc（copy_id 順）
}

// ===== Responses =====

type CopyResponse struct {
	CopyID          int64                  `json:"copy_id"`
	BookID          int64                  `json:"book_id"`
	LibraryID       int64                  `json:"library_id"`
	Status          circulation.CopyStatus `json:"status"`
	InventoryNumber string                 `json:"inventory_number"`
	AddedAt         time.Time              `json:"added_at"`
}

type ListCopiesResult struct {
	Items      []CopyResponse `json:"items"`
	Total      int64          `json:"total"`
	NextOffset int            `json:"next_offset"`
}

type AvailabilityResponse struct {
	BookID    int64  `json:"book_id"`
	LibraryID *int64 `json:"library_id,omitempty"`
	Available int    `json:"available"`
	Total     int    `json:"total"`
}

func toCopyResponse(c circulation.BookCopy) CopyResponse {
	return CopyResponse{
		CopyID:          c.ID,
		BookID:          c.BookID,
		LibraryID:       c.LibraryID,
		Status:          c.Status,
		InventoryNumber: c.InventoryNumber,
		AddedAt:         c.AddedAt,
	}
}
