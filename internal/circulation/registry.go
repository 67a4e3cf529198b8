package circulation

import (
	"context"
	"fmt"
	"sort"
	"strconv"
)

// Registry は蔵書の貸出可/貸出中を切り替える唯一の入口
type Registry struct{}

// Reserve: available → borrowed
func (Registry) Reserve(ctx context.Context, tx Tx, copyID int64) error {
	c, err := tx.LockCopy(ctx, copyID)
	if err != nil {
		return err
	}
	if c.Status != CopyAvailable {
		return ErrConflict("copy is not available", strconv.FormatInt(copyID, 10))
	}
	return tx.SetCopyStatus(ctx, copyID, CopyBorrowed)
}

// Release: borrowed → available。既に available なら何もしない
func (Registry) Release(ctx context.Context, tx Tx, copyID int64) error {
	c, err := tx.LockCopy(ctx, copyID)
	if err != nil {
		return err
	}
	if c.Status == CopyAvailable {
		return nil
	}
	return tx.SetCopyStatus(ctx, copyID, CopyAvailable)
}

// ReserveAll は ID 昇順で確保する。途中で失敗したら、この呼び出しで確保した分を戻してから
// 失敗した蔵書のエラーを返す
func (r Registry) ReserveAll(ctx context.Context, tx Tx, ids []int64) error {
	reserved := make([]int64, 0, len(ids))
	for _, id := range ascending(ids) {
		if err := r.Reserve(ctx, tx, id); err != nil {
			if uerr := r.ReleaseAll(ctx, tx, reserved); uerr != nil {
				return fmt.Errorf("unwind reservations after %v: %w", err, uerr)
			}
			return err
		}
		reserved = append(reserved, id)
	}
	return nil
}

func (r Registry) ReleaseAll(ctx context.Context, tx Tx, ids []int64) error {
	for _, id := range ascending(ids) {
		if err := r.Release(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

func ascending(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
