package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"library-circulation/internal/circulation"
)

const mysqlErrDuplicateEntry = 1062

var dialect = goqu.Dialect("mysql")

var copyColumns = []any{"copy_id", "book_id", "library_id", "status", "inventory_number", "added_at"}

type MySQLStore struct {
	db *sqlx.DB
}

func NewMySQLStore(db *sqlx.DB) *MySQLStore { return &MySQLStore{db: db} }

func (s *MySQLStore) GetCopy(ctx context.Context, copyID int64) (circulation.BookCopy, error) {
	q, args, err := dialect.From("book_copies").Prepared(true).
		Select(copyColumns...).
		Where(goqu.C("copy_id").Eq(copyID)).
		ToSQL()
	if err != nil {
		return circulation.BookCopy{}, fmt.Errorf("build copy query: %w", err)
	}
	var c circulation.BookCopy
	if err := s.db.GetContext(ctx, &c, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return circulation.BookCopy{}, circulation.ErrNotFound("copy not found", strconv.FormatInt(copyID, 10))
		}
		return circulation.BookCopy{}, fmt.Errorf("select copy: %w", err)
	}
	return c, nil
}

func filtered(f Filter) *goqu.SelectDataset {
	ds := dialect.From("book_copies").Prepared(true)
	if f.BookID != nil {
		ds = ds.Where(goqu.C("book_id").Eq(*f.BookID))
	}
	if f.LibraryID != nil {
		ds = ds.Where(goqu.C("library_id").Eq(*f.LibraryID))
	}
	if f.Status != nil {
		ds = ds.Where(goqu.C("status").Eq(string(*f.Status)))
	}
	return ds
}

func (s *MySQLStore) ListCopies(ctx context.Context, f Filter, p Page) ([]circulation.BookCopy, int64, error) {
	p = normalizePage(p)
	ds := filtered(f)

	order := goqu.C("copy_id").Desc()
	if p.Order == "asc" {
		order = goqu.C("copy_id").Asc()
	}
	q, args, err := ds.Select(copyColumns...).Order(order).Limit(uint(p.Limit)).Offset(uint(p.Offset)).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}
	list := []circulation.BookCopy{}
	if err := s.db.SelectContext(ctx, &list, q, args...); err != nil {
		return nil, 0, fmt.Errorf("select copies: %w", err)
	}

	// 総件数（同じ絞り込み）
	cq, cargs, err := ds.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int64
	if err := s.db.GetContext(ctx, &total, cq, cargs...); err != nil {
		return nil, 0, fmt.Errorf("count copies: %w", err)
	}
	return list, total, nil
}

func (s *MySQLStore) CountCopies(ctx context.Context, bookID int64, libraryID *int64) (int, int, error) {
	q, args, err := filtered(Filter{BookID: &bookID, LibraryID: libraryID}).
		Select(
			goqu.L("COALESCE(SUM(status = 'available'), 0)").As("available"),
			goqu.COUNT(goqu.Star()).As("total"),
		).
		ToSQL()
	if err != nil {
		return 0, 0, fmt.Errorf("build availability query: %w", err)
	}
	var row struct {
		Available int `db:"available"`
		Total     int `db:"total"`
	}
	if err := s.db.GetContext(ctx, &row, q, args...); err != nil {
		return 0, 0, fmt.Errorf("count availability: %w", err)
	}
	return row.Available, row.Total, nil
}

func (s *MySQLStore) InsertCopy(ctx context.Context, c circulation.BookCopy) (circulation.BookCopy, error) {
	c.Status = circulation.CopyAvailable
	q, args, err := dialect.Insert("book_copies").Prepared(true).
		Rows(goqu.Record{
			"book_id":          c.BookID,
			"library_id":       c.LibraryID,
			"status":           string(c.Status),
			"inventory_number": c.InventoryNumber,
			"added_at":         c.AddedAt,
		}).
		ToSQL()
	if err != nil {
		return circulation.BookCopy{}, fmt.Errorf("build insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlErrDuplicateEntry {
			return circulation.BookCopy{}, circulation.ErrConflict("inventory number already registered", c.InventoryNumber)
		}
		return circulation.BookCopy{}, fmt.Errorf("insert copy: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return circulation.BookCopy{}, fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	return c, nil
}
