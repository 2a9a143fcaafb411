package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
)

// RecordRepository reads and writes the record documents table.
type RecordRepository struct {
	db       *sqlx.DB
	validate *validator.Validate
	logger   *zap.Logger

	selectAll  string
	setStatus  string
	setFlag    string
	setStep    string
	hideOne    string
	hideMany   string
	countTotal string
}

// NewRecordRepository builds a repository bound to the given table.
func NewRecordRepository(db *sqlx.DB, table string, logger *zap.Logger) *RecordRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if table == "" {
		table = "pays"
	}
	t := pq.QuoteIdentifier(table)
	return &RecordRepository{
		db:         db,
		validate:   validator.New(),
		logger:     logger,
		selectAll:  fmt.Sprintf(`SELECT id, created_date, status, step, flag_color, current_page, is_hidden, data FROM %s ORDER BY id`, t),
		setStatus:  fmt.Sprintf(`UPDATE %s SET status = $2, updated_at = $3 WHERE id = $1`, t),
		setFlag:    fmt.Sprintf(`UPDATE %s SET flag_color = $2, updated_at = $3 WHERE id = $1`, t),
		setStep:    fmt.Sprintf(`UPDATE %s SET step = $2, updated_at = $3 WHERE id = $1`, t),
		hideOne:    fmt.Sprintf(`UPDATE %s SET is_hidden = TRUE, updated_at = $2 WHERE id = $1`, t),
		hideMany:   fmt.Sprintf(`UPDATE %s SET is_hidden = TRUE, updated_at = $2 WHERE id = ANY($1)`, t),
		countTotal: fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE is_hidden = FALSE`, t),
	}
}

// ListSnapshot loads every document of the table, hidden ones included, as a single
// consistent emission. Rows that fail decoding are skipped and counted.
func (r *RecordRepository) ListSnapshot(ctx context.Context) ([]models.SnapshotEntry, int, error) {
	var docs []models.RecordDocument
	if err := r.db.SelectContext(ctx, &docs, r.selectAll); err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}

	entries := make([]models.SnapshotEntry, 0, len(docs))
	dropped := 0
	for _, doc := range docs {
		rec, ok := r.decode(doc)
		if !ok {
			dropped++
			continue
		}
		entries = append(entries, models.SnapshotEntry{Record: rec, Hidden: doc.IsHidden})
	}
	// created_date is free text, so newest-first is decided on the parsed value.
	// Equal timestamps keep the id order of the query.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt().After(entries[j].CreatedAt())
	})
	return entries, dropped, nil
}

// decode normalises a stored row at the feed boundary. Unknown flag colours become
// unset, negative steps become 0, rows without an id or with a broken payload are rejected.
func (r *RecordRepository) decode(doc models.RecordDocument) (models.Record, bool) {
	rec, err := doc.Decode()
	if err != nil {
		r.logger.Warn("drop undecodable record", zap.String("id", doc.ID), zap.Error(err))
		return models.Record{}, false
	}

	if err := r.validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			r.logger.Warn("drop invalid record", zap.String("id", doc.ID), zap.Error(err))
			return models.Record{}, false
		}
		for _, fe := range verrs {
			switch fe.Field() {
			case "FlagColor":
				rec.FlagColor = models.FlagNone
			case "Step":
				rec.Step = 0
			default:
				r.logger.Warn("drop invalid record", zap.String("id", doc.ID), zap.String("field", fe.Field()))
				return models.Record{}, false
			}
		}
	}
	return rec, true
}

// CountVisible returns the number of rows that are not hidden.
func (r *RecordRepository) CountVisible(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, r.countTotal); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return total, nil
}

// UpdateStatus writes the status field of one record.
func (r *RecordRepository) UpdateStatus(ctx context.Context, id, status string) error {
	return r.execOne(ctx, "update status", r.setStatus, id, status, time.Now().UTC())
}

// UpdateFlagColor writes the flag colour, clearing it when color is nil.
func (r *RecordRepository) UpdateFlagColor(ctx context.Context, id string, color *models.FlagColor) error {
	value := sql.NullString{}
	if color != nil && *color != models.FlagNone {
		value = sql.NullString{String: string(*color), Valid: true}
	}
	return r.execOne(ctx, "update flag color", r.setFlag, id, value, time.Now().UTC())
}

// UpdateStep writes the workflow step of one record.
func (r *RecordRepository) UpdateStep(ctx context.Context, id string, step int) error {
	return r.execOne(ctx, "update step", r.setStep, id, step, time.Now().UTC())
}

// Hide marks one record as soft-deleted.
func (r *RecordRepository) Hide(ctx context.Context, id string) error {
	return r.execOne(ctx, "hide record", r.hideOne, id, time.Now().UTC())
}

// HideMany hides every listed record in one transaction. Either all rows are hidden or none.
func (r *RecordRepository) HideMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin hide records: %w", err)
	}

	res, err := tx.ExecContext(ctx, r.hideMany, pq.Array(ids), time.Now().UTC())
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("hide records: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("hide records rows affected: %w", err)
	}
	if affected != int64(len(ids)) {
		_ = tx.Rollback()
		return fmt.Errorf("hide records: %d of %d rows matched: %w", affected, len(ids), sql.ErrNoRows)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit hide records: %w", err)
	}
	return nil
}

func (r *RecordRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
