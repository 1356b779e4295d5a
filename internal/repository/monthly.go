package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"nodewar-tracker/internal/domain"

	"github.com/rs/zerolog"
)

// MonthlyRepository persists MonthlyRecords keyed by (month, nick).
type MonthlyRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMonthlyRepository(sqlDB *sql.DB, logger zerolog.Logger) *MonthlyRepository {
	return &MonthlyRepository{db: sqlDB, logger: logger}
}

func (r *MonthlyRepository) Upsert(ctx context.Context, rec *domain.MonthlyRecord) error {
	rec.UpdatedAt = time.Now()
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal monthly record: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO monthly_records (month, nick, familia, guilda, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(month, nick) DO UPDATE SET
			familia = excluded.familia,
			guilda = excluded.guilda,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, rec.Month, rec.Nick, rec.Familia, rec.Guilda, string(payload), rec.UpdatedAt)
	return wrapWriteErr(err)
}

// UpsertBatch writes a whole month's worth of records in one transaction.
func (r *MonthlyRepository) UpsertBatch(ctx context.Context, records map[string]domain.MonthlyRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for nick := range records {
		rec := records[nick]
		rec.UpdatedAt = now
		payload, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("failed to marshal monthly record for %s: %w", nick, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO monthly_records (month, nick, familia, guilda, payload, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(month, nick) DO UPDATE SET
				familia = excluded.familia,
				guilda = excluded.guilda,
				payload = excluded.payload,
				updated_at = excluded.updated_at
		`, rec.Month, rec.Nick, rec.Familia, rec.Guilda, string(payload), rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert monthly record for %s: %w", nick, wrapWriteErr(err))
		}
	}

	return tx.Commit()
}

func (r *MonthlyRepository) Get(ctx context.Context, month, nick string) (*domain.MonthlyRecord, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `
		SELECT payload FROM monthly_records WHERE month = ? AND nick = ?
	`, month, nick).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: monthly record %s/%s", domain.ErrNotFound, month, nick)
	}
	if err != nil {
		return nil, err
	}

	var rec domain.MonthlyRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal monthly record: %w", err)
	}
	return &rec, nil
}

func (r *MonthlyRepository) GetByMonth(ctx context.Context, month string) ([]domain.MonthlyRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT payload FROM monthly_records WHERE month = ? ORDER BY nick
	`, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.MonthlyRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec domain.MonthlyRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal monthly record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PruneNotIn deletes the month's records for players missing from the
// current active set. Destructive, scoped to one month.
func (r *MonthlyRepository) PruneNotIn(ctx context.Context, month string, activeNicks []string) (int, error) {
	if len(activeNicks) == 0 {
		res, err := r.db.ExecContext(ctx, `DELETE FROM monthly_records WHERE month = ?`, month)
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		return int(n), nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(activeNicks)), ",")
	args := make([]interface{}, 0, len(activeNicks)+1)
	args = append(args, month)
	for _, nick := range activeNicks {
		args = append(args, nick)
	}

	query := fmt.Sprintf(`DELETE FROM monthly_records WHERE month = ? AND nick NOT IN (%s)`, placeholders)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.logger.Info().Str("month", month).Int64("pruned", n).Msg("inactive monthly players pruned")
	}
	return int(n), nil
}
