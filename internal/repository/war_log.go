package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nodewar-tracker/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// WarLogRepository persists ProcessedLogs. The nested matrices and stat
// tables are stored as a JSON payload column; the scalar columns exist for
// month filtering and listing.
type WarLogRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewWarLogRepository(sqlDB *sql.DB, logger zerolog.Logger) *WarLogRepository {
	return &WarLogRepository{db: sqlDB, logger: logger}
}

// Insert stores a ProcessedLog, assigning it a generated id and timestamp.
func (r *WarLogRepository) Insert(ctx context.Context, log *domain.ProcessedLog) (*domain.ProcessedLog, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nanoid: %w", err)
	}
	log.ID = id
	log.CreatedAt = time.Now()

	payload, err := json.Marshal(log)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal processed log: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO war_logs (id, month, territory, node_name, is_win, win_reason, degraded, total_node_seconds, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, log.ID, log.CreatedAt.Format("2006-01"), log.Territory, log.NodeName,
		nullableBool(log.IsWin), log.WinReason, log.Degraded, log.TotalNodeSeconds,
		string(payload), log.CreatedAt)
	if err != nil {
		return nil, wrapWriteErr(err)
	}

	r.logger.Info().Str("id", log.ID).Str("territory", log.Territory).Msg("war log stored")
	return log, nil
}

func (r *WarLogRepository) Get(ctx context.Context, id string) (*domain.ProcessedLog, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM war_logs WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: war log %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return unmarshalLog(payload)
}

// ListByMonth returns every stored log for a calendar month (format 2006-01),
// oldest first.
func (r *WarLogRepository) ListByMonth(ctx context.Context, month string) ([]domain.ProcessedLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT payload FROM war_logs WHERE month = ? ORDER BY created_at
	`, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.ProcessedLog
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		log, err := unmarshalLog(payload)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *log)
	}
	return logs, rows.Err()
}

func (r *WarLogRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM war_logs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: war log %s", domain.ErrNotFound, id)
	}
	r.logger.Info().Str("id", id).Msg("war log deleted")
	return nil
}

// UpdateTimeline rewrites a stored log's occupancy figures, used for
// post-hoc timeline corrections.
func (r *WarLogRepository) UpdateTimeline(ctx context.Context, id string, totalNodeSeconds int, occupancyByGuild map[string]int) (*domain.ProcessedLog, error) {
	log, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	log.TotalNodeSeconds = totalNodeSeconds
	log.OccupancyByGuild = occupancyByGuild

	payload, err := json.Marshal(log)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal processed log: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE war_logs SET total_node_seconds = ?, payload = ? WHERE id = ?
	`, totalNodeSeconds, string(payload), id)
	if err != nil {
		return nil, wrapWriteErr(err)
	}

	r.logger.Info().Str("id", id).Int("total_node_seconds", totalNodeSeconds).Msg("war log timeline updated")
	return log, nil
}

func unmarshalLog(payload string) (*domain.ProcessedLog, error) {
	var log domain.ProcessedLog
	if err := json.Unmarshal([]byte(payload), &log); err != nil {
		return nil, fmt.Errorf("failed to unmarshal processed log: %w", err)
	}
	return &log, nil
}

func nullableBool(b *bool) interface{} {
	if b == nil {
		return nil
	}
	return *b
}

func wrapWriteErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}
