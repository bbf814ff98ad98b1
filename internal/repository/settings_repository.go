package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// settingsRowID pins the settings table to its single row.
const settingsRowID = 1

// SettingsRepository handles the single-row settings table.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository constructs the repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// IsMaintenanceMode reads the process-wide maintenance flag. A missing
// row reads as false.
func (r *SettingsRepository) IsMaintenanceMode(ctx context.Context) (bool, error) {
	const query = `SELECT maintenance_mode FROM settings WHERE id = $1`
	var enabled bool
	if err := r.db.GetContext(ctx, &enabled, query, settingsRowID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("read maintenance mode: %w", err)
	}
	return enabled, nil
}

// SetMaintenanceMode toggles the maintenance flag.
func (r *SettingsRepository) SetMaintenanceMode(ctx context.Context, enabled bool) error {
	const query = `INSERT INTO settings (id, maintenance_mode, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (id) DO UPDATE SET maintenance_mode = EXCLUDED.maintenance_mode, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, settingsRowID, enabled, time.Now().UTC()); err != nil {
		return fmt.Errorf("set maintenance mode: %w", err)
	}
	return nil
}
