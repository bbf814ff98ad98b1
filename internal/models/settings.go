package models

import "time"

// Settings is the single-row table of process-wide switches. The
// maintenance flag disables every mutating operation while leaving
// reads available.
type Settings struct {
	ID              int       `db:"id" json:"id"`
	MaintenanceMode bool      `db:"maintenance_mode" json:"maintenance_mode"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
