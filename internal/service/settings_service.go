package service

import (
	"context"

	"go.uber.org/zap"

	appErrors "github.com/uni-ops/registrar-api/pkg/errors"
)

type settingsStore interface {
	IsMaintenanceMode(ctx context.Context) (bool, error)
	SetMaintenanceMode(ctx context.Context, enabled bool) error
}

// MaintenanceState is the settings payload exposed to admins.
type MaintenanceState struct {
	MaintenanceMode bool `json:"maintenance_mode"`
}

// SettingsService exposes the process-wide maintenance switch.
type SettingsService struct {
	repo   settingsStore
	logger *zap.Logger
}

// NewSettingsService constructs SettingsService.
func NewSettingsService(repo settingsStore, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{repo: repo, logger: logger}
}

// Maintenance returns the current maintenance flag.
func (s *SettingsService) Maintenance(ctx context.Context) (*MaintenanceState, error) {
	enabled, err := s.repo.IsMaintenanceMode(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read settings")
	}
	return &MaintenanceState{MaintenanceMode: enabled}, nil
}

// SetMaintenance toggles maintenance mode. In-flight writes are not
// aborted; only new mutating calls observe the change.
func (s *SettingsService) SetMaintenance(ctx context.Context, enabled bool) error {
	if err := s.repo.SetMaintenanceMode(ctx, enabled); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update settings")
	}
	s.logger.Info("maintenance mode toggled", zap.Bool("enabled", enabled))
	return nil
}
