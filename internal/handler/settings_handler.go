package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uni-ops/registrar-api/internal/service"
	appErrors "github.com/uni-ops/registrar-api/pkg/errors"
	"github.com/uni-ops/registrar-api/pkg/response"
)

// SettingsHandler exposes system settings endpoints.
type SettingsHandler struct {
	service *service.SettingsService
}

// NewSettingsHandler creates a new handler.
func NewSettingsHandler(svc *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{service: svc}
}

// GetMaintenance godoc
// @Summary Maintenance state
// @Description Report whether the system is in maintenance mode
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/settings/maintenance [get]
func (h *SettingsHandler) GetMaintenance(c *gin.Context) {
	state, err := h.service.Maintenance(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, state)
}

// SetMaintenance godoc
// @Summary Toggle maintenance mode
// @Description Enable or disable maintenance mode, freezing all writes
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body service.MaintenanceState true "Maintenance payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/settings/maintenance [put]
func (h *SettingsHandler) SetMaintenance(c *gin.Context) {
	var req service.MaintenanceState
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid maintenance payload"))
		return
	}

	if err := h.service.SetMaintenance(c.Request.Context(), req.MaintenanceMode); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
