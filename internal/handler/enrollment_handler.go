package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uni-ops/registrar-api/internal/service"
	appErrors "github.com/uni-ops/registrar-api/pkg/errors"
	"github.com/uni-ops/registrar-api/pkg/response"
)

// EnrollmentHandler wires HTTP endpoints to the enrollment service.
type EnrollmentHandler struct {
	service *service.EnrollmentService
	metrics *service.MetricsService
}

// NewEnrollmentHandler creates a new handler.
func NewEnrollmentHandler(svc *service.EnrollmentService, metrics *service.MetricsService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc, metrics: metrics}
}

// Register godoc
// @Summary Register for a section
// @Description Enroll the authenticated student into a section
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Register(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		SectionID string `json:"section_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}

	enrollment, err := h.service.Register(c.Request.Context(), service.RegisterRequest{
		StudentID: claims.UserID,
		SectionID: payload.SectionID,
	})
	if err != nil {
		h.metrics.RecordRegistration("rejected")
		response.Error(c, err)
		return
	}

	h.metrics.RecordRegistration("success")
	response.Created(c, enrollment)
}

// Drop godoc
// @Summary Drop a section
// @Description Drop the authenticated student's registration in a section
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.DropRequest true "Drop payload"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments/drop [post]
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.DropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid drop payload"))
		return
	}

	if err := h.service.Drop(c.Request.Context(), claims.UserID, claims.UserID, req.SectionID); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
