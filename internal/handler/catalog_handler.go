package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uni-ops/registrar-api/internal/service"
	appErrors "github.com/uni-ops/registrar-api/pkg/errors"
	"github.com/uni-ops/registrar-api/pkg/response"
)

// CatalogHandler exposes the course catalog and the admin course and
// section management endpoints.
type CatalogHandler struct {
	service *service.CatalogService
}

// NewCatalogHandler creates a new handler.
func NewCatalogHandler(svc *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{service: svc}
}

// GetCatalog godoc
// @Summary Course catalog
// @Description List all courses with their sections and live seat availability
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /catalog [get]
func (h *CatalogHandler) GetCatalog(c *gin.Context) {
	catalog, err := h.service.GetCourseCatalog(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, catalog)
}

// ListSections godoc
// @Summary List sections
// @Description List every section with live seat availability
// @Tags Catalog
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/sections [get]
func (h *CatalogHandler) ListSections(c *gin.Context) {
	sections, err := h.service.ListSections(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, sections)
}

// CreateCourse godoc
// @Summary Create course
// @Description Register a new course in the catalog
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body service.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/courses [post]
func (h *CatalogHandler) CreateCourse(c *gin.Context) {
	var req service.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}

	course, err := h.service.CreateCourse(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, course)
}

// CreateSection godoc
// @Summary Create section
// @Description Open a new section of an existing course
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body service.CreateSectionRequest true "Section payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/sections [post]
func (h *CatalogHandler) CreateSection(c *gin.Context) {
	var req service.CreateSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid section payload"))
		return
	}

	section, err := h.service.CreateSection(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, section)
}

// AssignInstructor godoc
// @Summary Assign instructor
// @Description Assign or clear the instructor of a section
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Section ID"
// @Param payload body service.AssignInstructorRequest true "Instructor payload"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/sections/{id}/instructor [put]
func (h *CatalogHandler) AssignInstructor(c *gin.Context) {
	var req service.AssignInstructorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid instructor payload"))
		return
	}

	if err := h.service.AssignInstructor(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// DeleteSection godoc
// @Summary Delete section
// @Description Remove a section from the catalog
// @Tags Catalog
// @Produce json
// @Param id path string true "Section ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/sections/{id} [delete]
func (h *CatalogHandler) DeleteSection(c *gin.Context) {
	if err := h.service.DeleteSection(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
