package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tutortrack/tutor-admin-api/internal/service"
	"github.com/tutortrack/tutor-admin-api/pkg/response"
)

// ExportHandler exposes download endpoints.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// ConsumptionHistory godoc
// @Summary Export a student's consumption history
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Student ID"
// @Param package_id query string false "Filter by package"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /students/{id}/consumption-records/export [get]
func (h *ExportHandler) ConsumptionHistory(c *gin.Context) {
	file, err := h.exports.ConsumptionHistory(c.Request.Context(), c.Param("id"), c.Query("package_id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Content)
}
