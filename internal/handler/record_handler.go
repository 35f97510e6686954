package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tutortrack/tutor-admin-api/internal/service"
	appErrors "github.com/tutortrack/tutor-admin-api/pkg/errors"
	"github.com/tutortrack/tutor-admin-api/pkg/response"
)

// RecordHandler exposes consumption and class record endpoints.
type RecordHandler struct {
	consumptions *service.ConsumptionService
	classes      *service.ClassRecordService
}

// NewRecordHandler constructs RecordHandler.
func NewRecordHandler(consumptions *service.ConsumptionService, classes *service.ClassRecordService) *RecordHandler {
	return &RecordHandler{consumptions: consumptions, classes: classes}
}

// ListConsumptions godoc
// @Summary List a student's consumption records
// @Tags Records
// @Produce json
// @Param id path string true "Student ID"
// @Param package_id query string false "Filter by package"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/consumption-records [get]
func (h *RecordHandler) ListConsumptions(c *gin.Context) {
	records, err := h.consumptions.List(c.Request.Context(), c.Param("id"), c.Query("package_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// SubmitConsumption godoc
// @Summary Record a consumption against a package
// @Tags Records
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.SubmitConsumptionRequest true "Consumption payload"
// @Success 201 {object} response.Envelope
// @Router /students/{id}/consumption-records [post]
func (h *RecordHandler) SubmitConsumption(c *gin.Context) {
	var req service.SubmitConsumptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.StudentID = c.Param("id")
	result, err := h.consumptions.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ListClassRecords godoc
// @Summary List a student's class records
// @Tags Records
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/class-records [get]
func (h *RecordHandler) ListClassRecords(c *gin.Context) {
	records, err := h.classes.ListByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// CreateClassRecord godoc
// @Summary Log a delivered lesson
// @Tags Records
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.CreateClassRecordRequest true "Class record payload"
// @Success 201 {object} response.Envelope
// @Router /students/{id}/class-records [post]
func (h *RecordHandler) CreateClassRecord(c *gin.Context) {
	var req service.CreateClassRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.StudentID = c.Param("id")
	record, err := h.classes.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}
