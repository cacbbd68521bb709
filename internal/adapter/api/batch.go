package api

import (
	"net/http"
	"time"

	batchservice "github.com/burenotti/go_course_backend/internal/app/batch"
	"github.com/burenotti/go_course_backend/internal/domain/batch"
	"github.com/labstack/echo/v4"
)

type BatchModel struct {
	BatchID           string    `json:"batch_id"`
	CourseID          string    `json:"course_id"`
	CourseName        string    `json:"course_name,omitempty"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	EnrollmentType    string    `json:"enrollment_type"`
	Status            string    `json:"status"`
	StartDate         string    `json:"start_date"`
	EndDate           string    `json:"end_date,omitempty"`
	EnrollmentEndDate string    `json:"enrollment_end_date,omitempty"`
	CreatedBy         string    `json:"created_by"`
	CreatedFor        []string  `json:"created_for"`
	Mentors           []string  `json:"mentors"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func batchModel(s batch.Snapshot) BatchModel {
	return BatchModel{
		BatchID:           s.BatchID,
		CourseID:          s.CourseID,
		CourseName:        s.CourseName,
		Name:              s.Name,
		Description:       s.Description,
		EnrollmentType:    string(s.EnrollmentType),
		Status:            s.Status.String(),
		StartDate:         batch.FormatDate(s.StartDate),
		EndDate:           batch.FormatDate(s.EndDate),
		EnrollmentEndDate: batch.FormatDate(s.EnrollmentEndDate),
		CreatedBy:         s.CreatedBy,
		CreatedFor:        s.CreatedFor,
		Mentors:           s.Mentors,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

type CreateBatchRequest struct {
	CourseID          string   `json:"course_id" validate:"required"`
	Name              string   `json:"name" validate:"required,max=256"`
	Description       string   `json:"description" validate:"max=4096"`
	EnrollmentType    string   `json:"enrollment_type" validate:"required,oneof=open invite-only"`
	StartDate         string   `json:"start_date" validate:"required"`
	EndDate           string   `json:"end_date"`
	EnrollmentEndDate string   `json:"enrollment_end_date"`
	CreatedFor        []string `json:"created_for" validate:"required,min=1,dive,required"`
	Mentors           []string `json:"mentors" validate:"dive,required"`
	Participants      []string `json:"participants"`
}

type CreateBatchResponse struct {
	BatchID string `json:"batch_id"`
}

type UpdateBatchRequest struct {
	BatchID           string   `param:"batch_id" validate:"required"`
	CourseID          string   `json:"course_id" validate:"required"`
	Name              *string  `json:"name" validate:"omitnil,min=1,max=256"`
	Description       *string  `json:"description" validate:"omitnil,max=4096"`
	EnrollmentType    *string  `json:"enrollment_type" validate:"omitnil,oneof=open invite-only"`
	StartDate         *string  `json:"start_date"`
	EndDate           *string  `json:"end_date"`
	EnrollmentEndDate *string  `json:"enrollment_end_date"`
	CreatedFor        []string `json:"created_for" validate:"omitnil,min=1,dive,required"`
	Mentors           []string `json:"mentors" validate:"omitnil,dive,required"`
	Participants      []string `json:"participants"`
}

type GetBatchRequest struct {
	BatchID string `param:"batch_id" validate:"required"`
}

func (s *Server) MountBatches() {
	g := s.handler.Group("/batches", LoginRequired(s.authorizer))
	g.POST("", s.handleCreateBatch)
	g.PATCH("/:batch_id", s.handleUpdateBatch)
	g.GET("/:batch_id", s.handleGetBatch)
}

func (s *Server) handleCreateBatch(c echo.Context) error {
	var req CreateBatchRequest
	if err := s.bind(c, &req); err != nil {
		return JsonError(c, http.StatusBadRequest, err.Error())
	}

	batchID, err := s.batchService.Create(c.Request().Context(), s.getBatchUoW(), batchservice.CreateRequest{
		CourseID:          req.CourseID,
		Name:              req.Name,
		Description:       req.Description,
		EnrollmentType:    batch.EnrollmentType(req.EnrollmentType),
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		EnrollmentEndDate: req.EnrollmentEndDate,
		CreatedBy:         requester(c),
		CreatedFor:        req.CreatedFor,
		Mentors:           req.Mentors,
		Participants:      req.Participants,
	})
	if err != nil {
		return s.DomainError(c, err)
	}
	return c.JSON(http.StatusCreated, CreateBatchResponse{BatchID: batchID})
}

func (s *Server) handleUpdateBatch(c echo.Context) error {
	var req UpdateBatchRequest
	if err := s.bind(c, &req); err != nil {
		return JsonError(c, http.StatusBadRequest, err.Error())
	}

	update := batchservice.UpdateRequest{
		CourseID:          req.CourseID,
		BatchID:           req.BatchID,
		RequestedBy:       requester(c),
		Name:              req.Name,
		Description:       req.Description,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		EnrollmentEndDate: req.EnrollmentEndDate,
		CreatedFor:        req.CreatedFor,
		Mentors:           req.Mentors,
		Participants:      req.Participants,
	}
	if req.EnrollmentType != nil {
		t := batch.EnrollmentType(*req.EnrollmentType)
		update.EnrollmentType = &t
	}

	ctx := c.Request().Context()
	if err := s.batchService.Update(ctx, s.getBatchUoW(), update); err != nil {
		return s.DomainError(c, err)
	}

	snapshot, err := s.batchService.GetBatch(ctx, req.BatchID)
	if err != nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, batchModel(snapshot))
}

func (s *Server) handleGetBatch(c echo.Context) error {
	var req GetBatchRequest
	if err := s.bind(c, &req); err != nil {
		return JsonError(c, http.StatusBadRequest, err.Error())
	}

	snapshot, err := s.batchService.GetBatch(c.Request().Context(), req.BatchID)
	if err != nil {
		return s.DomainError(c, err)
	}
	return c.JSON(http.StatusOK, batchModel(snapshot))
}
