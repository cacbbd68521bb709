package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type BatchPathRequest struct {
	BatchID  string `param:"batch_id" validate:"required"`
	CourseID string `json:"course_id" validate:"required"`
}

type SelfEnrollRequest struct {
	BatchPathRequest
	UserID string `json:"user_id"`
}

type ParticipantsRequest struct {
	BatchPathRequest
	UserIDs []string `json:"user_ids" validate:"required,min=1,max=500,dive,required"`
}

type ParticipantsResultResponse struct {
	Results map[string]string `json:"results"`
}

type GetParticipantsRequest struct {
	BatchID string `param:"batch_id" validate:"required"`
	Active  string `query:"active" validate:"omitempty,oneof=true false"`
}

type ParticipantsResponse struct {
	Count        int      `json:"count"`
	Participants []string `json:"participants"`
}

func (s *Server) MountEnrollments() {
	g := s.handler.Group("/batches/:batch_id", LoginRequired(s.authorizer))
	g.GET("/participants", s.handleGetParticipants)
	g.POST("/participants", s.handleAddParticipants)
	g.POST("/participants/remove", s.handleRemoveParticipants)
	g.POST("/enroll", s.handleEnroll)
	g.POST("/unenroll", s.handleUnenroll)
}

func (s *Server) bindSelf(c echo.Context) (*SelfEnrollRequest, error) {
	var req SelfEnrollRequest
	if err := s.bind(c, &req); err != nil {
		return nil, err
	}
	// An omitted user id means the caller acts on their own enrollment.
	if req.UserID == "" {
		req.UserID = requester(c)
	}
	return &req, nil
}

func (s *Server) handleEnroll(c echo.Context) error {
	req, err := s.bindSelf(c)
	if err != nil {
		return JsonError(c, http.StatusBadRequest, err.Error())
	}

	err = s.enrollmentService.Enroll(
		c.Request().Context(), s.getEnrollmentUoW(),
		req.CourseID, req.BatchID, req.UserID, requester(c),
	)
	if err != nil {
		return s.DomainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleUnenroll(c echo.Context) error {
	req, err := s.bindSelf(c)
	if err != nil {
		return JsonError(c, http.StatusBadRequest, err.Error())
	}

	err = s.enrollmentService.Unenroll(
		c.Request().Context(), s.getEnrollmentUoW(),
		req.CourseID, req.BatchID, req.UserID, requester(c),
	)
	if err != nil {
		return s.DomainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAddParticipants(c echo.Context) error {
	var req ParticipantsRequest
	if err := s.bind(c, &req); err != nil {
		return JsonError(c, http.StatusBadRequest, err.Error())
	}

	results, err := s.enrollmentService.AddParticipants(
		c.Request().Context(), s.getEnrollmentUoW(),
		req.CourseID, req.BatchID, requester(c), req.UserIDs,
	)
	if err != nil {
		return s.DomainError(c, err)
	}
	return c.JSON(http.StatusOK, ParticipantsResultResponse{Results: results})
}

func (s *Server) handleRemoveParticipants(c echo.Context) error {
	var req ParticipantsRequest
	if err := s.bind(c, &req); err != nil {
		return JsonError(c, http.StatusBadRequest, err.Error())
	}

	results, err := s.enrollmentService.RemoveParticipants(
		c.Request().Context(), s.getEnrollmentUoW(),
		req.CourseID, req.BatchID, requester(c), req.UserIDs,
	)
	if err != nil {
		return s.DomainError(c, err)
	}
	return c.JSON(http.StatusOK, ParticipantsResultResponse{Results: results})
}

func (s *Server) handleGetParticipants(c echo.Context) error {
	var req GetParticipantsRequest
	if err := s.bind(c, &req); err != nil {
		return JsonError(c, http.StatusBadRequest, err.Error())
	}
	activeOnly := req.Active != "false"

	participants, err := s.enrollmentService.GetParticipants(c.Request().Context(), req.BatchID, activeOnly)
	if err != nil {
		return s.DomainError(c, err)
	}
	ids := participants.ParticipantIDs
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(http.StatusOK, ParticipantsResponse{Count: participants.Count, Participants: ids})
}
