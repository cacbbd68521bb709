package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/burenotti/go_course_backend/internal/domain"
	"github.com/labstack/echo/v4"
)

type JsonErrorModel struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func JsonError(c echo.Context, status int, content any) error {
	data := &JsonErrorModel{Message: fmt.Sprintf("%v", content)}
	return c.JSON(status, data)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrDependency):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DomainError answers with the status matching the error kind and the error code.
// Messages of infrastructure failures are not exposed.
func (s *Server) DomainError(c echo.Context, err error) error {
	status := statusOf(err)

	var de *domain.Error
	if errors.As(err, &de) {
		return c.JSON(status, &JsonErrorModel{Code: de.Code, Message: de.Message})
	}

	s.logger.Error("request failed", "path", c.Path(), "error", err)
	if status == http.StatusServiceUnavailable {
		return c.JSON(status, &JsonErrorModel{Code: "SERVICE_UNAVAILABLE", Message: "dependency unavailable"})
	}
	return c.JSON(status, &JsonErrorModel{Code: "INTERNAL_ERROR", Message: "internal error"})
}
