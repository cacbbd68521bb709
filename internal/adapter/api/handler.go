package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/burenotti/go_course_backend/internal/adapter/storage"
	"github.com/burenotti/go_course_backend/internal/app/auth"
	batchservice "github.com/burenotti/go_course_backend/internal/app/batch"
	enrollmentservice "github.com/burenotti/go_course_backend/internal/app/enrollment"
	"github.com/burenotti/go_course_backend/internal/app/unitofwork"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	slogecho "github.com/samber/slog-echo"
)

type Server struct {
	handler           *echo.Echo
	logger            *slog.Logger
	addr              string
	db                storage.Beginner
	authorizer        *auth.Authorizer
	batchService      *batchservice.Service
	batchContext      batchservice.ContextFactory
	enrollmentService *enrollmentservice.Service
	enrollmentContext enrollmentservice.ContextFactory
	msgBus            unitofwork.MessageBus
	validator         *validator.Validate
}

func NewServer(opt ...Option) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Server.WriteTimeout = 10 * time.Second
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.IdleTimeout = 10 * time.Second
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.MaxHeaderBytes = 4096

	v := validator.New(validator.WithRequiredStructEnabled())

	s := &Server{
		handler:   e,
		validator: v,
		logger:    slog.Default(),
	}

	for _, opt := range opt {
		opt(s)
	}

	e.Use(slogecho.NewWithConfig(s.logger, slogecho.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelInfo,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
		WithSpanID:       true,
		WithTraceID:      true,
	}))
	e.Use(ClientInfo())
	s.Mount()
	return s
}

func (s *Server) Mount() {
	s.MountBatches()
	s.MountEnrollments()
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() *echo.Echo {
	return s.handler
}

func (s *Server) Start() error {
	return s.handler.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.handler.Shutdown(ctx)
}

func (s *Server) getBatchUoW() *unitofwork.UnitOfWork[*batchservice.AtomicContext] {
	return unitofwork.New[*batchservice.AtomicContext](
		s.db,
		s.batchContext,
		s.msgBus,
		s.logger,
	)
}

func (s *Server) getEnrollmentUoW() *unitofwork.UnitOfWork[*enrollmentservice.AtomicContext] {
	return unitofwork.New[*enrollmentservice.AtomicContext](
		s.db,
		s.enrollmentContext,
		s.msgBus,
		s.logger,
	)
}

func (s *Server) bind(ctx echo.Context, i interface{}) error {
	if err := ctx.Bind(i); err != nil {
		return fmt.Errorf("bad request")
	}
	if err := s.validator.Struct(i); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return fmt.Errorf("bad request")
		}
		return fmt.Errorf("%s: %s", errs[0].Field(), errs[0].Error())

	}
	return nil
}
