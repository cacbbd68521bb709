package api

import (
	"log/slog"
	"net"
	"strconv"

	"github.com/burenotti/go_course_backend/internal/adapter/storage"
	"github.com/burenotti/go_course_backend/internal/app/auth"
	batchservice "github.com/burenotti/go_course_backend/internal/app/batch"
	enrollmentservice "github.com/burenotti/go_course_backend/internal/app/enrollment"
	"github.com/burenotti/go_course_backend/internal/app/unitofwork"
)

type Option func(*Server)

func Addr(host string, port int) Option {
	return func(s *Server) {
		s.addr = net.JoinHostPort(host, strconv.Itoa(port))
	}
}

func Logger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func DBContext(db storage.Beginner) Option {
	return func(s *Server) {
		s.db = db
	}
}

func Authorizer(a *auth.Authorizer) Option {
	return func(s *Server) {
		s.authorizer = a
	}
}

func BatchService(service *batchservice.Service, newContext batchservice.ContextFactory) Option {
	return func(s *Server) {
		s.batchService = service
		s.batchContext = newContext
	}
}

func EnrollmentService(service *enrollmentservice.Service, newContext enrollmentservice.ContextFactory) Option {
	return func(s *Server) {
		s.enrollmentService = service
		s.enrollmentContext = newContext
	}
}

func MessageBus(bus unitofwork.MessageBus) Option {
	return func(s *Server) {
		s.msgBus = bus
	}
}
