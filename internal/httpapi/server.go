// Package httpapi exposes the attempt lifecycle over HTTP. Identity arrives
// from the platform gateway in headers; this layer is deliberately thin and
// owns no business rules beyond payload shape checks.
package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/talentroute/assessd/internal/attempt"
	"github.com/talentroute/assessd/internal/entitlement"
	"github.com/talentroute/assessd/internal/recommend"
)

const (
	// HeaderSubjectID carries the authenticated subject id, set by the
	// platform gateway.
	HeaderSubjectID = "X-Subject-Id"
	// HeaderSubjectAge optionally carries the subject's age for package
	// entitlement bounds.
	HeaderSubjectAge = "X-Subject-Age"
)

// Server hosts the HTTP surface over the attempt service.
type Server struct {
	e          *echo.Echo
	svc        *attempt.Service
	dispatcher *recommend.Dispatcher
	validate   *validator.Validate
	logger     *zap.Logger
}

// New builds the server and its routes.
func New(svc *attempt.Service, dispatcher *recommend.Dispatcher, logger *zap.Logger) *Server {
	s := &Server{
		e:          echo.New(),
		svc:        svc,
		dispatcher: dispatcher,
		validate:   validator.New(),
		logger:     logger,
	}
	s.e.HideBanner = true
	s.e.HidePort = true

	s.e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, "OK")
	})

	s.e.POST("/attempts", s.startAttempt)
	s.e.GET("/attempts", s.listAttempts)
	s.e.GET("/attempts/:id", s.getAttempt)
	s.e.POST("/attempts/:id/responses", s.saveResponse)
	s.e.POST("/attempts/:id/submit", s.submitAttempt)
	s.e.GET("/attempts/:id/recommendation", s.getRecommendation)

	s.e.GET("/operator/attempts/pending", s.listPending)
	s.e.POST("/operator/attempts/:id/dispatch", s.redispatch)

	return s
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	err := s.e.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func subjectFrom(c echo.Context) (entitlement.Subject, error) {
	id := c.Request().Header.Get(HeaderSubjectID)
	if id == "" {
		return entitlement.Subject{}, echo.NewHTTPError(http.StatusUnauthorized, "missing "+HeaderSubjectID+" header")
	}
	subject := entitlement.Subject{ID: id}
	if raw := c.Request().Header.Get(HeaderSubjectAge); raw != "" {
		age, err := strconv.Atoi(raw)
		if err != nil || age < 0 {
			return entitlement.Subject{}, echo.NewHTTPError(http.StatusBadRequest, "malformed "+HeaderSubjectAge+" header")
		}
		subject.Age = age
	}
	return subject, nil
}

func (s *Server) bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
