package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type startRequest struct {
	InstrumentID string `json:"instrumentId" form:"instrumentId" validate:"required"`
}

type startResponse struct {
	AttemptID string `json:"attemptId"`
	Status    string `json:"status"`
}

func (s *Server) startAttempt(c echo.Context) error {
	subject, err := subjectFrom(c)
	if err != nil {
		return err
	}

	req := new(startRequest)
	if err := s.bind(c, req); err != nil {
		return err
	}

	a, err := s.svc.Start(c.Request().Context(), subject, req.InstrumentID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, startResponse{AttemptID: a.ID, Status: string(a.Status)})
}

type saveResponseRequest struct {
	ItemID string `json:"itemId" form:"itemId" validate:"required"`
	Answer any    `json:"answer" validate:"required"`
}

func (s *Server) saveResponse(c echo.Context) error {
	subject, err := subjectFrom(c)
	if err != nil {
		return err
	}

	req := new(saveResponseRequest)
	if err := s.bind(c, req); err != nil {
		return err
	}

	if err := s.svc.SaveResponse(c.Request().Context(), c.Param("id"), subject.ID, req.ItemID, req.Answer); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"itemId": req.ItemID, "saved": "true"})
}

func (s *Server) submitAttempt(c echo.Context) error {
	subject, err := subjectFrom(c)
	if err != nil {
		return err
	}

	profile, err := s.svc.Submit(c.Request().Context(), c.Param("id"), subject.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) listAttempts(c echo.Context) error {
	subject, err := subjectFrom(c)
	if err != nil {
		return err
	}

	summaries, err := s.svc.ListAttempts(c.Request().Context(), subject.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, summaries)
}

func (s *Server) getAttempt(c echo.Context) error {
	subject, err := subjectFrom(c)
	if err != nil {
		return err
	}

	a, err := s.svc.GetAttempt(c.Request().Context(), c.Param("id"), subject.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (s *Server) getRecommendation(c echo.Context) error {
	subject, err := subjectFrom(c)
	if err != nil {
		return err
	}

	rec, err := s.svc.GetRecommendation(c.Request().Context(), c.Param("id"), subject.ID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) listPending(c echo.Context) error {
	summaries, err := s.svc.ListPending(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, summaries)
}

type dispatchRequest struct {
	Provider string `json:"provider" form:"provider"`
}

func (s *Server) redispatch(c echo.Context) error {
	req := new(dispatchRequest)
	if err := s.bind(c, req); err != nil {
		return err
	}

	attemptID := c.Param("id")
	if err := s.dispatcher.Redispatch(c.Request().Context(), attemptID, req.Provider); err != nil {
		return httpError(err)
	}

	s.logger.Info("manual dispatch triggered",
		zap.String("attempt_id", attemptID),
		zap.String("provider", req.Provider),
	)
	return c.JSON(http.StatusAccepted, map[string]string{"attemptId": attemptID, "dispatched": "true"})
}
