package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/berfenger/echarge2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type snapshotResponse struct {
	Version   uint64           `json:"version"`
	UpdatedAt time.Time        `json:"updated_at"`
	Session   string           `json:"session"`
	Fields    *domain.Snapshot `json:"fields"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type chargingCurrentBody struct {
	Value *float64 `json:"value"`
}

type lockBody struct {
	Locked *bool `json:"locked"`
}

type modeBody struct {
	Mode string `json:"mode"`
}

type autoModeBody struct {
	On *bool `json:"on"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	if s.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api")
	api.GET("/snapshot", s.SnapshotHandler)
	api.POST("/refresh", s.RefreshHandler)
	api.PUT("/charging-current", s.ChargingCurrentHandler)
	api.PUT("/lock", s.LockHandler)
	api.PUT("/mode", s.ModeHandler)
	api.PUT("/auto-mode", s.AutoModeHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) SnapshotHandler(c echo.Context) error {
	snapshot := s.coordinator.Snapshot()
	if snapshot == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "no snapshot yet"})
	}
	return c.JSON(http.StatusOK, s.snapshotResponse(snapshot))
}

func (s *Server) RefreshHandler(c echo.Context) error {
	snapshot, err := s.coordinator.Refresh(c.Request().Context())
	return s.respond(c, snapshot, err)
}

func (s *Server) ChargingCurrentHandler(c echo.Context) error {
	var body chargingCurrentBody
	if err := c.Bind(&body); err != nil || body.Value == nil {
		return badRequest(c, "body must be {\"value\": <amps>}")
	}
	snapshot, err := s.coordinator.SetChargingCurrent(c.Request().Context(), *body.Value)
	return s.respond(c, snapshot, err)
}

func (s *Server) LockHandler(c echo.Context) error {
	var body lockBody
	if err := c.Bind(&body); err != nil || body.Locked == nil {
		return badRequest(c, "body must be {\"locked\": <bool>}")
	}
	snapshot, err := s.coordinator.SetLockState(c.Request().Context(), *body.Locked)
	return s.respond(c, snapshot, err)
}

func (s *Server) ModeHandler(c echo.Context) error {
	var body modeBody
	if err := c.Bind(&body); err != nil || body.Mode == "" {
		return badRequest(c, "body must be {\"mode\": <label>}")
	}
	snapshot, err := s.coordinator.SetChargingMode(c.Request().Context(), body.Mode)
	return s.respond(c, snapshot, err)
}

func (s *Server) AutoModeHandler(c echo.Context) error {
	var body autoModeBody
	if err := c.Bind(&body); err != nil || body.On == nil {
		return badRequest(c, "body must be {\"on\": <bool>}")
	}
	snapshot, err := s.coordinator.SetAutoMode(c.Request().Context(), *body.On)
	return s.respond(c, snapshot, err)
}

func (s *Server) respond(c echo.Context, snapshot *domain.Snapshot, err error) error {
	if err != nil {
		return c.JSON(StatusOf(err), errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, s.snapshotResponse(snapshot))
}

func (s *Server) snapshotResponse(snapshot *domain.Snapshot) snapshotResponse {
	return snapshotResponse{
		Version:   snapshot.Version(),
		UpdatedAt: snapshot.UpdatedAt(),
		Session:   s.coordinator.SessionState().String(),
		Fields:    snapshot,
	}
}

// StatusOf maps the coordinator error kinds onto HTTP statuses.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthDenied):
		return http.StatusUnauthorized
	default:
		return http.StatusBadGateway
	}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}
