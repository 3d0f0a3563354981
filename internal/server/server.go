// Package server exposes the HTTP surface of the service: the /v1 API
// the web client consumes, plus the websocket job stream and the
// development-only provider trail.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"dealscope/internal/errs"
	"dealscope/internal/jobs"
	"dealscope/internal/models"
	"dealscope/internal/provider"
)

// StateMirror records provider-side mutations into the local database so
// background jobs, the alert sweep above all, see state created through
// either provider. Implementations must be best-effort: a mirror failure
// never fails the request.
type StateMirror interface {
	MirrorAlert(ctx context.Context, userID uint, alert models.Alert)
	RemoveAlert(ctx context.Context, userID, alertID uint)
	MirrorWatch(ctx context.Context, userID uint, target models.TargetType, targetID int, addedAt time.Time)
	RemoveWatch(ctx context.Context, userID uint, target models.TargetType, targetID int)
	SaveJob(ctx context.Context, userID uint, job *models.ScrapJob)
}

// Server wires the echo instance to the provider registry.
type Server struct {
	e        *echo.Echo
	registry *provider.Registry
	poller   *jobs.Poller
	mirror   StateMirror
	validate *validator.Validate
	devMode  bool
}

// New builds the HTTP server. mirror may be nil when no database is
// configured; devMode enables the provider trail route.
func New(registry *provider.Registry, poller *jobs.Poller, mirror StateMirror, devMode bool) *Server {
	e := echo.New()
	e.HideBanner = true
	s := &Server{
		e:        e,
		registry: registry,
		poller:   poller,
		mirror:   mirror,
		validate: validator.New(),
		devMode:  devMode,
	}
	s.registerHandlers()
	return s
}

// Start blocks serving HTTP on the given port.
func (s *Server) Start(port int) error {
	logrus.WithField("port", port).Info("Starting HTTP server")
	return s.e.Start(fmt.Sprintf(":%d", port))
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// scope extracts the calling user from the X-User-Id and X-User-Plan
// headers. Authentication itself happens at the edge; by the time a
// request reaches this service the headers are trusted.
func (s *Server) scope(c echo.Context) models.Scope {
	scope := models.Scope{UserID: 1, Plan: models.PlanFree}
	if raw := c.Request().Header.Get("X-User-Id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 32); err == nil {
			scope.UserID = uint(id)
		}
	}
	if plan := models.Plan(c.Request().Header.Get("X-User-Plan")); plan.Valid() {
		scope.Plan = plan
	}
	return scope
}

// writeErr maps the error taxonomy onto HTTP statuses. Insufficient
// credits carries the upsell payload; transport failures surface as 502
// so the client can distinguish upstream trouble from its own mistakes.
func writeErr(c echo.Context, err error) error {
	switch {
	case errs.IsValidation(err):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errs.IsNotFound(err):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errs.IsInsufficientCredits(err):
		var ic *errs.InsufficientCreditsError
		errors.As(err, &ic)
		return c.JSON(http.StatusPaymentRequired, map[string]interface{}{
			"error":    err.Error(),
			"required": ic.Required,
			"current":  ic.Current,
		})
	case errs.IsTransport(err):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	logrus.WithError(err).Error("Unhandled error in request")
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
