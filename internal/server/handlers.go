package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"dealscope/internal/models"
	"dealscope/internal/provider"
)

func intQuery(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func (s *Server) registerHandlers() {
	e := s.e

	e.GET("/v1/health", func(c echo.Context) error {
		// Re-check the upstream on every health read so the
		// unavailability flag tracks recoveries, not just the state
		// observed at boot.
		if s.registry.ActiveMode() == provider.ModeAPI {
			s.registry.CheckAPIHealth(c.Request().Context())
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":          "ok",
			"provider":        s.registry.ActiveMode(),
			"api_unavailable": s.registry.IsAPIUnavailable(),
			"restart_needed":  s.registry.RestartNeeded(),
		})
	})

	e.GET("/v1/deals", func(c echo.Context) error {
		page, err := s.registry.Active().GetDeals(c.Request().Context(), s.scope(c), provider.DealFilters{
			Page:     intQuery(c, "page", 1),
			Limit:    intQuery(c, "limit", 20),
			Platform: c.QueryParam("platform"),
			Category: c.QueryParam("category"),
			ItemType: c.QueryParam("item_type"),
			Region:   c.QueryParam("region"),
			Search:   c.QueryParam("search"),
		})
		if err != nil {
			return writeErr(c, err)
		}
		return c.JSON(http.StatusOK, page)
	})

	e.GET("/v1/models", func(c echo.Context) error {
		page, err := s.registry.Active().GetCatalogModels(c.Request().Context(), s.scope(c), provider.CatalogFilters{
			Page:     intQuery(c, "page", 1),
			Limit:    intQuery(c, "limit", 20),
			Category: c.QueryParam("category"),
			Brand:    c.QueryParam("brand"),
			Search:   c.QueryParam("search"),
		})
		if err != nil {
			return writeErr(c, err)
		}
		return c.JSON(http.StatusOK, page)
	})

	e.GET("/v1/models/:id", func(c echo.Context) error {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid model id"})
		}
		model, err := s.registry.Active().GetModelDetail(c.Request().Context(), s.scope(c), id)
		if err != nil {
			return writeErr(c, err)
		}
		return c.JSON(http.StatusOK, model)
	})

	e.GET("/v1/ads/:id", func(c echo.Context) error {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid ad id"})
		}
		ad, err := s.registry.Active().GetAdDetail(c.Request().Context(), s.scope(c), id)
		if err != nil {
			return writeErr(c, err)
		}
		return c.JSON(http.StatusOK, ad)
	})

	e.GET("/v1/dashboard/overview", func(c echo.Context) error {
		overview, err := s.registry.Active().GetDashboardOverview(c.Request().Context(), s.scope(c))
		if err != nil {
			return writeErr(c, err)
		}
		return c.JSON(http.StatusOK, overview)
	})

	e.POST("/v1/estimations", func(c echo.Context) error {
		var req models.EstimationRequest
		if err := c.Bind(&req); err != nil {
			logrus.WithError(err).Error("Invalid estimation request")
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		if err := s.validate.Struct(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		result, err := s.registry.Active().RunEstimation(c.Request().Context(), s.scope(c), req)
		if err != nil {
			return writeErr(c, err)
		}
		return c.JSON(http.StatusOK, result)
	})

	e.GET("/v1/estimations/history", func(c echo.Context) error {
		page, err := s.registry.Active().GetEstimationHistory(c.Request().Context(), s.scope(c),
			intQuery(c, "page", 1), intQuery(c, "limit", 10))
		if err != nil {
			return writeErr(c, err)
		}
		return c.JSON(http.StatusOK, page)
	})

	e.GET("/v1/credits", func(c echo.Context) error {
		credits, err := s.registry.Active().GetCredits(c.Request().Context(), s.scope(c))
		if err != nil {
			return writeErr(c, err)
		}
		return c.JSON(http.StatusOK, map[string]int{"credits": credits})
	})

	e.GET("/v1/watchlist", func(c echo.Context) error {
		entries, err := s.registry.Active().GetWatchlist(c.Request().Context(), s.scope(c))
		if err != nil {
			return writeErr(c, err)
		}
		return c.JSON(http.StatusOK, entries)
	})

	e.POST("/v1/watchlist", func(c echo.Context) error {
		var req struct {
			TargetType models.TargetType `json:"target_type" validate:"required,oneof=ad model"`
			TargetID   int               `json:"target_id" validate:"required,gt=0"`
		}
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		if err := s.validate.Struct(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		scope := s.scope(c)
		entry, err := s.registry.Active().AddToWatchlist(c.Request().Context(), scope, req.TargetType, req.TargetID)
		if err != nil {
			return writeErr(c, err)
		}
		if s.mirror != nil {
			s.mirror.MirrorWatch(c.Request().Context(), scope.UserID, req.TargetType, req.TargetID, entry.AddedAt)
		}
		return c.JSON(http.StatusOK, entry)
	})

	e.DELETE("/v1/watchlist/:target/:id", func(c echo.Context) error {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid target id"})
		}
		target := models.TargetType(c.Param("target"))
		scope := s.scope(c)
		if err := s.registry.Active().RemoveFromWatchlist(c.Request().Context(), scope, target, id); err != nil {
			return writeErr(c, err)
		}
		if s.mirror != nil {
			s.mirror.RemoveWatch(c.Request().Context(), scope.UserID, target, id)
		}
		return c.NoContent(http.StatusNoContent)
	})

	e.GET("/v1/alerts", func(c echo.Context) error {
		alerts, err := s.registry.Active().GetAlerts(c.Request().Context(), s.scope(c))
		if err != nil {
			return writeErr(c, err)
		}
		return c.JSON(http.StatusOK, alerts)
	})

	e.POST("/v1/alerts", func(c echo.Context) error {
		var payload provider.AlertPayload
		if err := c.Bind(&payload); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		if err := s.validate.Struct(&payload); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		scope := s.scope(c)
		alert, err := s.registry.Active().CreateAlert(c.Request().Context(), scope, payload)
		if err != nil {
			return writeErr(c, err)
		}
		if s.mirror != nil {
			s.mirror.MirrorAlert(c.Request().Context(), scope.UserID, *alert)
		}
		return c.JSON(http.StatusCreated, alert)
	})

	e.PATCH("/v1/alerts/:id", func(c echo.Context) error {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid alert id"})
		}
		var patch provider.AlertUpdate
		if err := c.Bind(&patch); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		scope := s.scope(c)
		alert, err := s.registry.Active().UpdateAlert(c.Request().Context(), scope, uint(id), patch)
		if err != nil {
			return writeErr(c, err)
		}
		if s.mirror != nil {
			s.mirror.MirrorAlert(c.Request().Context(), scope.UserID, *alert)
		}
		return c.JSON(http.StatusOK, alert)
	})

	e.DELETE("/v1/alerts/:id", func(c echo.Context) error {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid alert id"})
		}
		scope := s.scope(c)
		if err := s.registry.Active().DeleteAlert(c.Request().Context(), scope, uint(id)); err != nil {
			return writeErr(c, err)
		}
		if s.mirror != nil {
			s.mirror.RemoveAlert(c.Request().Context(), scope.UserID, uint(id))
		}
		return c.NoContent(http.StatusNoContent)
	})

	e.POST("/v1/scrap/start", func(c echo.Context) error {
		var req provider.ScrapRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		if err := s.validate.Struct(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		scope := s.scope(c)
		job, err := s.registry.Active().StartScrapJob(c.Request().Context(), scope, req)
		if err != nil {
			return writeErr(c, err)
		}
		if s.mirror != nil {
			s.mirror.SaveJob(c.Request().Context(), scope.UserID, job)
		}
		return c.JSON(http.StatusAccepted, job)
	})

	e.GET("/v1/jobs/:id", func(c echo.Context) error {
		scope := s.scope(c)
		job, err := s.registry.Active().GetScrapJob(c.Request().Context(), scope, c.Param("id"))
		if err != nil {
			return writeErr(c, err)
		}
		if s.mirror != nil {
			s.mirror.SaveJob(c.Request().Context(), scope.UserID, job)
		}
		return c.JSON(http.StatusOK, job)
	})

	e.POST("/v1/jobs/:id/cancel", func(c echo.Context) error {
		scope := s.scope(c)
		job, err := s.registry.Active().CancelScrapJob(c.Request().Context(), scope, c.Param("id"))
		if err != nil {
			return writeErr(c, err)
		}
		if s.mirror != nil {
			s.mirror.SaveJob(c.Request().Context(), scope.UserID, job)
		}
		return c.JSON(http.StatusOK, job)
	})

	e.GET("/v1/jobs/:id/ws", s.streamJob)

	e.GET("/v1/admin/users", func(c echo.Context) error {
		page, err := s.registry.Active().GetAdminUsers(c.Request().Context(), s.scope(c),
			intQuery(c, "page", 1), intQuery(c, "limit", 20), c.QueryParam("search"))
		if err != nil {
			return writeErr(c, err)
		}
		return c.JSON(http.StatusOK, page)
	})

	e.GET("/v1/provider", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"mode":            s.registry.ActiveMode(),
			"api_unavailable": s.registry.IsAPIUnavailable(),
			"restart_needed":  s.registry.RestartNeeded(),
			"trail_enabled":   s.registry.Trail().Enabled(),
		})
	})

	e.POST("/v1/provider", func(c echo.Context) error {
		var req struct {
			Mode string `json:"mode" validate:"required,oneof=mock api"`
		}
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		if err := s.validate.Struct(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		ctx := c.Request().Context()
		var err error
		if req.Mode == provider.ModeMock {
			err = s.registry.SwitchToMock(ctx)
		} else {
			err = s.registry.SwitchToAPI(ctx)
		}
		if err != nil {
			return writeErr(c, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"mode":           s.registry.ActiveMode(),
			"restart_needed": s.registry.RestartNeeded(),
		})
	})

	if s.devMode {
		e.GET("/v1/provider/trail", func(c echo.Context) error {
			return c.JSON(http.StatusOK, s.registry.Trail().Snapshot())
		})
	}
}
