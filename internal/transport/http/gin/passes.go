package httpgin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/citybus/internal/domain"
	"github.com/kirinyoku/citybus/internal/service"
)

// @Summary  Buy a bus pass
// @Security BearerAuth
// @Param    req body  CreatePassRequest true "payload"
// @Success  201 {object} domain.BusPass
// @Failure  400 {object} ErrorResponse
// @Router   /passes [post]
func handleCreatePass(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePassRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		var validFrom time.Time
		if req.ValidFrom != "" {
			t, err := parseDate(req.ValidFrom)
			if err != nil {
				badRequest(c, "invalid valid_from (YYYY-MM-DD or RFC3339)")
				return
			}
			validFrom = t
		}

		p, err := svcs.Passes.Create(
			c.Request.Context(),
			userIDFrom(c),
			domain.PassType(req.PassType),
			req.City,
			validFrom,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

// @Summary  List my passes
// @Security BearerAuth
// @Success  200 {array} domain.BusPass
// @Router   /passes [get]
func handleListPasses(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svcs.Passes.List(c.Request.Context(), userIDFrom(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  My pass counters
// @Security BearerAuth
// @Success  200 {object} domain.PassStats
// @Router   /passes/stats [get]
func handlePassStats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := svcs.Passes.Stats(c.Request.Context(), userIDFrom(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// @Summary  Get my pass
// @Security BearerAuth
// @Param    id  path  string  true  "Pass ID (uuid)"
// @Success  200 {object} domain.BusPass
// @Failure  404 {object} ErrorResponse
// @Router   /passes/{id} [get]
func handleGetPass(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		p, err := svcs.Passes.Get(c.Request.Context(), id, userIDFrom(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// @Summary  Check a pass
// @Security BearerAuth
// @Param    id  path  string  true  "Pass ID (uuid)"
// @Success  200 {object} passes.Validity
// @Failure  404 {object} ErrorResponse
// @Router   /passes/{id}/validate [get]
func handleValidatePass(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		v, err := svcs.Passes.Validate(c.Request.Context(), id, userIDFrom(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	}
}

// @Summary  Ride on a pass
// @Security BearerAuth
// @Param    id  path  string  true  "Pass ID (uuid)"
// @Success  200 {object} passes.Usage
// @Failure  422 {object} ErrorResponse "pass not valid"
// @Router   /passes/{id}/use [post]
func handleUsePass(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		u, err := svcs.Passes.Use(c.Request.Context(), id, userIDFrom(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// @Summary  Cancel my pass
// @Security BearerAuth
// @Param    id  path  string  true  "Pass ID (uuid)"
// @Success  204
// @Failure  409 {object} ErrorResponse "pass not active"
// @Router   /passes/{id}/cancel [put]
func handleCancelPass(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		if err := svcs.Passes.Cancel(c.Request.Context(), id, userIDFrom(c)); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Expire elapsed passes
// @Security BearerAuth
// @Success  200 {object} ExpirePassesResponse
// @Router   /admin/passes/expire [post]
func handleExpirePasses(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := svcs.Passes.ExpireOverdue(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, ExpirePassesResponse{Expired: n})
	}
}
