package httpgin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/citybus/internal/domain"
	"github.com/kirinyoku/citybus/internal/service"
)

// @Summary  Live bus tracking
// @Param    trackingNumber  path  string  true  "Tracking number"
// @Success  200  {object}  tracking.BusTracking
// @Failure  404  {object}  ErrorResponse
// @Router   /tracking/{trackingNumber} [get]
func handleTrackBus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := svcs.Tracking.TrackBus(c.Request.Context(), c.Param("trackingNumber"))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, view, cacheTracking)
	}
}

// @Summary  Route with ETAs
// @Param    trackingNumber  path  string  true  "Tracking number"
// @Success  200  {object}  tracking.Route
// @Failure  404  {object}  ErrorResponse
// @Router   /tracking/{trackingNumber}/route [get]
func handleRoute(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, err := svcs.Tracking.Route(c.Request.Context(), c.Param("trackingNumber"))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, r, cacheTracking)
	}
}

// @Summary  Buses in a city
// @Param    city  path  string  true  "City"
// @Success  200  {array}  tracking.BusSummary
// @Router   /tracking/city/{city} [get]
func handleCityBuses(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svcs.Tracking.CityBuses(c.Request.Context(), c.Param("city"))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, list, cacheTracking)
	}
}

// @Summary  Report bus location
// @Security BearerAuth
// @Param    trackingNumber  path  string  true  "Tracking number"
// @Param    req body  UpdateLocationRequest true "payload"
// @Success  200  {object}  domain.Location
// @Failure  404  {object}  ErrorResponse
// @Router   /tracking/{trackingNumber}/location [put]
func handleUpdateLocation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateLocationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		loc, err := svcs.Tracking.UpdateLocation(
			c.Request.Context(),
			c.Param("trackingNumber"),
			req.BusStand,
			*req.Latitude,
			*req.Longitude,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, loc)
	}
}

// @Summary  Set bus status and delay
// @Security BearerAuth
// @Param    trackingNumber  path  string  true  "Tracking number"
// @Param    req body  UpdateStatusRequest true "payload"
// @Success  204
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /tracking/{trackingNumber}/status [put]
func handleUpdateStatus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		err := svcs.Tracking.UpdateStatus(
			c.Request.Context(),
			c.Param("trackingNumber"),
			domain.TripStatus(req.Status),
			req.DelayMinutes,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Advance a route stop
// @Security BearerAuth
// @Param    trackingNumber  path  string  true  "Tracking number"
// @Param    stand           path  string  true  "Stop name"
// @Param    req body  UpdateStopRequest true "payload"
// @Success  200  {array}  domain.StopETA
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse "status would go backwards"
// @Router   /tracking/{trackingNumber}/stops/{stand} [put]
func handleUpdateStop(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateStopRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		route, err := svcs.Tracking.UpdateStopStatus(
			c.Request.Context(),
			c.Param("trackingNumber"),
			c.Param("stand"),
			domain.StopStatus(req.Status),
			req.ActualArrival,
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, route)
	}
}
