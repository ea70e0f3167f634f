package httpgin

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/citybus/internal/domain"
	redisrepo "github.com/kirinyoku/citybus/internal/repository/redis"
	"github.com/kirinyoku/citybus/internal/service"
)

const sseHeartbeat = 25 * time.Second

// @Summary  List active trips
// @Param    city  query  string  false  "city (substring, case-insensitive)"
// @Param    from  query  string  false  "origin (substring)"
// @Param    to    query  string  false  "destination (substring)"
// @Success  200  {array}  domain.Trip
// @Router   /trips [get]
func handleListTrips(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svcs.Trips.ListTrips(c.Request.Context(), domain.TripFilter{
			City: c.Query("city"),
			From: c.Query("from"),
			To:   c.Query("to"),
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, list, cacheSeats)
	}
}

// @Summary  Get trip
// @Param    id  path  int  true  "Trip ID"
// @Success  200  {object}  domain.Trip
// @Failure  404  {object}  ErrorResponse
// @Router   /trips/{id} [get]
func handleGetTrip(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		t, err := svcs.Trips.GetTrip(c.Request.Context(), tripID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, t, cacheTrip)
	}
}

// @Summary  Seat map
// @Param    id  path  int  true  "Trip ID"
// @Success  200  {object}  domain.SeatMap
// @Failure  404  {object}  ErrorResponse
// @Router   /trips/{id}/seats [get]
func handleSeatMap(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		m, err := svcs.Trips.SeatMap(c.Request.Context(), tripID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, m, cacheSeats)
	}
}

// @Summary  Trip change stream (server-sent events)
// @Param    id  path  int  true  "Trip ID"
// @Produce  text/event-stream
// @Success  200  {object}  redisrepo.TripChanged
// @Failure  404  {object}  ErrorResponse
// @Router   /trips/{id}/events [get]
func handleTripEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if _, err := svcs.Trips.GetTrip(c.Request.Context(), tripID); err != nil {
			respondErr(c, err)
			return
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		events := make(chan redisrepo.TripChanged, 16)
		ready := make(chan struct{})
		done := make(chan error, 1)

		go func() {
			done <- svcs.Trips.Events(ctx, tripID, ready, func(msg redisrepo.TripChanged) {
				select {
				case events <- msg:
				case <-ctx.Done():
				}
			})
		}()

		select {
		case <-ready:
		case err := <-done:
			if err != nil {
				respondErr(c, err)
			}
			return
		}

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
		c.SSEvent("ready", gin.H{"trip_id": tripID})
		c.Writer.Flush()

		heartbeat := time.NewTicker(sseHeartbeat)
		defer heartbeat.Stop()

		c.Stream(func(io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case err := <-done:
				if err != nil {
					_ = c.Error(err)
				}
				return false
			case msg := <-events:
				c.SSEvent("trip_changed", msg)
				return true
			case <-heartbeat.C:
				c.SSEvent("ping", time.Now().Unix())
				return true
			}
		})
	}
}

// @Summary  Create trip
// @Security BearerAuth
// @Param    req body  CreateTripRequest true "payload"
// @Success  201 {object} domain.Trip
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "bus number in use"
// @Router   /admin/trips [post]
func handleCreateTrip(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTripRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		t, err := svcs.Trips.CreateTrip(c.Request.Context(), req.trip())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

// @Summary  Update trip
// @Security BearerAuth
// @Param    id  path  int  true  "Trip ID"
// @Param    req body  UpdateTripRequest true "fields to change"
// @Success  200 {object} domain.Trip
// @Failure  409 {object} ErrorResponse "booked seats exceed new seat count"
// @Router   /admin/trips/{id} [patch]
func handleUpdateTrip(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req UpdateTripRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		t, err := svcs.Trips.UpdateTrip(c.Request.Context(), tripID, req.patch())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

// @Summary  Deactivate trip
// @Security BearerAuth
// @Param    id  path  int  true  "Trip ID"
// @Success  204
// @Failure  404 {object} ErrorResponse
// @Router   /admin/trips/{id} [delete]
func handleDeactivateTrip(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		tripID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if err := svcs.Trips.DeactivateTrip(c.Request.Context(), tripID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
