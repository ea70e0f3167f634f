package httpgin

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/citybus/internal/auth"
	"github.com/kirinyoku/citybus/internal/domain"
	redisrepo "github.com/kirinyoku/citybus/internal/repository/redis"
	"github.com/kirinyoku/citybus/internal/service"
	"github.com/kirinyoku/citybus/internal/service/booking"
	"github.com/kirinyoku/citybus/internal/service/passes"
	"github.com/kirinyoku/citybus/internal/service/tracking"
	"github.com/kirinyoku/citybus/internal/service/trips"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	tokens *auth.Tokens,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/trips", handleListTrips(svcs))
	r.GET("/trips/:id", handleGetTrip(svcs))
	r.GET("/trips/:id/seats", handleSeatMap(svcs))
	r.GET("/trips/:id/events", handleTripEvents(svcs))

	r.GET("/bookings/pnr/:pnr", handleGetBookingByPNR(svcs))
	r.GET("/bookings/pnr/:pnr/ticket", handleTicketPDF(svcs))

	r.GET("/tracking/city/:city", handleCityBuses(svcs))
	r.GET("/tracking/:trackingNumber", handleTrackBus(svcs))
	r.GET("/tracking/:trackingNumber/route", handleRoute(svcs))

	authed := r.Group("/", AuthMiddleware(tokens))
	{
		authed.POST("/bookings", handleCreateBooking(svcs, idem))
		authed.GET("/bookings", handleListBookings(svcs))
		authed.GET("/bookings/stats", handleBookingStats(svcs))
		authed.GET("/bookings/:id", handleGetBooking(svcs))
		authed.PUT("/bookings/:id/cancel", handleCancelBooking(svcs))

		authed.POST("/passes", handleCreatePass(svcs))
		authed.GET("/passes", handleListPasses(svcs))
		authed.GET("/passes/stats", handlePassStats(svcs))
		authed.GET("/passes/:id", handleGetPass(svcs))
		authed.GET("/passes/:id/validate", handleValidatePass(svcs))
		authed.POST("/passes/:id/use", handleUsePass(svcs))
		authed.PUT("/passes/:id/cancel", handleCancelPass(svcs))
	}

	crew := r.Group("/tracking", AuthMiddleware(tokens), RequireRole(auth.RoleAdmin, auth.RoleDriver))
	{
		crew.PUT("/:trackingNumber/location", handleUpdateLocation(svcs))
		crew.PUT("/:trackingNumber/status", handleUpdateStatus(svcs))
		crew.PUT("/:trackingNumber/stops/:stand", handleUpdateStop(svcs))
	}

	// Admin-API
	admin := r.Group("/admin", AuthMiddleware(tokens), RequireRole(auth.RoleAdmin))
	{
		admin.POST("/trips", handleCreateTrip(svcs))
		admin.PATCH("/trips/:id", handleUpdateTrip(svcs))
		admin.DELETE("/trips/:id", handleDeactivateTrip(svcs))
		admin.PUT("/bookings/:id/complete", handleCompleteBooking(svcs))
		admin.POST("/passes/expire", handleExpirePasses(svcs))
	}

	return r
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	v, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// respondErr maps service errors onto HTTP statuses. Unmapped errors are
// attached to the context so LoggingMiddleware reports them.
func respondErr(c *gin.Context, err error) {
	var (
		invalid *domain.ValidationError
		limited booking.RateLimitedError
	)

	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:  invalid.Error(),
			Field:  invalid.Field,
			Reason: invalid.Reason,
		})

	case errors.Is(err, auth.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: err.Error()})

	case errors.Is(err, booking.ErrTripNotFound),
		errors.Is(err, trips.ErrTripNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "trip not found"})
	case errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
	case errors.Is(err, passes.ErrPassNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "bus pass not found"})
	case errors.Is(err, tracking.ErrBusNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "bus not found with this tracking number"})
	case errors.Is(err, tracking.ErrStopNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "route stop not found"})

	case errors.Is(err, booking.ErrSeatUnavailable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "seat is not available"})
	case errors.Is(err, booking.ErrSeatNotBooked):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "seat is not booked"})
	case errors.Is(err, booking.ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booking already cancelled"})
	case errors.Is(err, booking.ErrBookingCompleted):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booking already completed"})
	case errors.Is(err, trips.ErrTripConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "bus number already in use"})
	case errors.Is(err, trips.ErrSeatsStillBooked):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "booked seats exceed new seat count"})
	case errors.Is(err, tracking.ErrStopRegression):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "route stop status cannot go backwards"})
	case errors.Is(err, passes.ErrPassNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "bus pass is not active"})

	case errors.Is(err, booking.ErrWithinCancellationWindow):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "booking cannot be cancelled this close to travel"})
	case errors.Is(err, passes.ErrPassInvalid):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "bus pass is not valid or has expired"})

	case errors.As(err, &limited):
		c.Header("Retry-After", strconv.Itoa(max(1, int(math.Ceil(limited.RetryAfter.Seconds())))))
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many booking attempts"})
	case errors.Is(err, booking.ErrRateLimited):
		c.Header("Retry-After", "60")
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many booking attempts"})

	case errors.Is(err, booking.ErrIdentifierExhausted),
		errors.Is(err, trips.ErrIdentifierExhausted),
		errors.Is(err, passes.ErrIdentifierExhausted):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "could not allocate an identifier, retry"})

	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
