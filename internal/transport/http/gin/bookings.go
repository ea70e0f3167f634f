package httpgin

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/citybus/internal/domain"
	redisrepo "github.com/kirinyoku/citybus/internal/repository/redis"
	"github.com/kirinyoku/citybus/internal/service"
	"github.com/kirinyoku/citybus/internal/service/booking"
	"github.com/kirinyoku/citybus/internal/ticket"
)

const idemLockTTL = 60 * time.Second

// @Summary  Book a seat (idempotent)
// @Security BearerAuth
// @Param    Idempotency-Key header string false "replay protection key"
// @Param    req body  CreateBookingRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} domain.Booking
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse "trip not found"
// @Failure  409 {object} ErrorResponse "seat unavailable / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /bookings [post]
func handleCreateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		travelDate, err := parseDate(req.TravelDate)
		if err != nil {
			badRequest(c, "invalid travel_date (YYYY-MM-DD)")
			return
		}

		userID := userIDFrom(c)
		ctx := c.Request.Context()

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(userID, idemKey)

			if payload, ok, _ := idem.GetResult(ctx, idemStorageKey); ok {
				replay(c, idemKey, payload)
				return
			}

			locked, err := idem.AcquireLock(ctx, idemStorageKey, idemLockTTL)
			switch {
			case err != nil:
				// store unreachable, book without replay protection
				_ = c.Error(err)
				idemStorageKey = ""
			case !locked:
				if payload, ok, _ := idem.GetResult(ctx, idemStorageKey); ok {
					replay(c, idemKey, payload)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		b, err := svcs.Bookings.Create(ctx, booking.CreateParams{
			UserID:     userID,
			TripID:     req.TripID,
			SeatNumber: req.SeatNumber,
			TravelDate: travelDate,
			Passenger: domain.Passenger{
				Name:  req.Passenger.Name,
				Email: req.Passenger.Email,
				Phone: req.Passenger.Phone,
			},
			PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		})
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(ctx, idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" {
			payload, err := json.Marshal(b)
			if err == nil {
				err = idem.SaveResult(ctx, idemStorageKey, string(payload))
			}
			if err != nil {
				_ = c.Error(err)
			}
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, b)
	}
}

func replay(c *gin.Context, idemKey, payload string) {
	c.Header("Idempotency-Key", idemKey)
	c.Data(http.StatusCreated, contentTypeJSON, []byte(payload))
}

// @Summary  List my bookings
// @Security BearerAuth
// @Success  200 {array} domain.Booking
// @Router   /bookings [get]
func handleListBookings(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svcs.Bookings.ListForUser(c.Request.Context(), userIDFrom(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// @Summary  My booking counters
// @Security BearerAuth
// @Success  200 {object} domain.BookingStats
// @Router   /bookings/stats [get]
func handleBookingStats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := svcs.Bookings.Stats(c.Request.Context(), userIDFrom(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

// @Summary  Get my booking
// @Security BearerAuth
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} domain.Booking
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Bookings.GetForUser(c.Request.Context(), id, userIDFrom(c))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Cancel my booking
// @Security BearerAuth
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} CancelBookingResponse
// @Failure  409 {object} ErrorResponse "already cancelled / completed"
// @Failure  422 {object} ErrorResponse "inside the cancellation window"
// @Router   /bookings/{id}/cancel [put]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Bookings.Cancel(c.Request.Context(), id, userIDFrom(c))
		if err != nil {
			respondErr(c, err)
			return
		}

		resp := CancelBookingResponse{
			ID:           b.ID.String(),
			PNR:          b.PNR,
			RefundAmount: b.RefundAmount,
		}
		if b.CancellationTime != nil {
			resp.CancellationTime = *b.CancellationTime
		}
		c.JSON(http.StatusOK, resp)
	}
}

// @Summary  Mark a booking travelled
// @Security BearerAuth
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} domain.Booking
// @Failure  409 {object} ErrorResponse
// @Router   /admin/bookings/{id}/complete [put]
func handleCompleteBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Bookings.Complete(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Look up a booking by PNR
// @Param    pnr  path  string  true  "PNR"
// @Success  200 {object} domain.Booking
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/pnr/{pnr} [get]
func handleGetBookingByPNR(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		b, err := svcs.Bookings.GetByPNR(c.Request.Context(), c.Param("pnr"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

// @Summary  Download e-ticket
// @Param    pnr  path  string  true  "PNR"
// @Produce  application/pdf
// @Success  200 {file} file
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/pnr/{pnr}/ticket [get]
func handleTicketPDF(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		b, pdf, err := svcs.Bookings.TicketPDF(c.Request.Context(), c.Param("pnr"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+ticket.Filename(b.PNR)+`"`)
		writeWithCache(c, http.StatusOK, ticket.ContentType, pdf, cacheTicket, false)
	}
}
