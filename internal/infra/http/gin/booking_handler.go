package ginserver

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/dto"
	bookingapp "stayhub/internal/app/handlers/booking"
	"stayhub/internal/app/queries"
	"stayhub/internal/domain/shared/apperr"
)

type BookingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type createBookingRequest struct {
	PropertyID string `json:"property_id" binding:"required"`
	StartDate  string `json:"start_date" binding:"required"`
	EndDate    string `json:"end_date" binding:"required"`
}

func (h BookingHandler) Create(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.Logger, "booking.create", apperr.Validation(err.Error()))
		return
	}
	start, end, err := parseStay(req.StartDate, req.EndDate)
	if err != nil {
		respondError(c, h.Logger, "booking.create", err)
		return
	}
	cmd := bookingapp.CreateBookingCommand{
		Caller:          user,
		PropertyID:      strings.TrimSpace(req.PropertyID),
		Start:           start,
		End:             end,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[bookingapp.CreateBookingCommand, *dto.BookingView](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, "booking.create", err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h BookingHandler) Quote(c *gin.Context) {
	start, end, err := parseStay(c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		respondError(c, h.Logger, "booking.quote", err)
		return
	}
	query := bookingapp.QuotePriceQuery{
		PropertyID: strings.TrimSpace(c.Query("property_id")),
		Start:      start,
		End:        end,
	}
	result, err := queries.Ask[bookingapp.QuotePriceQuery, dto.PriceQuote](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, "booking.quote", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) Get(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	query := bookingapp.GetBookingQuery{Caller: user, BookingID: strings.TrimSpace(c.Param("id"))}
	result, err := queries.Ask[bookingapp.GetBookingQuery, dto.BookingView](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, "booking.get", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) Cancel(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	cmd := bookingapp.CancelBookingCommand{Caller: user, BookingID: strings.TrimSpace(c.Param("id"))}
	result, err := commands.Dispatch[bookingapp.CancelBookingCommand, *dto.BookingView](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, "booking.cancel", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) Confirm(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	cmd := bookingapp.ConfirmBookingCommand{Caller: user, BookingID: strings.TrimSpace(c.Param("id"))}
	result, err := commands.Dispatch[bookingapp.ConfirmBookingCommand, *dto.BookingView](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, "booking.confirm", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) MarkFailed(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	cmd := bookingapp.MarkPaymentFailedCommand{Caller: user, BookingID: strings.TrimSpace(c.Param("id"))}
	result, err := commands.Dispatch[bookingapp.MarkPaymentFailedCommand, *dto.BookingView](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, "booking.mark_failed", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// parseStay accepts calendar dates (2006-01-02) or RFC 3339 timestamps.
func parseStay(rawStart, rawEnd string) (time.Time, time.Time, error) {
	start, err := parseDay(rawStart)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("start_date must be a date (YYYY-MM-DD)")
	}
	end, err := parseDay(rawEnd)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("end_date must be a date (YYYY-MM-DD)")
	}
	return start, end, nil
}

func parseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

var _ BookingHTTP = BookingHandler{}
