package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"stayhub/internal/app/dto"
	bookingapp "stayhub/internal/app/handlers/booking"
	paymentsapp "stayhub/internal/app/handlers/payments"
	"stayhub/internal/app/queries"
)

// MeHandler serves the guest's own booking views.
type MeHandler struct {
	Queries queries.Bus
	Logger  *slog.Logger
}

func (h MeHandler) ListBookings(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	query := bookingapp.ListGuestBookingsQuery{Caller: user, Status: c.Query("status")}
	result, err := queries.Ask[bookingapp.ListGuestBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, "me.bookings", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h MeHandler) AwaitingPayment(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	query := bookingapp.ListAwaitingPaymentQuery{Caller: user}
	result, err := queries.Ask[bookingapp.ListAwaitingPaymentQuery, dto.BookingCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, "me.awaiting_payment", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h MeHandler) PaidBookings(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	query := paymentsapp.ListPaidBookingsForGuestQuery{Caller: user}
	result, err := queries.Ask[paymentsapp.ListPaidBookingsForGuestQuery, dto.PaidBookingCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, "me.paid", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ MeHTTP = MeHandler{}
