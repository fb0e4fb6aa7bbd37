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

type HostBookingHandler struct {
	Queries queries.Bus
	Logger  *slog.Logger
}

func (h HostBookingHandler) List(c *gin.Context) {
	host, ok := requireAuth(c)
	if !ok {
		return
	}
	query := bookingapp.ListHostBookingsQuery{Caller: host, Status: c.Query("status")}
	result, err := queries.Ask[bookingapp.ListHostBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, "host.bookings", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h HostBookingHandler) PaidGuests(c *gin.Context) {
	host, ok := requireAuth(c)
	if !ok {
		return
	}
	query := paymentsapp.ListPaidGuestsForHostQuery{Caller: host}
	result, err := queries.Ask[paymentsapp.ListPaidGuestsForHostQuery, dto.PaidGuestCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, "host.paid_guests", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ HostBookingHTTP = HostBookingHandler{}
