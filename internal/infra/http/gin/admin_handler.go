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

type AdminHandler struct {
	Queries queries.Bus
	Logger  *slog.Logger
}

func (h AdminHandler) ListBookings(c *gin.Context) {
	admin, ok := requireAuth(c)
	if !ok {
		return
	}
	query := bookingapp.ListBookingsByStateQuery{Caller: admin, Status: c.Query("status")}
	result, err := queries.Ask[bookingapp.ListBookingsByStateQuery, dto.BookingCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, "admin.bookings", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h AdminHandler) AwaitingPayment(c *gin.Context) {
	admin, ok := requireAuth(c)
	if !ok {
		return
	}
	query := bookingapp.ListAwaitingPaymentQuery{Caller: admin}
	result, err := queries.Ask[bookingapp.ListAwaitingPaymentQuery, dto.BookingCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, "admin.awaiting_payment", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h AdminHandler) PaidBookings(c *gin.Context) {
	admin, ok := requireAuth(c)
	if !ok {
		return
	}
	query := paymentsapp.ListPaidBookingsQuery{Caller: admin}
	result, err := queries.Ask[paymentsapp.ListPaidBookingsQuery, dto.PaidBookingCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, "admin.paid", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ AdminHTTP = AdminHandler{}
