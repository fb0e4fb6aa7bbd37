package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"stayhub/internal/app/dto"
	availabilityapp "stayhub/internal/app/handlers/availability"
	"stayhub/internal/app/queries"
	"stayhub/internal/domain/shared/apperr"
)

type AvailabilityHandler struct {
	Queries queries.Bus
	Logger  *slog.Logger
}

// Calendar is public: it shows which dates are taken, never by whom.
func (h AvailabilityHandler) Calendar(c *gin.Context) {
	from, err := parseDay(c.Query("from"))
	if err != nil {
		respondError(c, h.Logger, "availability.calendar", apperr.Validation("from must be a date (YYYY-MM-DD)"))
		return
	}
	to, err := parseDay(c.Query("to"))
	if err != nil {
		respondError(c, h.Logger, "availability.calendar", apperr.Validation("to must be a date (YYYY-MM-DD)"))
		return
	}
	query := availabilityapp.GetCalendarQuery{
		PropertyID: strings.TrimSpace(c.Param("id")),
		From:       from,
		To:         to,
	}
	result, err := queries.Ask[availabilityapp.GetCalendarQuery, dto.Calendar](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, "availability.calendar", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ AvailabilityHTTP = AvailabilityHandler{}
