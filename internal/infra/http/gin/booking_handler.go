package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"stayguard/internal/app/commands"
	"stayguard/internal/app/dto"
	bookingapp "stayguard/internal/app/handlers/booking"
	"stayguard/internal/app/queries"
)

type BookingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type reserveRequest struct {
	PropertyID string    `json:"property_id"`
	GuestID    string    `json:"guest_id"`
	CheckIn    time.Time `json:"check_in"`
	CheckOut   time.Time `json:"check_out"`
	Guests     int       `json:"guests"`
	Deadline   time.Time `json:"deadline"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h BookingHandler) Reserve(c *gin.Context) {
	if h.Commands == nil {
		respondWithError(c, h.Logger, errors.New("commands bus unavailable"))
		return
	}
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := bookingapp.ReserveCommand{
		CommandID:       generateCommandID(),
		PropertyID:      strings.TrimSpace(req.PropertyID),
		GuestID:         strings.TrimSpace(req.GuestID),
		CheckIn:         req.CheckIn,
		CheckOut:        req.CheckOut,
		Guests:          req.Guests,
		Deadline:        req.Deadline,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[bookingapp.ReserveCommand, *bookingapp.ReserveResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondWithError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h BookingHandler) Confirm(c *gin.Context) {
	h.transition(c, func(id string) (any, error) {
		return commands.Dispatch[bookingapp.ConfirmCommand, *bookingapp.TransitionResult](c.Request.Context(), h.Commands, bookingapp.ConfirmCommand{BookingID: id})
	})
}

func (h BookingHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	h.transition(c, func(id string) (any, error) {
		cmd := bookingapp.CancelCommand{BookingID: id, Reason: strings.TrimSpace(req.Reason)}
		return commands.Dispatch[bookingapp.CancelCommand, *bookingapp.TransitionResult](c.Request.Context(), h.Commands, cmd)
	})
}

func (h BookingHandler) CheckIn(c *gin.Context) {
	h.transition(c, func(id string) (any, error) {
		return commands.Dispatch[bookingapp.CheckInCommand, *bookingapp.TransitionResult](c.Request.Context(), h.Commands, bookingapp.CheckInCommand{BookingID: id})
	})
}

func (h BookingHandler) CheckOut(c *gin.Context) {
	h.transition(c, func(id string) (any, error) {
		return commands.Dispatch[bookingapp.CheckOutCommand, *bookingapp.TransitionResult](c.Request.Context(), h.Commands, bookingapp.CheckOutCommand{BookingID: id})
	})
}

func (h BookingHandler) Expire(c *gin.Context) {
	h.transition(c, func(id string) (any, error) {
		return commands.Dispatch[bookingapp.ExpireCommand, *bookingapp.TransitionResult](c.Request.Context(), h.Commands, bookingapp.ExpireCommand{BookingID: id})
	})
}

func (h BookingHandler) Get(c *gin.Context) {
	if h.Queries == nil {
		respondWithError(c, h.Logger, errors.New("queries bus unavailable"))
		return
	}
	query := bookingapp.GetBookingQuery{BookingID: strings.TrimSpace(c.Param("id"))}
	result, err := queries.Ask[bookingapp.GetBookingQuery, dto.Booking](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondWithError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) transition(c *gin.Context, dispatch func(id string) (any, error)) {
	if h.Commands == nil {
		respondWithError(c, h.Logger, errors.New("commands bus unavailable"))
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "booking id is required"})
		return
	}
	result, err := dispatch(id)
	if err != nil {
		respondWithError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func generateCommandID() string {
	return uuid.NewString()
}

var _ BookingHTTP = BookingHandler{}
