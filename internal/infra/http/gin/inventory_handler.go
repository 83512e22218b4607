package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"stayguard/internal/app/commands"
	"stayguard/internal/app/dto"
	inventoryapp "stayguard/internal/app/handlers/inventory"
	"stayguard/internal/app/queries"
)

type InventoryHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type blockRequest struct {
	CheckIn     time.Time `json:"check_in"`
	CheckOut    time.Time `json:"check_out"`
	Disposition string    `json:"disposition"`
	Reference   string    `json:"reference"`
}

func (h InventoryHandler) Block(c *gin.Context) {
	if h.Commands == nil {
		respondWithError(c, h.Logger, errors.New("commands bus unavailable"))
		return
	}
	propertyID := strings.TrimSpace(c.Param("id"))
	if propertyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "property id is required"})
		return
	}
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := inventoryapp.BlockRangeCommand{
		CommandID:       generateCommandID(),
		PropertyID:      propertyID,
		CheckIn:         req.CheckIn,
		CheckOut:        req.CheckOut,
		Disposition:     strings.TrimSpace(req.Disposition),
		Reference:       strings.TrimSpace(req.Reference),
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[inventoryapp.BlockRangeCommand, *inventoryapp.BlockRangeResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondWithError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h InventoryHandler) Release(c *gin.Context) {
	if h.Commands == nil {
		respondWithError(c, h.Logger, errors.New("commands bus unavailable"))
		return
	}
	cmd := inventoryapp.ReleaseRangeCommand{
		PropertyID: strings.TrimSpace(c.Param("id")),
		RangeID:    strings.TrimSpace(c.Param("rangeID")),
	}
	if cmd.PropertyID == "" || cmd.RangeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "property id and range id are required"})
		return
	}
	result, err := commands.Dispatch[inventoryapp.ReleaseRangeCommand, *inventoryapp.ReleaseRangeResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondWithError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h InventoryHandler) Calendar(c *gin.Context) {
	if h.Queries == nil {
		respondWithError(c, h.Logger, errors.New("queries bus unavailable"))
		return
	}
	propertyID := strings.TrimSpace(c.Param("id"))
	if propertyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "property id is required"})
		return
	}
	from, _ := parseFlexibleTime(c.Query("from"))
	to, _ := parseFlexibleTime(c.Query("to"))
	query := inventoryapp.GetCalendarQuery{
		PropertyID: propertyID,
		From:       from,
		To:         to,
	}
	result, err := queries.Ask[inventoryapp.GetCalendarQuery, dto.Calendar](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondWithError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func parseFlexibleTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

var _ InventoryHTTP = InventoryHandler{}
