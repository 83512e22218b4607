package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"stayguard/internal/app/commands"
	"stayguard/internal/app/queries"
	"stayguard/internal/app/uow"
	domainbooking "stayguard/internal/domain/booking"
	domaininventory "stayguard/internal/domain/inventory"
	domainrange "stayguard/internal/domain/shared/daterange"
)

// statusFor maps domain failures to HTTP codes. Conflicts (someone else holds
// the dates, a transition the state machine forbids) are 409, malformed input
// 422, exhausted save retries 503 so callers know to retry.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domainbooking.ErrBookingNotFound),
		errors.Is(err, domaininventory.ErrRangeNotFound),
		errors.Is(err, mongo.ErrNoDocuments):
		return http.StatusNotFound
	case errors.Is(err, domainrange.ErrInvalidRange),
		errors.Is(err, domainbooking.ErrCheckInInPast),
		errors.Is(err, domaininventory.ErrUnknownDisposition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domaininventory.ErrSlotUnavailable),
		errors.Is(err, domainbooking.ErrInvalidState),
		errors.Is(err, domaininventory.ErrPropertyMismatch):
		return http.StatusConflict
	case errors.Is(err, uow.ErrConcurrentUpdate):
		return http.StatusServiceUnavailable
	case errors.Is(err, commands.ErrHandlerNotFound),
		errors.Is(err, queries.ErrHandlerNotFound):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func respondWithError(c *gin.Context, log *slog.Logger, err error) {
	status := statusFor(err)
	if log != nil && status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status, "error", err, "path", c.FullPath())
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
