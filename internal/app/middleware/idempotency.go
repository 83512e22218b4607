package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"stayguard/internal/app/commands"
	"stayguard/internal/app/uow"
	domainbooking "stayguard/internal/domain/booking"
	domaininventory "stayguard/internal/domain/inventory"
	domainrange "stayguard/internal/domain/shared/daterange"
)

// IdempotentCommand must be implemented by commands that want idempotency
// guarantees. Retrying a reserve after an ambiguous failure replays the first
// outcome instead of attempting a second hold on the dates.
type IdempotentCommand interface {
	commands.Command
	IdempotencyKey() string
	ResultPrototype() any // should match the handler result type
}

type IdempotencyRecord struct {
	Key        string
	Payload    []byte
	Error      string
	ErrorCode  string
	OccurredAt time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	Save(ctx context.Context, rec IdempotencyRecord) error
}

type ResultCodec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

type JSONResultCodec struct{}

func (JSONResultCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONResultCodec) Decode(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

var errMissingPrototype = errors.New("middleware: idempotent command requires result prototype")

func Idempotency(store IdempotencyStore, codec ResultCodec) CommandMiddleware {
	if store == nil {
		panic("middleware: idempotency store required")
	}
	if codec == nil {
		codec = JSONResultCodec{}
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			idCmd, ok := cmd.(IdempotentCommand)
			if !ok {
				return nextFn(ctx, cmd)
			}
			key := idCmd.IdempotencyKey()
			if key == "" {
				return nextFn(ctx, cmd)
			}
			rec, found, err := store.Get(ctx, key)
			if err != nil {
				return nil, err
			}
			if found {
				if rec.Error != "" {
					return nil, replayError(rec)
				}
				proto := idCmd.ResultPrototype()
				if proto == nil {
					return nil, errMissingPrototype
				}
				if err := codec.Decode(rec.Payload, proto); err != nil {
					return nil, err
				}
				return normalizePrototype(proto), nil
			}
			result, err := nextFn(ctx, cmd)
			record := IdempotencyRecord{
				Key:        key,
				OccurredAt: time.Now().UTC(),
			}
			if err != nil {
				record.Error = err.Error()
				record.ErrorCode = errorCode(err)
				if saveErr := store.Save(ctx, record); saveErr != nil {
					return nil, errors.Join(err, saveErr)
				}
				return nil, err
			}
			if result != nil {
				payload, encErr := codec.Encode(result)
				if encErr != nil {
					return nil, encErr
				}
				record.Payload = payload
			}
			if saveErr := store.Save(ctx, record); saveErr != nil {
				return nil, saveErr
			}
			return result, nil
		})
	}
}

// replayableErrors maps stable codes to the sentinels whose identity must
// survive a replay; without the code a replayed conflict would surface as an
// opaque failure instead of its business outcome.
var replayableErrors = map[string]error{
	"invalid_range":       domainrange.ErrInvalidRange,
	"check_in_past":       domainbooking.ErrCheckInInPast,
	"slot_unavailable":    domaininventory.ErrSlotUnavailable,
	"range_not_found":     domaininventory.ErrRangeNotFound,
	"property_mismatch":   domaininventory.ErrPropertyMismatch,
	"unknown_disposition": domaininventory.ErrUnknownDisposition,
	"invalid_state":       domainbooking.ErrInvalidState,
	"booking_not_found":   domainbooking.ErrBookingNotFound,
	"concurrent_update":   uow.ErrConcurrentUpdate,
}

func errorCode(err error) string {
	for code, sentinel := range replayableErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}

func replayError(rec IdempotencyRecord) error {
	sentinel, ok := replayableErrors[rec.ErrorCode]
	if !ok {
		return errors.New(rec.Error)
	}
	if rec.Error == sentinel.Error() {
		return sentinel
	}
	return &replayedError{msg: rec.Error, cause: sentinel}
}

// replayedError keeps the recorded message while unwrapping to the sentinel
// the original failure matched.
type replayedError struct {
	msg   string
	cause error
}

func (e *replayedError) Error() string { return e.msg }
func (e *replayedError) Unwrap() error { return e.cause }

func normalizePrototype(proto any) any {
	rv := reflect.ValueOf(proto)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		return rv.Interface()
	}
	return proto
}
