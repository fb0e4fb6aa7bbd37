package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"stayhub/internal/app/commands"
	"stayhub/internal/domain/shared/apperr"
)

// IdempotentCommand carries a client supplied key. ResultPrototype returns a
// pointer to a fresh value of the handler's result type for replays.
type IdempotentCommand interface {
	commands.Command
	IdempotencyKey() string
	ResultPrototype() any
}

// IdempotencyRecord is the stored outcome of one keyed command. Exactly one of
// Payload or Error is meaningful.
type IdempotencyRecord struct {
	Key        string
	Payload    []byte
	Error      string
	ErrorKind  string
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

func (JSONResultCodec) Encode(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONResultCodec) Decode(data []byte, out any) error { return json.Unmarshal(data, out) }

var errMissingPrototype = errors.New("middleware: idempotent command has no result prototype")

// Idempotency replays the stored outcome of a command seen before under the
// same key. Retryable failures are not stored so the client can try again
// with the same key.
func Idempotency(store IdempotencyStore, codec ResultCodec) CommandMiddleware {
	if store == nil {
		panic("middleware: idempotency store required")
	}
	if codec == nil {
		codec = JSONResultCodec{}
	}
	keeper := outcomeKeeper{store: store, codec: codec}
	return func(next commands.Bus) commands.Bus {
		return commands.BusFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			idem, ok := cmd.(IdempotentCommand)
			if !ok {
				return next.Dispatch(ctx, cmd)
			}
			key := scopedKey(idem)
			if key == "" {
				return next.Dispatch(ctx, cmd)
			}
			rec, seen, err := store.Get(ctx, key)
			if err != nil {
				return nil, err
			}
			if seen {
				return keeper.replay(rec, idem)
			}
			res, err := next.Dispatch(ctx, cmd)
			return keeper.remember(ctx, key, res, err)
		})
	}
}

type outcomeKeeper struct {
	store IdempotencyStore
	codec ResultCodec
}

func (k outcomeKeeper) replay(rec IdempotencyRecord, cmd IdempotentCommand) (any, error) {
	if rec.Error != "" {
		return nil, apperr.Restore(rec.ErrorKind, rec.Error)
	}
	out := cmd.ResultPrototype()
	if out == nil {
		return nil, errMissingPrototype
	}
	if len(rec.Payload) == 0 {
		return out, nil
	}
	if err := k.codec.Decode(rec.Payload, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (k outcomeKeeper) remember(ctx context.Context, key string, res any, err error) (any, error) {
	if err != nil && apperr.Retryable(err) {
		return nil, err
	}
	rec := IdempotencyRecord{Key: key, OccurredAt: time.Now().UTC()}
	if err != nil {
		rec.Error = err.Error()
		rec.ErrorKind = apperr.Kind(err)
		if saveErr := k.store.Save(ctx, rec); saveErr != nil {
			return nil, errors.Join(err, saveErr)
		}
		return nil, err
	}
	if res != nil {
		payload, encErr := k.codec.Encode(res)
		if encErr != nil {
			return nil, encErr
		}
		rec.Payload = payload
	}
	if saveErr := k.store.Save(ctx, rec); saveErr != nil {
		return nil, saveErr
	}
	return res, nil
}

// scopedKey namespaces the client key by command and caller.
func scopedKey(cmd IdempotentCommand) string {
	key := cmd.IdempotencyKey()
	if key == "" {
		return ""
	}
	scope := cmd.Key()
	if g, ok := cmd.(GuardedMessage); ok {
		scope += ":" + g.Principal().UserID
	}
	return scope + ":" + key
}
