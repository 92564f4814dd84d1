package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/furnishly-backend/api/responses"
	pkgerrors "github.com/angelmondragon/furnishly-backend/pkg/errors"
	"github.com/angelmondragon/furnishly-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/furnishly-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour

	// a crashed handler frees its key after this long
	pendingIdempotencyTTL = 2 * time.Minute

	maxIdempotencyKeyLen = 255
	maxIdempotentBody    = 1 << 20
)

// routes are chi patterns, so path parameters appear as {name}
var idempotencyRules = map[string]time.Duration{
	http.MethodPost + " /api/v1/cart/items":                     defaultIdempotencyTTL,
	http.MethodPatch + " /api/v1/admin/orders/{orderId}/status": defaultIdempotencyTTL,
	http.MethodPost + " /api/v1/orders":                         criticalIdempotencyTTL,
	http.MethodPost + " /api/v1/orders/{orderId}/cancel":        criticalIdempotencyTTL,
}

type recordState string

const (
	statePending  recordState = "pending"
	stateComplete recordState = "complete"
)

type idempotencyRecord struct {
	State       recordState `json:"state"`
	RequestHash string      `json:"request_hash"`
	Status      int         `json:"status,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	Body        []byte      `json:"body,omitempty"`
}

// Idempotency replays the first non-5xx response for a (user, route, Idempotency-Key)
// triple. A duplicate arriving while the first is still running gets 409 instead of
// running twice. Reusing a key with a different body is rejected.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" || len(clientKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required (max 255 characters)"))
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIdempotentBody))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "request body too large or unreadable"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			key := store.IdempotencyKey(buildScope(r), clientKey)
			requestHash := hashBody(body)

			existing, err := reserve(ctx, store, key, requestHash, logg)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if existing != nil {
				switch {
				case existing.RequestHash != requestHash:
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
				case existing.State == statePending:
					w.Header().Set("Retry-After", "1")
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is still in progress"))
				default:
					writeStoredResponse(w, existing)
				}
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			status := capture.statusCode()

			// server faults release the key so the client can retry with it
			if status >= http.StatusInternalServerError {
				if err := store.Del(ctx, key); err != nil {
					logError(ctx, logg, "idempotency.release_failed", err)
				}
				return
			}

			payload, err := json.Marshal(idempotencyRecord{
				State:       stateComplete,
				RequestHash: requestHash,
				Status:      status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			})
			if err != nil {
				logError(ctx, logg, "idempotency.encode_failed", err)
				return
			}
			if err := store.Set(ctx, key, string(payload), ttl); err != nil {
				logError(ctx, logg, "idempotency.persist_failed", err)
			}
		})
	}
}

// reserve claims key with a pending marker. It returns nil when the caller owns the key,
// or the record already stored under it. Unreadable records are dropped and the claim
// retried once.
func reserve(ctx context.Context, store pkgredis.IdempotencyStore, key, requestHash string, logg *logger.Logger) (*idempotencyRecord, error) {
	marker, err := json.Marshal(idempotencyRecord{State: statePending, RequestHash: requestHash})
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < 2; attempt++ {
		claimed, err := store.SetNX(ctx, key, string(marker), pendingIdempotencyTTL)
		if err != nil {
			return nil, err
		}
		if claimed {
			return nil, nil
		}

		stored, err := store.Get(ctx, key)
		switch {
		case errors.Is(err, redis.Nil):
			// expired between SETNX and GET
			continue
		case err != nil:
			return nil, err
		}

		var record idempotencyRecord
		if err := json.Unmarshal([]byte(stored), &record); err == nil && record.State != "" {
			return &record, nil
		}
		logError(ctx, logg, "idempotency.corrupt_record", errors.New("unreadable idempotency record"))
		if err := store.Del(ctx, key); err != nil {
			return nil, err
		}
	}
	return nil, errors.New("could not claim idempotency key")
}

func buildScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, r.URL.Path}, "|")
}

func writeStoredResponse(w http.ResponseWriter, record *idempotencyRecord) {
	if record.ContentType != "" {
		w.Header().Set("Content-Type", record.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(record.Status)
	_, _ = w.Write(record.Body)
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	ttl, ok := idempotencyRules[method+" "+pattern]
	return ttl, ok
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
