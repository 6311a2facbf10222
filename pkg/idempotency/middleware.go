package idempotency

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

const Header = "Idempotency-Key"

func HeaderKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

// Middleware replays the first successful response for a repeated
// Idempotency-Key. Requests without the header pass straight through.
// Only 2xx responses are cached; anything else releases the key.
func Middleware(log *slog.Logger, store *Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := HeaderKey(r)
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := "idem:http:" + r.Method + ":" + r.URL.Path + ":" + clientKey

			cached, err := store.Begin(r.Context(), key)
			switch {
			case errors.Is(err, ErrInFlight):
				writeError(w, http.StatusConflict, err.Error())
				return
			case err != nil:
				log.Error("idempotency lookup failed", "key", clientKey, "err", err)
				writeError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
				return
			case cached != nil:
				if cached.ContentType != "" {
					w.Header().Set("Content-Type", cached.ContentType)
				}
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(cached.Status)
				_, _ = w.Write(cached.Body)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= 200 && rec.status < 300 {
				resp := Response{Status: rec.status, ContentType: rec.Header().Get("Content-Type"), Body: rec.body.Bytes()}
				if err := store.Complete(r.Context(), key, resp); err != nil {
					log.Error("idempotency store failed", "key", clientKey, "err", err)
				}
				return
			}
			if err := store.Release(r.Context(), key); err != nil {
				log.Error("idempotency release failed", "key", clientKey, "err", err)
			}
		})
	}
}

type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
