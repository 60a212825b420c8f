package security

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/aistrategyllc/checkout-api/internal/common"
)

// BodyLimit enforces a maximum request payload size.
type BodyLimit struct {
	Max int64
}

// Middleware buffers the request body, answering 413 when it exceeds Max.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		body, ok := ReadBody(w, r, b.Max)
		if !ok {
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		next.ServeHTTP(w, r)
	})
}

// ReadBody reads at most max bytes of the request body. On failure it writes
// a JSON error (413 for oversized payloads, 400 otherwise) and reports false.
func ReadBody(w http.ResponseWriter, r *http.Request, max int64) ([]byte, bool) {
	if r.ContentLength > max {
		common.JSONError(w, http.StatusRequestEntityTooLarge, "Payload too large", "")
		return nil, false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, max))
	if err == nil {
		return body, true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		common.JSONError(w, http.StatusRequestEntityTooLarge, "Payload too large", "")
	} else {
		common.JSONError(w, http.StatusBadRequest, "Invalid payload", "")
	}
	return nil, false
}
