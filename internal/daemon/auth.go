package daemon

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"photoline/internal/faults"
)

// authMiddleware returns a middleware that validates bearer tokens.
// If token is empty, no authentication is required and all requests pass through.
// Otherwise, requests must include "Authorization: Bearer <token>" header.
func authMiddleware(token string, next http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		presented, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			body := faults.Response(faults.New(faults.AuthTokenInvalid, "", nil), false)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(body.HTTPStatus)
			_ = json.NewEncoder(w).Encode(body)
			return
		}
		next(w, r)
	}
}
