package shim

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/apps/api/auth"
)

type contextKey int

const claimsKey contextKey = iota

// handlerFunc is an http.HandlerFunc returning its error for handle to write.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (h *Handler) handle(fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			h.writeError(w, r, err)
		}
	})
}

func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if len(hdr) > len("Bearer ") && strings.EqualFold(hdr[:len("Bearer ")], "Bearer ") {
		return hdr[len("Bearer "):]
	}
	return ""
}

// authMiddleware accepts requests carrying a valid token whose session is alive.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			h.writeError(w, r, errMissingToken)
			return
		}
		claims, err := h.deps.Auth.Parse(token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := h.deps.Auth.Touch(r.Context(), claims); err != nil {
			h.writeError(w, r, errors.Wrap(err, "touching session"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func contextClaims(r *http.Request) (*auth.Claims, error) {
	if claims, ok := r.Context().Value(claimsKey).(*auth.Claims); ok {
		return claims, nil
	}
	return nil, errMissingToken
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow(clientIP(r)) {
			h.writeError(w, r, errTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}
				h.writeError(w, r, errors.Wrap(err, "panic recovered"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
