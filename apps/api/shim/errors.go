package shim

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/apps/api/auth"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// httpError is an error answered with its own status code and message.
type httpError struct {
	Code    int
	Message string
}

func (e *httpError) Error() string { return e.Message }

var (
	errMissingToken    = &httpError{http.StatusUnauthorized, "missing or malformed jwt"}
	errInvalidToken    = &httpError{http.StatusUnauthorized, "invalid or expired jwt"}
	errSessionExpired  = &httpError{http.StatusUnauthorized, "session expired"}
	errAuthFailed      = &httpError{http.StatusBadRequest, "authentication failed"}
	errDeactivated     = &httpError{http.StatusForbidden, "account deactivated"}
	errNotFound        = &httpError{http.StatusNotFound, "not found"}
	errBadRequest      = &httpError{http.StatusBadRequest, "malformed request body"}
	errTooManyRequests = &httpError{http.StatusTooManyRequests, "too many requests"}
)

type errorBody struct {
	Error string `json:"error"`
}

// response returns the status code and the JSON body err is answered with.
func (h *Handler) response(err error) (int, interface{}) {
	switch cause := errors.Cause(err); cause {
	case auth.ErrAuthenticationFailed:
		err = errAuthFailed
	case auth.ErrAccountDeactivated:
		err = errDeactivated
	case auth.ErrInvalidToken:
		err = errInvalidToken
	case auth.ErrSessionExpired:
		err = errSessionExpired
	}

	switch cause := errors.Cause(err).(type) {
	case *httpError:
		return cause.Code, errorBody{Error: cause.Message}
	case *core.NotFoundError:
		return http.StatusNotFound, errorBody{Error: cause.Error()}
	case validator.ValidationErrors:
		fields := make(map[string]string, len(cause))
		for _, vErr := range cause {
			fields[vErr.Field()] = vErr.Translate(h.deps.Translator)
		}
		return http.StatusBadRequest, fields
	case *core.ValidationError:
		if cause.Fields == nil {
			return http.StatusBadRequest, errorBody{Error: cause.Error()}
		}
		fields := make(map[string]string, len(cause.Fields))
		for _, fErr := range cause.Fields {
			fields[fErr.Field] = fErr.Error
		}
		return http.StatusBadRequest, fields
	}
	return http.StatusInternalServerError, errorBody{Error: http.StatusText(http.StatusInternalServerError)}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, body := h.response(err)
	if code == http.StatusInternalServerError {
		var usr user.User
		if claims, cErr := contextClaims(r); cErr == nil {
			usr.ID = claims.Subject
			usr.Username = claims.Username
			usr.Email = claims.Email
		}
		msg := http.StatusText(code)
		h.deps.Logger.Error(msg, errors.Wrap(err, msg), usr)
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
