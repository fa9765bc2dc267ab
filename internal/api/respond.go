package api

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/matzehuels/gangsheet/pkg/errors"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	msg := errors.UserMessage(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
		if code == errors.ErrCodeInternal {
			msg = "internal error"
		}
	}
	s.respond(w, r, status, errorResponse{Code: code, Message: msg})
}

func decode(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid JSON body")
	}
	return nil
}
