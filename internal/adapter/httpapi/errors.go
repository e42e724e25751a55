package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"authflow/internal/apperr"
)

// statusByCode lists the codes with a dedicated response. Anything else is
// answered by the generic 500 notifier.
var statusByCode = map[int][]apperr.Code{
	http.StatusBadRequest: {
		apperr.CodeValidation,
		apperr.CodeInvalidPassword,
		apperr.CodePasswordsMismatch,
		apperr.CodeInvalidResetToken,
	},
	http.StatusUnauthorized: {
		apperr.CodeInvalidCredentials,
		apperr.CodeUnauthorized,
		apperr.CodeSocialAuthFailed,
	},
	http.StatusForbidden:          {apperr.CodeForbidden},
	http.StatusNotFound:           {apperr.CodeNotFound},
	http.StatusConflict:           {apperr.CodeEmailTaken, apperr.CodeConflict},
	http.StatusTooManyRequests:    {apperr.CodeTooManyRequests},
	http.StatusBadGateway:         {apperr.CodeNetwork},
	http.StatusServiceUnavailable: {apperr.CodeServiceUnavailable, apperr.CodeSocialAuthUnavailable},
	http.StatusGatewayTimeout:     {apperr.CodeTimeout},
}

var errNoRequest = errors.New("httpapi: notifier called without a request")

func (s *Server) router() *apperr.Router {
	r := apperr.NewRouter(s.respond(http.StatusInternalServerError, apperr.CodeGeneric))
	for status, codes := range statusByCode {
		r.RouteAll(s.respond(status, ""), codes...)
	}
	return r
}

// respond writes the error envelope with status. A non-empty force replaces
// the notified code in the body.
func (s *Server) respond(status int, force apperr.Code) apperr.Notifier {
	return apperr.NotifierFunc(func(ctx context.Context, code apperr.Code) error {
		c, ok := ctx.Value(ginKey{}).(*gin.Context)
		if !ok {
			return errNoRequest
		}
		if force != "" {
			code = force
		}
		locale := s.cat.Locale(c.GetHeader("Accept-Language"))
		payload := apperr.ErrorPayload{Code: code, Message: s.cat.Message(locale, code)}
		if e, ok := apperr.FromContext(ctx); ok && force == "" {
			if d, ok := e.Data().(*apperr.ValidationDetail); ok {
				payload.Fields = make([]apperr.FieldViolation, len(d.Fields))
				copy(payload.Fields, d.Fields)
				for i := range payload.Fields {
					if payload.Fields[i].Message == "" {
						payload.Fields[i].Message = payload.Message
					}
				}
			}
		}
		c.Header("Content-Language", locale)
		c.AbortWithStatusJSON(status, apperr.ErrorBody{Error: payload})
		return nil
	})
}
