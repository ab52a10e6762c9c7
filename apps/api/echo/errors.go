package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-live/core"
	"github.com/trezcool/masomo-live/core/liveclass"
	"github.com/trezcool/masomo-live/core/payment"
	"github.com/trezcool/masomo-live/core/subscription"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// domainErrCode maps the domain errors safe to show to the caller as is.
func domainErrCode(cause error) (int, bool) {
	switch cause {
	case liveclass.ErrNotFound, subscription.ErrNotFound:
		return http.StatusNotFound, true
	case payment.ErrInvalidSignature:
		return http.StatusBadRequest, true
	case subscription.ErrInvalidState:
		return http.StatusConflict, true
	case subscription.ErrNotRegistered, subscription.ErrNotApproved:
		return http.StatusForbidden, true
	}
	return 0, false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if c, ok := domainErrCode(cause); ok {
			code = c
			message = domainErrMessage(err, cause)
		} else {
			switch origErr := cause.(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if origErr.Fields != nil {
					fldErrs := make(map[string]string, len(origErr.Fields))
					for _, fErr := range origErr.Fields {
						fldErrs[fErr.Field] = fErr.Error
					}
					message = fldErrs
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			case *liveclass.ProvisioningError:
				code = http.StatusBadGateway
				message = "meeting provider unavailable, please retry later"
				logger.Error(origErr.Error(), err, requestActor(ctx))
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				logger.Error(msg, errors.Wrap(err, msg), requestActor(ctx))

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// domainErrMessage keeps the detail attached to ErrInvalidState (which transition was refused)
// and drops the handler-level wrapping.
func domainErrMessage(err, cause error) string {
	if cause == subscription.ErrInvalidState {
		for e := err; e != nil; e = errors.Unwrap(e) {
			if errors.Unwrap(e) == cause {
				return e.Error()
			}
		}
	}
	return cause.Error()
}

// requestActor identifies the requester in error reports, if authenticated.
func requestActor(ctx echo.Context) core.Actor {
	if claims, err := getContextClaims(ctx); err == nil {
		return claims.Actor()
	}
	return core.Actor{}
}
