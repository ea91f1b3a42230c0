package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/student"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// confirmationResponse is the 409 body of a reconciliation that needs a decision.
type confirmationResponse struct {
	Error string `json:"error"`
	*attendance.ConfirmationRequired
}

// writeErrorResponse is the body of a reconciliation whose buckets partially failed.
type writeErrorResponse struct {
	Error   string             `json:"error"`
	Outcome attendance.Outcome `json:"outcome"`
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
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
		case *attendance.ConfirmationRequired:
			code = http.StatusConflict
			message = confirmationResponse{Error: origErr.Error(), ConfirmationRequired: origErr}
		default:
			switch {
			case origErr == attendance.ErrNotFound, origErr == student.ErrNotFound:
				code = http.StatusNotFound
				message = origErr.Error()
			case isTimeout(err):
				code = http.StatusGatewayTimeout
				message = http.StatusText(code)
				logger.Error(message.(string), errors.Wrap(err, "store timeout"), identity(ctx))
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg
				logger.Error(msg, errors.Wrap(err, msg), identity(ctx))

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
				if ctx.Echo().Debug {
					message = err.Error()
				}
			}
		}

		if m, ok := message.(string); ok {
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

func isTimeout(err error) bool {
	var sErr *attendance.StoreError
	if errors.As(err, &sErr) {
		return sErr.Timeout()
	}
	var wErr *attendance.WriteError
	return errors.As(err, &wErr) && wErr.Timeout()
}

func identity(ctx echo.Context) core.Identity {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return core.Identity{}
	}
	return claims.Identity()
}
