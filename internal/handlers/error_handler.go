package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"popdesk/internal/common"
	"popdesk/internal/services"
)

type errorHandler struct {
	mailer   services.Mailer
	notifyTo []string
}

// NewHTTPErrorHandler builds the central error handler. Handlers return
// service errors as-is and this maps them onto HTTP statuses; everything
// unrecognized becomes a generic 500 so upstream details never leak to
// clients. Upstream and unhandled failures additionally trigger a
// best-effort notification mail to notifyTo.
func NewHTTPErrorHandler(mailer services.Mailer, notifyTo []string) echo.HTTPErrorHandler {
	h := &errorHandler{mailer: mailer, notifyTo: notifyTo}
	return h.handle
}

func (h *errorHandler) handle(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		respond(c, httpErr.Code, httpErr.Message)
		return
	}

	var (
		validationErr *common.ValidationError
		notFoundErr   *common.NotFoundError
		authErr       *common.AuthError
		rateErr       *common.RateLimitError
		upstreamErr   *common.UpstreamError
	)
	switch {
	case errors.As(err, &validationErr):
		details := map[string]string{validationErr.Field: validationErr.Message}
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", details)
	case errors.Is(err, common.ErrInvalidToken):
		writeError(c, http.StatusBadRequest, "INVALID_TOKEN", "Invalid or expired token", nil)
	case errors.As(err, &notFoundErr):
		writeError(c, http.StatusNotFound, "NOT_FOUND", notFoundErr.Error(), nil)
	case errors.As(err, &authErr):
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", authErr.Reason, nil)
	case errors.As(err, &rateErr):
		writeError(c, http.StatusServiceUnavailable, "BACKEND_RATE_LIMITED", "The data backend is rate limiting requests, try again shortly", nil)
	case errors.As(err, &upstreamErr):
		log.Printf("ERROR: upstream failure on %s %s: %v", c.Request().Method, c.Path(), err)
		h.notify(c, "Upstream failure", err)
		writeError(c, http.StatusBadGateway, "BACKEND_UNAVAILABLE", "The data backend is unavailable", nil)
	default:
		log.Printf("ERROR: unhandled error on %s %s: %v", c.Request().Method, c.Path(), err)
		h.notify(c, "Unhandled error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
	}
}

// notify mails the failure to the operators. The body is built before the
// goroutine starts so the request context is not touched after the response
// is written.
func (h *errorHandler) notify(c echo.Context, subject string, err error) {
	if h.mailer == nil || len(h.notifyTo) == 0 {
		return
	}

	user := "anonymous"
	if email, ok := common.GetUserEmailFromContext(c.Request().Context()); ok {
		user = email
	}
	body := fmt.Sprintf(
		"<p><b>%s</b></p><p>User: %s<br>Operation: %s %s<br>Time: %s</p><pre>%v</pre>",
		subject, user, c.Request().Method, c.Path(),
		time.Now().UTC().Format(time.RFC3339), err,
	)
	go h.mailer.Send("popdesk: "+subject, body, h.notifyTo)
}

func respond(c echo.Context, code int, message interface{}) {
	msg, ok := message.(string)
	if !ok {
		msg = http.StatusText(code)
	}
	writeError(c, code, "HTTP_ERROR", msg, nil)
}

func writeError(c echo.Context, code int, errCode, message string, details map[string]string) {
	var err error
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, common.CreateErrorResponse(errCode, message, details))
	}
	if err != nil {
		log.Printf("ERROR: failed to write error response: %v", err)
	}
}
