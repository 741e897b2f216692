package middleware

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// UploadBasicAuth protects the upload endpoints with HTTP basic auth
// against a static operator list from configuration. Upload access is
// deliberately separate from the session login.
func UploadBasicAuth(credentials map[string]string) echo.MiddlewareFunc {
	return echomw.BasicAuth(func(username, password string, c echo.Context) (bool, error) {
		expected, ok := credentials[username]
		if !ok {
			return false, nil
		}
		return subtle.ConstantTimeCompare([]byte(expected), []byte(password)) == 1, nil
	})
}
