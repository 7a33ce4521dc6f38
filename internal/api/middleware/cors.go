package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

var (
	corsMethods = []string{"POST", "GET", "PUT", "DELETE", "OPTIONS"}
	corsHeaders = []string{"clientid", "Authorization", "Content-Type", "Accept"}
)

// CORS sets the cross-origin headers on every response. Preflight requests
// are passed on so the dispatcher can answer them from the route table.
func CORS(allowedOrigins ...string) echo.MiddlewareFunc {
	methods := strings.Join(corsMethods, ", ")
	headers := strings.Join(corsHeaders, ", ")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if allowed := allowOrigin(origin, allowedOrigins); allowed != "" {
				h := c.Response().Header()
				h.Set(echo.HeaderAccessControlAllowOrigin, allowed)
				h.Set(echo.HeaderAccessControlAllowMethods, methods)
				h.Set(echo.HeaderAccessControlAllowHeaders, headers)
				h.Add(echo.HeaderVary, echo.HeaderOrigin)
			}
			return next(c)
		}
	}
}

func allowOrigin(origin string, allowed []string) string {
	for _, a := range allowed {
		if a == "*" {
			return "*"
		}
		if origin != "" && origin == a {
			return origin
		}
	}
	return ""
}
