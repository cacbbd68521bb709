package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/burenotti/go_course_backend/internal/app/auth"
	"github.com/labstack/echo/v4"
	"github.com/mileusna/useragent"
	slogecho "github.com/samber/slog-echo"
)

const KeyCurrentUser = "current_user"

func LoginRequired(authorizer *auth.Authorizer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			parts := strings.Split(header, " ")
			if len(parts) != 2 {
				return JsonError(c, http.StatusUnauthorized, "Invalid Authorization header")
			}
			if parts[0] != "Bearer" {
				return JsonError(c, http.StatusUnauthorized, "Invalid Authorization header")
			}
			user, err := authorizer.ValidateAccessToken(parts[1])
			if err != nil {
				return JsonError(c, http.StatusUnauthorized, err.Error())
			}
			c.Set(KeyCurrentUser, user)
			slogecho.AddCustomAttributes(c, slog.String("requester", user.UserID))
			return next(c)
		}
	}
}

// ClientInfo adds the parsed user agent to the access log record.
func ClientInfo() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if raw := c.Request().UserAgent(); raw != "" {
				ua := useragent.Parse(raw)
				slogecho.AddCustomAttributes(c, slog.Group("client",
					slog.String("name", ua.Name),
					slog.String("os", ua.OS),
					slog.Bool("bot", ua.Bot),
				))
			}
			return next(c)
		}
	}
}

func requester(c echo.Context) string {
	return c.Get(KeyCurrentUser).(*auth.AccessTokenData).UserID
}
