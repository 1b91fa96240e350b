package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kashguard/go-sentinel/internal/api"
	"github.com/kashguard/go-sentinel/internal/api/handlers"
	"github.com/kashguard/go-sentinel/internal/api/httperrors"
)

// Init 初始化 echo 实例、路由分组与全部处理器
func Init(s *api.Server) {
	s.Echo = echo.New()
	s.Echo.HideBanner = true
	s.Echo.HTTPErrorHandler = httperrors.HandlerWithConfig(s.Config.Echo.HideInternalServerErrorDetails)

	if s.Config.Echo.EnableRecoverMiddleware {
		s.Echo.Use(middleware.Recover())
	}
	if s.Config.Echo.EnableLoggerMiddleware {
		s.Echo.Use(middleware.RequestID())
		s.Echo.Use(middleware.Logger())
	}
	if s.Config.Echo.EnableCORSMiddleware {
		s.Echo.Use(middleware.CORS())
	}

	s.Router = &api.Router{
		Root:          s.Echo.Group(""),
		Management:    s.Echo.Group("/-"),
		APIV1Security: s.Echo.Group("/api/v1/security"),
	}

	s.Router.Management.GET("/ready", func(c echo.Context) error {
		if !s.Ready() {
			return c.String(http.StatusServiceUnavailable, "Not ready.")
		}

		return c.String(http.StatusOK, "Ready.")
	})
	s.Router.Management.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.Router.Routes = handlers.AttachAllRoutes(s)
}
