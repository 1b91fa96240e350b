package compliance

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kashguard/go-sentinel/internal/api"
	"github.com/kashguard/go-sentinel/internal/api/httperrors"
	"github.com/kashguard/go-sentinel/internal/security/types"
	"github.com/kashguard/go-sentinel/internal/util"
)

type RunCheckPayload struct {
	// Framework 为空时覆盖全部框架
	Framework types.Framework `json:"framework"`
}

func PostRunCheckRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Security.POST("/compliance/check", postRunCheckHandler(s))
}

func postRunCheckHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var payload RunCheckPayload
		if err := c.Bind(&payload); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid request payload")
		}

		report, err := s.Security.RunComplianceCheck(ctx, payload.Framework)
		if err != nil {
			log.Error().Err(err).Msg("Failed to run compliance check")
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to run compliance check")
		}

		return c.JSON(http.StatusOK, report)
	}
}
