package violations

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kashguard/go-sentinel/internal/api"
	"github.com/kashguard/go-sentinel/internal/api/httperrors"
	"github.com/kashguard/go-sentinel/internal/security/storage"
	"github.com/kashguard/go-sentinel/internal/util"
)

func GetViolationRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Security.GET("/violations/:violationId", getViolationHandler(s))
}

func getViolationHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		violationID := c.Param("violationId")
		if violationID == "" {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "violationId parameter is required")
		}

		violation, err := s.Security.Violations.Get(ctx, violationID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return httperrors.NewHTTPError(http.StatusNotFound, httperrors.TypeNotFound, "Violation not found")
			}

			log.Error().Err(err).Msg("Failed to get violation")
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to get violation")
		}

		return c.JSON(http.StatusOK, violation)
	}
}
