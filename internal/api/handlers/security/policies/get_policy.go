package policies

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kashguard/go-sentinel/internal/api"
	"github.com/kashguard/go-sentinel/internal/api/httperrors"
	"github.com/kashguard/go-sentinel/internal/security/policy"
	"github.com/kashguard/go-sentinel/internal/util"
)

func GetPolicyRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Security.GET("/policies/:policyId", getPolicyHandler(s))
}

func getPolicyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		policyID := c.Param("policyId")
		if policyID == "" {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "policyId parameter is required")
		}

		found, err := s.Security.Policies.Get(ctx, policyID)
		if err != nil {
			if errors.Is(err, policy.ErrPolicyNotFound) {
				return httperrors.NewHTTPError(http.StatusNotFound, httperrors.TypeNotFound, "Policy not found")
			}

			log.Error().Err(err).Msg("Failed to get policy")
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to get policy")
		}

		return c.JSON(http.StatusOK, found)
	}
}
