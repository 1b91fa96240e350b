package policies

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kashguard/go-sentinel/internal/api"
	"github.com/kashguard/go-sentinel/internal/api/httperrors"
	"github.com/kashguard/go-sentinel/internal/security/policy"
	"github.com/kashguard/go-sentinel/internal/security/types"
	"github.com/kashguard/go-sentinel/internal/util"
)

type UpdatePolicyPayload struct {
	Name          *string                        `json:"name"`
	IsActive      *bool                          `json:"is_active"`
	Rules         *[]types.SecurityRule          `json:"rules"`
	Compliance    *[]types.ComplianceRequirement `json:"compliance"`
	AuditSettings *types.AuditSettings           `json:"audit_settings"`
}

func PutUpdatePolicyRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Security.PUT("/policies/:policyId", putUpdatePolicyHandler(s))
}

func putUpdatePolicyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		policyID := c.Param("policyId")
		if policyID == "" {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "policyId parameter is required")
		}

		var payload UpdatePolicyPayload
		if err := c.Bind(&payload); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid request payload")
		}

		patch := &policy.Patch{
			Name:          payload.Name,
			IsActive:      payload.IsActive,
			Rules:         payload.Rules,
			Compliance:    payload.Compliance,
			AuditSettings: payload.AuditSettings,
		}

		updated, err := s.Security.Policies.Update(ctx, policyID, patch)
		if err != nil {
			if errors.Is(err, policy.ErrPolicyNotFound) {
				return httperrors.NewHTTPError(http.StatusNotFound, httperrors.TypeNotFound, "Policy not found")
			}
			if errors.Is(err, policy.ErrInvalidPolicy) {
				return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, err.Error())
			}

			log.Error().Err(err).Msg("Failed to update policy")
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to update policy")
		}

		return c.JSON(http.StatusOK, updated)
	}
}
