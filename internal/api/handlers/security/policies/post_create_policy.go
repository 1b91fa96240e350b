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

type CreatePolicyPayload struct {
	Name           string                        `json:"name"`
	OrganizationID string                        `json:"organization_id"`
	IsActive       *bool                         `json:"is_active"`
	Rules          []types.SecurityRule          `json:"rules"`
	Compliance     []types.ComplianceRequirement `json:"compliance"`
	AuditSettings  *types.AuditSettings          `json:"audit_settings"`
}

func PostCreatePolicyRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Security.POST("/policies", postCreatePolicyHandler(s))
}

func postCreatePolicyHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var payload CreatePolicyPayload
		if err := c.Bind(&payload); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid request payload")
		}
		if payload.Name == "" {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "name is required")
		}

		// 转换请求
		newPolicy := &types.SecurityPolicy{
			Name:           payload.Name,
			OrganizationID: payload.OrganizationID,
			IsActive:       true,
			Rules:          payload.Rules,
			Compliance:     payload.Compliance,
		}
		if payload.IsActive != nil {
			newPolicy.IsActive = *payload.IsActive
		}
		if payload.AuditSettings != nil {
			newPolicy.AuditSettings = *payload.AuditSettings
		}

		created, err := s.Security.Policies.Create(ctx, newPolicy)
		if err != nil {
			if errors.Is(err, policy.ErrInvalidPolicy) {
				return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, err.Error())
			}

			log.Error().Err(err).Msg("Failed to create policy")
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to create policy")
		}

		return c.JSON(http.StatusCreated, created)
	}
}
