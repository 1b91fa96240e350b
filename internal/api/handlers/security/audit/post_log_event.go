package audit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kashguard/go-sentinel/internal/api"
	"github.com/kashguard/go-sentinel/internal/api/httperrors"
	"github.com/kashguard/go-sentinel/internal/security/audit"
	"github.com/kashguard/go-sentinel/internal/security/types"
	"github.com/kashguard/go-sentinel/internal/util"
)

type LogEventPayload struct {
	Type      string                 `json:"type"`
	Severity  types.Severity         `json:"severity"`
	UserID    string                 `json:"user_id"`
	Resource  string                 `json:"resource"`
	Action    string                 `json:"action"`
	Outcome   types.Outcome          `json:"outcome"`
	Metadata  map[string]interface{} `json:"metadata"`
	Context   *types.AccessContext   `json:"context"`
	RiskScore *float64               `json:"risk_score"`
}

func PostLogEventRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Security.POST("/audit/events", postLogEventHandler(s))
}

func postLogEventHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var payload LogEventPayload
		if err := c.Bind(&payload); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid request payload")
		}
		if payload.Type == "" {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "type is required")
		}

		event, err := s.Security.LogSecurityEvent(ctx, &audit.EventInput{
			Type:      payload.Type,
			Severity:  payload.Severity,
			UserID:    payload.UserID,
			Resource:  payload.Resource,
			Action:    payload.Action,
			Outcome:   payload.Outcome,
			Metadata:  payload.Metadata,
			Context:   payload.Context,
			RiskScore: payload.RiskScore,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to log security event")
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to log security event")
		}

		return c.JSON(http.StatusCreated, event)
	}
}
