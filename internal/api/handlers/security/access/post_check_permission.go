package access

import (
	"net/http"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/labstack/echo/v4"

	"github.com/kashguard/go-sentinel/internal/api"
	"github.com/kashguard/go-sentinel/internal/api/httperrors"
	"github.com/kashguard/go-sentinel/internal/security/types"
)

type CheckPermissionPayload struct {
	UserID   string               `json:"user_id"`
	Resource string               `json:"resource"`
	Action   string               `json:"action"`
	Context  *types.AccessContext `json:"context"`
}

type CheckPermissionResponse struct {
	Granted   bool            `json:"granted"`
	CheckedAt strfmt.DateTime `json:"checked_at"`
}

func PostCheckPermissionRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Security.POST("/access/check", postCheckPermissionHandler(s))
}

func postCheckPermissionHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var payload CheckPermissionPayload
		if err := c.Bind(&payload); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid request payload")
		}
		if payload.UserID == "" || payload.Resource == "" || payload.Action == "" {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "user_id, resource and action are required")
		}

		// 判定本身失败即拒绝，处理器不区分错误
		granted := s.Security.CheckPermission(ctx, payload.UserID, payload.Resource, payload.Action, payload.Context)

		return c.JSON(http.StatusOK, &CheckPermissionResponse{
			Granted:   granted,
			CheckedAt: strfmt.DateTime(time.Now()),
		})
	}
}
