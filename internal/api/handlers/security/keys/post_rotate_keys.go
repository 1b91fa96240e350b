package keys

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kashguard/go-sentinel/internal/api"
	"github.com/kashguard/go-sentinel/internal/api/httperrors"
	"github.com/kashguard/go-sentinel/internal/util"
)

// forceRotationWindow 超过密钥最大有效期，保证轮换一定发生
const forceRotationWindow = 91 * 24 * time.Hour

type RotateKeysPayload struct {
	// WithinHours 仅当活动密钥剩余有效期低于该值时才轮换，0 表示强制轮换
	WithinHours int `json:"within_hours"`
}

func PostRotateKeysRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Security.POST("/keys/rotate", postRotateKeysHandler(s))
}

func postRotateKeysHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		var payload RotateKeysPayload
		if err := c.Bind(&payload); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid request payload")
		}

		within := forceRotationWindow
		if payload.WithinHours > 0 {
			within = time.Duration(payload.WithinHours) * time.Hour
		}

		rotated, err := s.Security.Keys.Rotate(ctx, within)
		if err != nil {
			log.Error().Err(err).Msg("Failed to rotate keys")
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to rotate keys")
		}
		if rotated == nil {
			// 未到轮换窗口
			return c.NoContent(http.StatusNoContent)
		}

		return c.JSON(http.StatusOK, toKeyResponse(rotated))
	}
}
