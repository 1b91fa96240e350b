package keys

import (
	"net/http"

	"github.com/go-openapi/strfmt"
	"github.com/labstack/echo/v4"

	"github.com/kashguard/go-sentinel/internal/api"
	"github.com/kashguard/go-sentinel/internal/api/httperrors"
	"github.com/kashguard/go-sentinel/internal/security/types"
	"github.com/kashguard/go-sentinel/internal/util"
)

// KeyResponse 不包含密钥材料
type KeyResponse struct {
	ID        string          `json:"id"`
	Algorithm string          `json:"algorithm"`
	CreatedAt strfmt.DateTime `json:"created_at"`
	ExpiresAt strfmt.DateTime `json:"expires_at"`
	IsActive  bool            `json:"is_active"`
}

type ListKeysResponse struct {
	Keys  []*KeyResponse `json:"keys"`
	Total int64          `json:"total"`
}

func GetListKeysRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Security.GET("/keys", getListKeysHandler(s))
}

func getListKeysHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		managed, err := s.Security.Keys.ListKeys(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list keys")
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to list keys")
		}

		keyResponses := make([]*KeyResponse, 0, len(managed))
		for _, k := range managed {
			keyResponses = append(keyResponses, toKeyResponse(k))
		}

		return c.JSON(http.StatusOK, &ListKeysResponse{
			Keys:  keyResponses,
			Total: int64(len(keyResponses)),
		})
	}
}

func toKeyResponse(k *types.EncryptionKey) *KeyResponse {
	return &KeyResponse{
		ID:        k.ID,
		Algorithm: k.Algorithm,
		CreatedAt: strfmt.DateTime(k.CreatedAt),
		ExpiresAt: strfmt.DateTime(k.ExpiresAt),
		IsActive:  k.IsActive,
	}
}
