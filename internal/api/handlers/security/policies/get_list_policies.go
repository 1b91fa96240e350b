package policies

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/kashguard/go-sentinel/internal/api"
	"github.com/kashguard/go-sentinel/internal/api/httperrors"
	"github.com/kashguard/go-sentinel/internal/security/types"
	"github.com/kashguard/go-sentinel/internal/util"
)

type ListPoliciesResponse struct {
	Policies []*types.SecurityPolicy `json:"policies"`
	Total    int64                   `json:"total"`
}

func GetListPoliciesRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Security.GET("/policies", getListPoliciesHandler(s))
}

func getListPoliciesHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		// 解析查询参数
		activeOnly := false
		if activeStr := c.QueryParam("active"); activeStr != "" {
			if active, err := strconv.ParseBool(activeStr); err == nil {
				activeOnly = active
			}
		}

		policies, err := s.Security.Policies.List(ctx, activeOnly)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list policies")
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to list policies")
		}

		return c.JSON(http.StatusOK, &ListPoliciesResponse{
			Policies: policies,
			Total:    int64(len(policies)),
		})
	}
}
