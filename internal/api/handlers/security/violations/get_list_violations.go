package violations

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/labstack/echo/v4"

	"github.com/kashguard/go-sentinel/internal/api"
	"github.com/kashguard/go-sentinel/internal/api/httperrors"
	"github.com/kashguard/go-sentinel/internal/security/storage"
	"github.com/kashguard/go-sentinel/internal/security/types"
	"github.com/kashguard/go-sentinel/internal/util"
)

type ListViolationsResponse struct {
	Violations []*types.SecurityViolation `json:"violations"`
	Total      int64                      `json:"total"`
}

func GetListViolationsRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Security.GET("/violations", getListViolationsHandler(s))
}

func getListViolationsHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		// 解析查询参数
		filter := &storage.ViolationFilter{
			RuleID:   c.QueryParam("rule_id"),
			Severity: c.QueryParam("severity"),
			Status:   c.QueryParam("status"),
		}

		if sinceStr := c.QueryParam("since"); sinceStr != "" {
			since, err := strfmt.ParseDateTime(sinceStr)
			if err != nil {
				return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid since format")
			}
			sinceTime := time.Time(since)
			filter.Since = &sinceTime
		}
		if limitStr := c.QueryParam("limit"); limitStr != "" {
			if limit, err := strconv.Atoi(limitStr); err == nil {
				filter.Limit = limit
			}
		}
		if offsetStr := c.QueryParam("offset"); offsetStr != "" {
			if offset, err := strconv.Atoi(offsetStr); err == nil {
				filter.Offset = offset
			}
		}

		violations, err := s.Security.Violations.List(ctx, filter)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list violations")
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to list violations")
		}

		return c.JSON(http.StatusOK, &ListViolationsResponse{
			Violations: violations,
			Total:      int64(len(violations)),
		})
	}
}
