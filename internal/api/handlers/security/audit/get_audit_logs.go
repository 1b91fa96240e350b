package audit

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

type ListEventsResponse struct {
	Events []*types.SecurityEvent `json:"events"`
	Total  int64                  `json:"total"`
}

func GetAuditLogsRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Security.GET("/audit/logs", getAuditLogsHandler(s))
}

func getAuditLogsHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		log := util.LogFromContext(ctx)

		filter, err := parseEventFilter(c)
		if err != nil {
			return err
		}

		events, err := s.Security.Audit.QueryEvents(ctx, filter)
		if err != nil {
			log.Error().Err(err).Msg("Failed to query audit logs")
			return httperrors.NewHTTPError(http.StatusInternalServerError, httperrors.TypeGeneric, "Failed to query audit logs")
		}

		return c.JSON(http.StatusOK, &ListEventsResponse{
			Events: events,
			Total:  int64(len(events)),
		})
	}
}

// parseEventFilter 解析查询参数，时间为 RFC3339
func parseEventFilter(c echo.Context) (*storage.EventFilter, error) {
	filter := &storage.EventFilter{
		UserID:         c.QueryParam("user_id"),
		OrganizationID: c.QueryParam("organization_id"),
		EventType:      c.QueryParam("event_type"),
		Outcome:        c.QueryParam("outcome"),
	}

	if startStr := c.QueryParam("start_time"); startStr != "" {
		start, err := strfmt.ParseDateTime(startStr)
		if err != nil {
			return nil, httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid start_time format")
		}
		startTime := time.Time(start)
		filter.StartTime = &startTime
	}
	if endStr := c.QueryParam("end_time"); endStr != "" {
		end, err := strfmt.ParseDateTime(endStr)
		if err != nil {
			return nil, httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeValidation, "Invalid end_time format")
		}
		endTime := time.Time(end)
		filter.EndTime = &endTime
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

	return filter, nil
}
