package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/kashguard/go-sentinel/internal/api"
	"github.com/kashguard/go-sentinel/internal/api/handlers/security/access"
	"github.com/kashguard/go-sentinel/internal/api/handlers/security/audit"
	"github.com/kashguard/go-sentinel/internal/api/handlers/security/compliance"
	"github.com/kashguard/go-sentinel/internal/api/handlers/security/keys"
	"github.com/kashguard/go-sentinel/internal/api/handlers/security/policies"
	"github.com/kashguard/go-sentinel/internal/api/handlers/security/violations"
)

// AttachAllRoutes registers every route group on the server router.
func AttachAllRoutes(s *api.Server) []*echo.Route {
	return []*echo.Route{
		policies.PostCreatePolicyRoute(s),
		policies.PutUpdatePolicyRoute(s),
		policies.GetPolicyRoute(s),
		policies.GetListPoliciesRoute(s),
		access.PostCheckPermissionRoute(s),
		audit.PostLogEventRoute(s),
		audit.GetAuditLogsRoute(s),
		violations.GetListViolationsRoute(s),
		violations.GetViolationRoute(s),
		compliance.PostRunCheckRoute(s),
		keys.GetListKeysRoute(s),
		keys.PostRotateKeysRoute(s),
	}
}
