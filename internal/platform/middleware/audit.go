package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/platform/auth"
)

// AuditEntry records who changed which clinic record and with what outcome.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Resource   string
	ResourceID string
	Action     string
	Method     string
	Route      string
	IPAddress  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

var auditedResources = map[string]bool{
	"patients":  true,
	"queue":     true,
	"anamnesis": true,
	"users":     true,
}

// Audit emits a structured "audit" log line for every state-changing request
// against patient, queue, anamnesis or user routes. Reads are not audited.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			action := httpMethodToAction(req.Method)
			if action == "" {
				return next(c)
			}
			resource := auditResource(c.Path())
			if resource == "" {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = StatusFromError(err)
			}

			ctx := req.Context()
			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				Resource:   resource,
				ResourceID: c.Param("id"),
				Action:     auditAction(action, c.Path()),
				Method:     req.Method,
				Route:      c.Path(),
				IPAddress:  c.RealIP(),
				StatusCode: status,
				Timestamp:  time.Now().UTC(),
			}
			entry.RequestID, _ = c.Get("request_id").(string)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("route", entry.Route).
				Int("status", entry.StatusCode).
				Str("ip", entry.IPAddress).
				Msg("audit")

			return err
		}
	}
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return ""
	}
}

// auditResource picks the most specific audited segment of a route pattern,
// so /queue/:id/anamnesis is reported as anamnesis.
func auditResource(route string) string {
	resource := ""
	for _, seg := range strings.Split(strings.Trim(route, "/"), "/") {
		if auditedResources[seg] {
			resource = seg
		}
	}
	return resource
}

// auditAction names operations that are not plain CRUD, such as attend.
func auditAction(action, route string) string {
	if strings.HasSuffix(route, "/attend") {
		return "attend"
	}
	if strings.HasPrefix(route, "/queue") && action == "delete" {
		return "cancel"
	}
	return action
}
