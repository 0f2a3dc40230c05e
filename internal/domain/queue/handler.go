package queue

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/validation"
	"github.com/clinicq/clinicq/pkg/apperrors"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	// Any signed-in caller; Cancel and Position narrow patients to their own
	// records in the service.
	read := g.Group("/queue", auth.RequireAuthenticated())
	read.GET("", h.List)
	read.GET("/position", h.Position)
	read.GET("/estimate", h.Estimate)
	read.GET("/:id", h.Get)
	read.DELETE("/:id", h.Cancel)

	patients := g.Group("/queue", auth.RequireRole(auth.RoleUser))
	patients.POST("", h.Enqueue)

	doctors := g.Group("/queue", auth.RequireRole(auth.RoleDoctor))
	doctors.POST("/:id/attend", h.Attend)
}

func (h *Handler) Enqueue(c echo.Context) error {
	var req EnqueueRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	e, err := h.svc.Enqueue(c.Request().Context(), req.CPF, req.IsPriority)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, e)
}

// List returns the waiting list. ?priority=true|false narrows it to one
// class; any other value is ignored.
func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context(), parsePriority(c.QueryParam("priority")))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func parsePriority(v string) *bool {
	var b bool
	switch v {
	case "true":
		b = true
	case "false":
		b = false
	default:
		return nil
	}
	return &b
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.NewValidationError("invalid id")
	}
	e, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Attend(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.NewValidationError("invalid id")
	}
	e, err := h.svc.Attend(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "patient attended",
		"entry":   e,
	})
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.NewValidationError("invalid id")
	}
	e, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "queue entry cancelled",
		"entry":   e,
	})
}

func (h *Handler) Position(c echo.Context) error {
	raw := c.QueryParam("patient_id")
	if raw == "" {
		return apperrors.NewValidationError("patient_id is required")
	}
	patientID, err := uuid.Parse(raw)
	if err != nil {
		return apperrors.NewValidationError("invalid patient_id")
	}
	pos, err := h.svc.PositionOf(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pos)
}

func (h *Handler) Estimate(c echo.Context) error {
	est, err := h.svc.Estimate(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, est)
}
