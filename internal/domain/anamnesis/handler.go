package anamnesis

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
	// Patients may work on their own record; the service checks ownership.
	patients := g.Group("/patients/:id/anamnesis", auth.RequireAuthenticated())
	patients.GET("", h.ListForPatient)
	patients.POST("", h.CreateForPatient)
	patients.PUT("/:anamnesisId", h.UpdateForPatient)

	staff := g.Group("/queue/:id/anamnesis", auth.RequireRole(auth.RoleDoctor))
	staff.GET("", h.GetForEntry)
	staff.POST("", h.CreateForEntry)
	staff.PUT("", h.UpdateForEntry)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperrors.NewValidationError("invalid " + name)
	}
	return id, nil
}

func (h *Handler) ListForPatient(c echo.Context) error {
	patientID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListForPatient(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateForPatient(c echo.Context) error {
	patientID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req Request
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	rec, err := h.svc.CreateForPatient(c.Request().Context(), patientID, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "anamnesis created",
		"id":      rec.ID,
	})
}

func (h *Handler) UpdateForPatient(c echo.Context) error {
	patientID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	recordID, err := parseID(c, "anamnesisId")
	if err != nil {
		return err
	}
	var req Request
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	rec, err := h.svc.UpdateForPatient(c.Request().Context(), patientID, recordID, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetForEntry(c echo.Context) error {
	entryID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	rec, err := h.svc.GetForEntry(c.Request().Context(), entryID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) CreateForEntry(c echo.Context) error {
	entryID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req Request
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	rec, err := h.svc.CreateForEntry(c.Request().Context(), entryID, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) UpdateForEntry(c echo.Context) error {
	entryID, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req Request
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	rec, err := h.svc.UpdateForEntry(c.Request().Context(), entryID, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}
