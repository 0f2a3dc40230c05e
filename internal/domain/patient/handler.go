package patient

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/validation"
	"github.com/clinicq/clinicq/pkg/apperrors"
	"github.com/clinicq/clinicq/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	// Patients register themselves; admins may register anyone.
	self := g.Group("/patients", auth.RequireRole(auth.RoleUser))
	self.POST("", h.Create)

	read := g.Group("/patients", auth.RequireAuthenticated())
	read.GET("/byuser", h.GetByUser)
	read.GET("/:id", h.Get)

	staff := g.Group("/patients", auth.RequireRole(auth.RoleDoctor))
	staff.GET("", h.List)

	admin := g.Group("/patients", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/admin", h.RegisterAndEnqueue)
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	p := req.ToPatient()
	if err := h.svc.Create(c.Request().Context(), p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperrors.NewValidationError("invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetByUser(c echo.Context) error {
	raw := c.QueryParam("user_id")
	if raw == "" {
		return apperrors.NewValidationError("user_id is required")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return apperrors.NewValidationError("invalid user_id")
	}
	res, err := h.svc.GetByUser(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithNext(c.Path(), c.QueryParams())
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) RegisterAndEnqueue(c echo.Context) error {
	var req AdminCreateRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.svc.RegisterAndEnqueue(c.Request().Context(), req.ToPatient(), req.IsPriority)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}
