package identity

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicq/clinicq/internal/platform/validation"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the account endpoints. Both are public; Register
// applies its own role check for staff accounts.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/users", h.CreateUser)
	g.POST("/auth/login", h.Login)
}

func (h *Handler) CreateUser(c echo.Context) error {
	var req RegisterRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	u, err := h.svc.Register(c.Request().Context(), req.Login, req.Password, req.Role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := h.svc.Authenticate(c.Request().Context(), req.Login, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
