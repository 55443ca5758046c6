package authn

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/platform/db"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/auth")
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)
	g.POST("/logout", h.Logout)
}

func requestMeta(c echo.Context) RequestMeta {
	return RequestMeta{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

func (h *Handler) Login(c echo.Context) error {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	tenantID := db.TenantFromContext(c.Request().Context())
	result, err := h.service.Authenticate(c.Request().Context(), tenantID, in.Username, in.Password, requestMeta(c))
	if err != nil {
		return authError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Refresh(c echo.Context) error {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Refresh(c.Request().Context(), in.RefreshToken, requestMeta(c))
	if err != nil {
		return authError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Logout(c echo.Context) error {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := h.service.Logout(c.Request().Context(), in.RefreshToken, requestMeta(c)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "logout failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// authError maps service errors to responses. The bodies stay generic; the
// differentiated reason lives only in the audit trail.
func authError(c echo.Context, err error) error {
	var locked *LockedError
	switch {
	case errors.As(err, &locked):
		if !locked.Until.IsZero() {
			retry := int(time.Until(locked.Until).Seconds())
			if retry < 0 {
				retry = 0
			}
			c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", retry))
		}
		return echo.NewHTTPError(http.StatusLocked, "account temporarily locked")
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidToken):
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication failed")
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusServiceUnavailable, "authentication temporarily unavailable")
}
