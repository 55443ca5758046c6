package access

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/pkg/pagination"
)

type Handler struct {
	ledger *Ledger
	engine *Engine
}

func NewHandler(ledger *Ledger, engine *Engine) *Handler {
	return &Handler{ledger: ledger, engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/access")
	g.POST("/grants", h.Grant)
	g.DELETE("/grants/:id", h.Revoke)
	g.GET("/grants", h.List)
	g.POST("/decide", h.Decide)
}

func (h *Handler) Grant(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())

	var in GrantInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if in.UserID == uuid.Nil || in.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and patient_id are required")
	}

	grant, err := h.ledger.Grant(c.Request().Context(), ident, in)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrForbidden):
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create grant")
	}
	return c.JSON(http.StatusCreated, grant)
}

func (h *Handler) Revoke(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid grant id")
	}

	var body struct {
		Reason *string `json:"reason,omitempty"`
	}
	// Body is optional on revoke.
	_ = c.Bind(&body)

	if err := h.ledger.Revoke(c.Request().Context(), ident, id, body.Reason); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "grant not found")
		case errors.Is(err, ErrForbidden):
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to revoke grant")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) List(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())
	pg := pagination.FromContext(c)

	var f ListFilters
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid user_id")
		}
		f.UserID = &id
	}
	if v := c.QueryParam("level"); v != "" {
		f.Level = Level(v)
		if !f.Level.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid level")
		}
	}
	f.ActiveOnly = c.QueryParam("active") == "true"

	grants, total, err := h.ledger.List(c.Request().Context(), ident, f, pg.Limit, pg.Offset)
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list grants")
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(grants, total, pg.Limit, pg.Offset))
}

func (h *Handler) Decide(c echo.Context) error {
	ident := auth.IdentityFromContext(c.Request().Context())

	var in struct {
		PatientID uuid.UUID `json:"patient_id"`
		Level     Level     `json:"level"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if in.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}

	decision, err := h.engine.Decide(c.Request().Context(), ident, in.PatientID, in.Level)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "decision failed")
	}
	return c.JSON(http.StatusOK, decision)
}
