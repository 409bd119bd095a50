package worklist

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/triage/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/worklist", h.List)
	api.GET("/worklist/pass", h.LastPass)
	api.GET("/worklist/:id", h.Get)
	api.GET("/worklist/:id/narrative", h.Narrative)
	api.POST("/worklist/refresh", h.Refresh)
}

// List handles GET /worklist?filter=all|missing|red|amber|green|unknown&sort=risk|recent|name.
func (h *Handler) List(c echo.Context) error {
	filter, err := ParseFilter(c.QueryParam("filter"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	mode, err := ParseSortMode(c.QueryParam("sort"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	pg := pagination.FromContext(c)
	ranked := h.svc.List(c.Request().Context(), filter, mode)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(ranked, pg), len(ranked), pg))
}

func (h *Handler) Get(c echo.Context) error {
	e, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return notFoundOr500(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Narrative(c echo.Context) error {
	text, err := h.svc.Narrative(c.Request().Context(), c.Param("id"))
	if err != nil {
		return notFoundOr500(err)
	}
	return c.String(http.StatusOK, text)
}

type refreshRequest struct {
	Subjects []string `json:"subjects"`
}

// Refresh handles POST /worklist/refresh. Extra subjects may be supplied in
// the JSON body or as repeated ?subject= query parameters.
func (h *Handler) Refresh(c echo.Context) error {
	var req refreshRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	for _, s := range c.QueryParams()["subject"] {
		req.Subjects = append(req.Subjects, strings.Split(s, ",")...)
	}
	sum := h.svc.Refresh(c.Request().Context(), req.Subjects)
	return c.JSON(http.StatusOK, sum)
}

func (h *Handler) LastPass(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.LastPass())
}

func notFoundOr500(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "worklist entry not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
