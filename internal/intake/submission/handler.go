package submission

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tmsclinic/intake/internal/intake/form"
	"github.com/tmsclinic/intake/internal/intake/queue"
	"github.com/tmsclinic/intake/internal/platform/auth"
	"github.com/tmsclinic/intake/pkg/pagination"
)

// Handler exposes the intake workflow over HTTP.
type Handler struct {
	svc   *Service
	queue *queue.Queue
}

// NewHandler creates a Handler.
func NewHandler(svc *Service, q *queue.Queue) *Handler {
	return &Handler{svc: svc, queue: q}
}

// RegisterRoutes mounts the public intake endpoint and the staff-only
// read endpoints.
func (h *Handler) RegisterRoutes(public, staff *echo.Group) {
	public.POST("/intake/:formType", h.SubmitForm)

	read := staff.Group("", auth.RequireRole("admin", "staff"))
	read.GET("/submissions", h.ListSubmissions)
	read.GET("/submissions/:id", h.GetSubmission)
	read.GET("/queue/pending", h.ListPending)
}

// submitRequest is the JSON body for POST /intake/:formType.
type submitRequest struct {
	DeviceKey string      `json:"device_key"`
	Fields    form.Fields `json:"fields"`
}

// SubmitForm handles POST /intake/:formType.
func (h *Handler) SubmitForm(c echo.Context) error {
	formType, err := form.ParseType(c.Param("formType"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.DeviceKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "device_key is required")
	}

	receipt, err := h.svc.Submit(c.Request().Context(), req.DeviceKey, formType, req.Fields)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	switch receipt.Status {
	case StatusInvalid:
		return c.JSON(http.StatusBadRequest, receipt)
	case StatusOffline:
		return c.JSON(http.StatusServiceUnavailable, receipt)
	default:
		return c.JSON(http.StatusAccepted, receipt)
	}
}

// ListSubmissions handles GET /submissions?form_type=...
func (h *Handler) ListSubmissions(c echo.Context) error {
	pg := pagination.FromContext(c)

	var formType *form.Type
	if raw := c.QueryParam("form_type"); raw != "" {
		t, err := form.ParseType(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		formType = &t
	}

	items, total, err := h.svc.List(c.Request().Context(), formType, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// GetSubmission handles GET /submissions/:id.
func (h *Handler) GetSubmission(c echo.Context) error {
	rec, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "submission not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

// ListPending handles GET /queue/pending.
func (h *Handler) ListPending(c echo.Context) error {
	list, err := h.queue.Pending(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if list == nil {
		list = []queue.Pending{}
	}
	return c.JSON(http.StatusOK, list)
}
