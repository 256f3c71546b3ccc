package followup

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/followup/internal/platform/middleware"
)

// opMessages holds the client-facing text for each way an operation fails.
// Store failures expose nothing beyond store.
type opMessages struct {
	invalid  string
	notFound string
	store    string
}

var (
	createPatientMsgs = opMessages{
		invalid: "Name and procedure are required",
		store:   "Failed to create patient",
	}
	getPatientMsgs = opMessages{
		notFound: "Patient not found",
		store:    "Failed to fetch patient",
	}
	listFollowUpsMsgs = opMessages{store: "Failed to fetch follow-ups"}
	getFollowUpMsgs   = opMessages{
		notFound: "Follow-up not found",
		store:    "Failed to fetch follow-up",
	}
	submitResponseMsgs = opMessages{
		invalid:  "A valid follow-up ID and a status of HEALTHY or CONCERN are required",
		notFound: "Follow-up not found",
		store:    "Failed to submit response",
	}
	listNotificationsMsgs = opMessages{store: "Failed to fetch notifications"}
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.CreatePatient)
	api.GET("/patients/:id", h.GetPatient)
	api.GET("/follow-ups", h.ListFollowUps)
	api.GET("/follow-ups/:id", h.GetFollowUp)
	api.POST("/respond", h.SubmitResponse)
	api.GET("/notifications", h.ListNotifications)
}

type createPatientRequest struct {
	Name      string `json:"name"`
	Procedure string `json:"procedure"`
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req createPatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	name := middleware.SanitizeString(req.Name)
	procedure := middleware.SanitizeString(req.Procedure)
	p, err := h.svc.RegisterPatient(c.Request().Context(), name, procedure)
	if err != nil {
		return h.fail(c, err, createPatientMsgs)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := ParseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err, getPatientMsgs)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListFollowUps(c echo.Context) error {
	fs, err := h.svc.ListFollowUps(c.Request().Context())
	if err != nil {
		return h.fail(c, err, listFollowUpsMsgs)
	}
	return c.JSON(http.StatusOK, fs)
}

func (h *Handler) GetFollowUp(c echo.Context) error {
	id, err := ParseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	f, err := h.svc.GetFollowUp(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err, getFollowUpMsgs)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) SubmitResponse(c echo.Context) error {
	var req SubmitResponseInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Response != nil {
		text := middleware.SanitizeString(*req.Response)
		req.Response = &text
	}
	f, err := h.svc.SubmitResponse(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err, submitResponseMsgs)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) ListNotifications(c echo.Context) error {
	ns, err := h.svc.ListNotifications(c.Request().Context())
	if err != nil {
		return h.fail(c, err, listNotificationsMsgs)
	}
	return c.JSON(http.StatusOK, ns)
}

// fail maps a service error onto a response.
func (h *Handler) fail(c echo.Context, err error, msgs opMessages) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr) && msgs.invalid != "":
		return c.JSON(http.StatusBadRequest, middleware.ErrorBody{
			Error:  msgs.invalid,
			Fields: verr.FieldNames(),
		})
	case errors.Is(err, ErrNotFound) && msgs.notFound != "":
		return echo.NewHTTPError(http.StatusNotFound, msgs.notFound)
	case errors.Is(err, ErrAlreadyResolved):
		return echo.NewHTTPError(http.StatusConflict, "Follow-up already has a response")
	}

	rid, _ := c.Get("request_id").(string)
	h.logger.Error().Err(err).
		Str("request_id", rid).
		Str("operation", msgs.store).
		Msg("store failure")
	return echo.NewHTTPError(http.StatusInternalServerError, msgs.store)
}
