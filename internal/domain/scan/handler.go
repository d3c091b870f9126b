package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Drewww17/m2-sa-luminarias/internal/domain/user"
	"github.com/Drewww17/m2-sa-luminarias/internal/platform/auth"
	"github.com/Drewww17/m2-sa-luminarias/pkg/pagination"
)

// PatientLookup resolves patient profiles for exports; user.Service
// satisfies it.
type PatientLookup interface {
	GetProfile(ctx context.Context, id string) (*user.Profile, error)
}

type Handler struct {
	svc      *Service
	patients PatientLookup
}

func NewHandler(svc *Service, patients PatientLookup) *Handler {
	return &Handler{svc: svc, patients: patients}
}

// RegisterRoutes mounts scan routes. api must already require an approved
// profile; admin must be admin only.
func (h *Handler) RegisterRoutes(api *echo.Group, admin *echo.Group) {
	patient := auth.RequireRole(auth.RolePatient)
	doctor := auth.RequireRole(auth.RoleDoctor)

	api.POST("/scans", h.CreateScan, patient)
	api.GET("/scans/mine", h.ListMyScans, patient)
	api.GET("/scans", h.SearchScans, doctor)
	api.GET("/scans/:id", h.GetScan)
	api.POST("/scans/:id/review", h.ReviewScan, doctor)

	api.GET("/patients/:patientId/scans", h.ListPatientScans, doctor)
	api.GET("/patients/:patientId/timeline", h.Timeline)
	api.GET("/patients/:patientId/export.csv", h.ExportCSV)

	admin.POST("/scans/:id/correct", h.CorrectScan)
	admin.GET("/analytics", h.Analytics)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "scan not found")
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAlreadyReviewed):
		return echo.NewHTTPError(http.StatusConflict, "scan already reviewed")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// canSeePatient allows the patient themself, doctors and admins.
func canSeePatient(ctx context.Context, patientID string) bool {
	roles := auth.RolesFromContext(ctx)
	return auth.HasRole(roles, auth.RoleDoctor) || auth.UserIDFromContext(ctx) == patientID
}

func displayName(c echo.Context) string {
	if p := user.ProfileFromContext(c); p != nil {
		return p.FullName
	}
	return ""
}

func (h *Handler) CreateScan(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	sc, err := h.svc.CreateScan(ctx, auth.UserIDFromContext(ctx), displayName(c), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, sc)
}

func (h *Handler) ListMyScans(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.svc.ListPatientScans(ctx, auth.UserIDFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(nonNil(items), total, pg.Limit, pg.Offset))
}

func (h *Handler) SearchScans(c echo.Context) error {
	pg := pagination.FromContext(c)
	p := ListParams{
		PatientID:    c.QueryParam("patient_id"),
		ReviewStatus: c.QueryParam("review_status"),
	}
	items, total, err := h.svc.SearchScans(c.Request().Context(), p, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(nonNil(items), total, pg.Limit, pg.Offset))
}

func (h *Handler) GetScan(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	sc, err := h.svc.GetScan(ctx, id)
	if err != nil {
		return mapError(err)
	}
	if !canSeePatient(ctx, sc.PatientID) {
		// same answer as a missing scan so ids cannot be enumerated
		return echo.NewHTTPError(http.StatusNotFound, "scan not found")
	}
	return c.JSON(http.StatusOK, sc)
}

func (h *Handler) ReviewScan(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req ReviewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	sc, err := h.svc.ReviewScan(ctx, id, auth.UserIDFromContext(ctx), displayName(c), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, sc)
}

func (h *Handler) CorrectScan(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req Correction
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	sc, err := h.svc.CorrectScan(ctx, id, auth.UserIDFromContext(ctx), req)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, sc)
}

func (h *Handler) ListPatientScans(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatientScans(c.Request().Context(), c.Param("patientId"), pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(nonNil(items), total, pg.Limit, pg.Offset))
}

func (h *Handler) Timeline(c echo.Context) error {
	patientID := c.Param("patientId")
	ctx := c.Request().Context()
	if !canSeePatient(ctx, patientID) {
		return echo.NewHTTPError(http.StatusForbidden, "not allowed to view this patient")
	}
	points, err := h.svc.Timeline(ctx, patientID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, points)
}

func (h *Handler) ExportCSV(c echo.Context) error {
	patientID := c.Param("patientId")
	ctx := c.Request().Context()
	if !canSeePatient(ctx, patientID) {
		return echo.NewHTTPError(http.StatusForbidden, "not allowed to view this patient")
	}

	filter := c.QueryParam("filter")
	if filter == "" {
		filter = FilterAll
	}
	if filter != FilterAll && filter != FilterUlcer && filter != FilterLast30 {
		return echo.NewHTTPError(http.StatusBadRequest, "filter must be all, ulcer or last30")
	}

	info := PatientInfo{ID: patientID, Name: "N/A"}
	p, err := h.patients.GetProfile(ctx, patientID)
	switch {
	case err == nil:
		info.SystemID = p.SystemID
		info.Name = p.FullName
	case errors.Is(err, user.ErrNotFound):
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load patient")
	}

	// Rendered in full before anything is sent so a store error can still
	// become an error status.
	var buf bytes.Buffer
	if err := h.svc.ExportCSV(ctx, &buf, info, filter); err != nil {
		return mapError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=\"dfu-patient-report-%s-%s.csv\"", filter, time.Now().UTC().Format("2006-01-02")))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) Analytics(c echo.Context) error {
	a, err := h.svc.Analytics(c.Request().Context())
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func nonNil(items []*Scan) []*Scan {
	if items == nil {
		return []*Scan{}
	}
	return items
}
