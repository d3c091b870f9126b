package verification

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

var messages = map[Status]string{
	StatusVerified:             "This report is authentic and has not been modified since it was issued.",
	StatusIntegrityCompromised: "Warning: this report was modified after it was issued. The values below are the current stored values.",
	StatusNotFound:             "No report exists with this identifier.",
}

// Snapshot is the public view of a verified or compromised record.
type Snapshot struct {
	ScanID        string     `json:"scan_id"`
	Diagnosis     string     `json:"diagnosis"`
	Confidence    float64    `json:"confidence"`
	RiskLevel     string     `json:"risk_level"`
	ReviewedBy    *string    `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
	SystemVersion string     `json:"system_version"`
	ModelVersion  string     `json:"model_version"`
}

type Response struct {
	Status  Status    `json:"status"`
	Message string    `json:"message"`
	Record  *Snapshot `json:"record,omitempty"`
}

type Handler struct {
	verifier *Verifier
	baseURL  string
}

func NewHandler(verifier *Verifier, publicBaseURL string) *Handler {
	return &Handler{verifier: verifier, baseURL: strings.TrimRight(publicBaseURL, "/")}
}

// RegisterRoutes mounts the public verification routes on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/verify/:scanId", h.Verify)
	e.GET("/verify/:scanId/qr.png", h.QRCode)
}

func (h *Handler) Verify(c echo.Context) error {
	res := h.verifier.Verify(c.Request().Context(), c.Param("scanId"))
	out := Response{Status: res.Status, Message: messages[res.Status]}
	if res.Record == nil {
		return c.JSON(http.StatusNotFound, out)
	}
	r := res.Record
	out.Record = &Snapshot{
		ScanID:        r.ID.String(),
		Diagnosis:     r.Diagnosis,
		Confidence:    r.Confidence,
		RiskLevel:     r.RiskLevel,
		ReviewedBy:    r.ReviewedBy,
		ReviewedAt:    r.ReviewedAt,
		Timestamp:     r.CreatedAt,
		SystemVersion: r.SystemVersion,
		ModelVersion:  r.ModelVersion,
	}
	return c.JSON(http.StatusOK, out)
}

// VerifyURL is the public verification link printed on reports.
func (h *Handler) VerifyURL(id string) string {
	return h.baseURL + "/verify/" + id
}

func (h *Handler) QRCode(c echo.Context) error {
	id, err := uuid.Parse(c.Param("scanId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid scan id")
	}
	png, err := qrcode.Encode(h.VerifyURL(id.String()), qrcode.Medium, qrSize)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to render qr code")
	}
	return c.Blob(http.StatusOK, "image/png", png)
}
