package user

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/Drewww17/m2-sa-luminarias/internal/platform/auth"
)

func newRequest(method, target, body, uid string, roles []string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if uid != "" {
		req = req.WithContext(auth.WithUser(context.Background(), uid, roles))
	}
	return req
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestHandler_Register(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	req := newRequest(http.MethodPost, "/api/v1/users/register",
		`{"first_name":"Ana","last_name":"Cruz","role":"doctor","professional_id":"PRC-9"}`, "doc-1", nil)
	rec := httptest.NewRecorder()
	if err := h.Register(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var p Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ApprovalStatus != ApprovalPending {
		t.Errorf("expected pending, got %s", p.ApprovalStatus)
	}

	req = newRequest(http.MethodPost, "/api/v1/users/register", `{"first_name":"Ana","last_name":"Cruz"}`, "doc-1", nil)
	err := h.Register(e.NewContext(req, httptest.NewRecorder()))
	expectHTTPError(t, err, http.StatusConflict)

	req = newRequest(http.MethodPost, "/api/v1/users/register", `{"first_name":"Ana"}`, "x-2", nil)
	err = h.Register(e.NewContext(req, httptest.NewRecorder()))
	expectHTTPError(t, err, http.StatusBadRequest)
}

func TestHandler_Me(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	req := newRequest(http.MethodGet, "/api/v1/users/me", "", "nobody", nil)
	err := h.Me(e.NewContext(req, httptest.NewRecorder()))
	expectHTTPError(t, err, http.StatusNotFound)

	_, _ = svc.Register(context.Background(), "pat-1", "", RegisterRequest{FirstName: "A", LastName: "B"})
	req = newRequest(http.MethodGet, "/api/v1/users/me", "", "pat-1", nil)
	rec := httptest.NewRecorder()
	if err := h.Me(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"id":"pat-1"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_ApproveReject(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	_, _ = svc.Register(context.Background(), "doc-1", "", RegisterRequest{FirstName: "A", LastName: "B", Role: "doctor", ProfessionalID: "P"})

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/", "", "admin-1", []string{auth.RoleAdmin}), rec)
	c.SetParamNames("id")
	c.SetParamValues("doc-1")
	if err := h.ApproveDoctor(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"approval_status":"approved"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c = e.NewContext(newRequest(http.MethodPost, "/", "", "admin-1", []string{auth.RoleAdmin}), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("ghost")
	expectHTTPError(t, h.RejectDoctor(c), http.StatusNotFound)
}

func TestHandler_ListPendingDoctors(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	rec := httptest.NewRecorder()
	if err := h.ListPendingDoctors(e.NewContext(newRequest(http.MethodGet, "/", "", "admin-1", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("expected empty list, got %s", rec.Body.String())
	}
}

func TestLoadProfile_RolesFromProfile(t *testing.T) {
	svc, repo, _ := newTestService()
	_, _ = svc.Register(context.Background(), "doc-1", "", RegisterRequest{FirstName: "A", LastName: "B", Role: "doctor", ProfessionalID: "P"})
	e := echo.New()

	// token claims admin, profile says pending doctor
	c := e.NewContext(newRequest(http.MethodGet, "/", "", "doc-1", []string{auth.RoleAdmin}), httptest.NewRecorder())
	var roles []string
	var profile *Profile
	handler := func(c echo.Context) error {
		roles = auth.RolesFromContext(c.Request().Context())
		profile = ProfileFromContext(c)
		return nil
	}
	if err := LoadProfile(repo, false)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roles) != 0 {
		t.Errorf("pending doctor should have no roles, got %v", roles)
	}
	if profile == nil || profile.ID != "doc-1" {
		t.Error("expected profile on context")
	}
}

func TestLoadProfile_UnregisteredCaller(t *testing.T) {
	repo := newMockRepo()
	e := echo.New()
	handler := func(c echo.Context) error {
		return c.JSON(http.StatusOK, auth.RolesFromContext(c.Request().Context()))
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/", "", "ghost", []string{auth.RoleAdmin}), rec)
	_ = LoadProfile(repo, false)(handler)(c)
	if strings.TrimSpace(rec.Body.String()) != "null" {
		t.Errorf("expected token roles cleared, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(newRequest(http.MethodGet, "/", "", "ghost", []string{auth.RoleAdmin}), rec)
	_ = LoadProfile(repo, true)(handler)(c)
	if !strings.Contains(rec.Body.String(), "admin") {
		t.Errorf("expected token roles kept in trusted mode, got %s", rec.Body.String())
	}
}

func TestRequireApproved(t *testing.T) {
	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	pid := "P"

	tests := []struct {
		name    string
		profile *Profile
		roles   []string
		code    int
	}{
		{"approved patient", &Profile{Role: auth.RolePatient, ApprovalStatus: ApprovalApproved}, nil, 0},
		{"approved doctor", &Profile{Role: auth.RoleDoctor, ApprovalStatus: ApprovalApproved, ProfessionalID: &pid}, nil, 0},
		{"pending doctor", &Profile{Role: auth.RoleDoctor, ApprovalStatus: ApprovalPending}, nil, http.StatusForbidden},
		{"rejected doctor", &Profile{Role: auth.RoleDoctor, ApprovalStatus: ApprovalRejected}, nil, http.StatusForbidden},
		{"no profile", nil, nil, http.StatusForbidden},
		{"no profile dev admin", nil, []string{auth.RoleAdmin}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(newRequest(http.MethodGet, "/", "", "u", tt.roles), httptest.NewRecorder())
			if tt.profile != nil {
				c.Set("profile", tt.profile)
			}
			err := RequireApproved()(ok)(c)
			if tt.code == 0 {
				if err != nil {
					t.Errorf("expected pass, got %v", err)
				}
				return
			}
			expectHTTPError(t, err, tt.code)
		})
	}
}
