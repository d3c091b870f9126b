package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runWithRoles(roles []string, mw echo.MiddlewareFunc) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(context.Background(), "u1", roles))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, mw(okHandler)(c)
}

func TestRequireRole_Allowed(t *testing.T) {
	rec, err := runWithRoles([]string{RoleDoctor}, RequireRole(RoleDoctor))
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	_, err := runWithRoles([]string{RolePatient}, RequireRole(RoleDoctor))
	expectStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_AnyOf(t *testing.T) {
	if _, err := runWithRoles([]string{RolePatient}, RequireRole(RoleDoctor, RolePatient)); err != nil {
		t.Errorf("expected patient to pass doctor-or-patient, got %v", err)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	if _, err := runWithRoles([]string{RoleAdmin}, RequireRole(RoleDoctor)); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	_, err := runWithRoles(nil, RequireRole(RolePatient))
	expectStatus(t, err, http.StatusForbidden)
}

func TestWithRoles_Replaces(t *testing.T) {
	ctx := WithUser(context.Background(), "u1", []string{RoleAdmin})
	ctx = WithRoles(ctx, []string{RolePatient})
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RolePatient {
		t.Errorf("expected [patient], got %v", roles)
	}
	if UserIDFromContext(ctx) != "u1" {
		t.Error("user id should survive WithRoles")
	}
}
