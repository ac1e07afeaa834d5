package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newRoleContext(userID string, roles []string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if userID != "" || roles != nil {
		req = req.WithContext(WithUser(req.Context(), userID, roles, ""))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequireRole_Allowed(t *testing.T) {
	c, rec := newRoleContext("u1", []string{RolePHCAdmin})
	if err := RequireRole(RolePHC, RolePHCAdmin)(okHandler)(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c, _ := newRoleContext("u1", []string{RoleViewer})
	err := RequireRole(RolePHC, RolePHCAdmin)(okHandler)(c)
	if err == nil {
		t.Fatal("expected error for missing role")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestRequireRole_MasterAdminPassesAll(t *testing.T) {
	c, _ := newRoleContext("u1", []string{RoleMasterAdmin})
	if err := RequireRole(RolePHC)(okHandler)(c); err != nil {
		t.Errorf("expected master admin to pass, got %v", err)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	c, _ := newRoleContext("", nil)
	if err := RequireRole(RolePHC)(okHandler)(c); err == nil {
		t.Error("expected error without roles")
	}
}

func TestRequireAuthenticated(t *testing.T) {
	c, _ := newRoleContext("", nil)
	err := RequireAuthenticated()(okHandler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}

	c, _ = newRoleContext("u1", []string{RoleViewer})
	if err := RequireAuthenticated()(okHandler)(c); err != nil {
		t.Errorf("expected authenticated user to pass, got %v", err)
	}
}

func TestHasAnyRole(t *testing.T) {
	tests := []struct {
		name     string
		has      []string
		required []string
		want     bool
	}{
		{"match", []string{RolePHC}, []string{RolePHC, RolePHCAdmin}, true},
		{"no match", []string{RoleViewer}, []string{RolePHC}, false},
		{"master admin", []string{RoleMasterAdmin}, []string{RolePHCAdmin}, true},
		{"empty", nil, []string{RolePHC}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasAnyRole(tt.has, tt.required...); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
