package auth

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type memAccounts struct{ byID map[string]*Account }

func (m *memAccounts) GetByID(_ context.Context, id string) (*Account, error) {
	return m.byID[id], nil
}

func (m *memAccounts) Create(_ context.Context, a *Account) error {
	m.byID[a.ID] = a
	return nil
}

var testSecret = []byte("test-secret")

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireAuth(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": UserID(c), "org": OrgID(c)})
	})
	r.GET("/admin", RequireAuth(testSecret), RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	tok, err := IssueToken(testSecret, "chef", RoleStaff, "org-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	newRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if body := w.Body.String(); body != `{"org":"org-1","user":"chef"}` {
		t.Errorf("unexpected body %s", body)
	}
}

func TestRequireAuthRejectsMissingOrg(t *testing.T) {
	tok, _ := IssueToken(testSecret, "chef", RoleStaff, "", time.Now().Add(time.Hour))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	newRouter().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuthRejectsWrongSecret(t *testing.T) {
	tok, _ := IssueToken([]byte("other"), "chef", RoleStaff, "org-1", time.Now().Add(time.Hour))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	newRouter().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireAuthAcceptsQueryToken(t *testing.T) {
	tok, _ := IssueToken(testSecret, "chef", RoleStaff, "org-1", time.Now().Add(time.Hour))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me?access_token="+tok, nil)
	newRouter().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireRoleForbidsStaff(t *testing.T) {
	tok, _ := IssueToken(testSecret, "chef", RoleStaff, "org-1", time.Now().Add(time.Hour))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	newRouter().ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestLoginIssuesTokenWithOrganization(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	store := &memAccounts{byID: map[string]*Account{
		"chef": {ID: "chef", PasswordHash: string(hash), Role: RoleStaff, OrganizationID: "org-9"},
	}}
	svc := NewServiceWithStore(store, testSecret, time.Hour)

	tok, err := svc.Login(context.Background(), "chef", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	newRouter().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("token from Login rejected: %d", w.Code)
	}

	if _, err := svc.Login(context.Background(), "chef", "wrong"); err != ErrAuthFailed {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	store := &memAccounts{byID: map[string]*Account{}}
	svc := NewServiceWithStore(store, testSecret, time.Hour)

	if err := svc.Register(context.Background(), "sous", "pw", RoleStaff, "org-1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got := store.byID["sous"].OrganizationID; got != "org-1" {
		t.Errorf("organization not stored, got %q", got)
	}
	if err := svc.Register(context.Background(), "sous", "pw", RoleStaff, "org-1"); err != ErrAlreadyExists {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestAccessLogHidesQueryToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tok, _ := IssueToken(testSecret, "chef", RoleStaff, "org-1", time.Now().Add(time.Hour))

	var buf bytes.Buffer
	r := gin.New()
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{Formatter: AccessLogFormatter, Output: &buf}))
	r.GET("/ws", RequireAuth(testSecret), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?topic=q&access_token="+tok, nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("token in query should still authenticate, got %d", w.Code)
	}
	line := buf.String()
	if strings.Contains(line, tok) {
		t.Fatalf("token leaked into access log: %s", line)
	}
	if !strings.Contains(line, "/ws?access_token=REDACTED&topic=q") {
		t.Errorf("path should stay readable: %s", line)
	}
}

func TestRedactPath(t *testing.T) {
	cases := map[string]string{
		"/api/v1/printers":             "/api/v1/printers",
		"/api/v1/printers?station=bar": "/api/v1/printers?station=bar",
		"/ws?access_token=abc":         "/ws?access_token=REDACTED",
		"/ws?access_token=a%zz":        "/ws?REDACTED",
		"/ws?my_access_token_hint=1":   "/ws?my_access_token_hint=1",
	}
	for in, want := range cases {
		if got := RedactPath(in); got != want {
			t.Errorf("RedactPath(%q) = %q, want %q", in, got, want)
		}
	}
}
