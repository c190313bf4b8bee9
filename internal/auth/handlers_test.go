package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func setupHandlerRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := newTestService()
	handler := NewHandler(svc)

	router := gin.New()
	api := router.Group("/api/auth")
	handler.RegisterPublicRoutes(api)
	handler.RegisterAdminRoutes(api)
	handler.RegisterListRoute(api)
	return router, svc
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterEndpoint(t *testing.T) {
	router, _ := setupHandlerRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/auth/user",
		map[string]string{"name": "John Doe", "username": "johndoe", "password": "secret123"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var user User
	if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if user.ID != 1 || user.Role != RoleAdministrator {
		t.Errorf("unexpected user: %+v", user)
	}

	// Password never leaves the server.
	if bytes.Contains(w.Body.Bytes(), []byte("secret123")) || bytes.Contains(w.Body.Bytes(), []byte("password")) {
		t.Error("response leaked password material")
	}

	// Duplicate username conflicts.
	w = doJSON(t, router, http.MethodPost, "/api/auth/user",
		map[string]string{"name": "Johnny", "username": "johndoe", "password": "other"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", w.Code)
	}

	// Missing fields rejected.
	w = doJSON(t, router, http.MethodPost, "/api/auth/user",
		map[string]string{"name": "No Password", "username": "nopass"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing password status = %d, want 400", w.Code)
	}
}

func TestRoleEndpoint(t *testing.T) {
	router, _ := setupHandlerRouter(t)

	doJSON(t, router, http.MethodPost, "/api/auth/user",
		map[string]string{"name": "Admin", "username": "admin", "password": "secret123"})
	doJSON(t, router, http.MethodPost, "/api/auth/user",
		map[string]string{"name": "Worker", "username": "worker", "password": "secret123"})

	w := doJSON(t, router, http.MethodPut, "/api/auth/role",
		map[string]string{"username": "worker", "role": "SUPPORT"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	// Same role again conflicts.
	w = doJSON(t, router, http.MethodPut, "/api/auth/role",
		map[string]string{"username": "worker", "role": "SUPPORT"})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}

	// ADMINISTRATOR is not grantable.
	w = doJSON(t, router, http.MethodPut, "/api/auth/role",
		map[string]string{"username": "worker", "role": "ADMINISTRATOR"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodPut, "/api/auth/role",
		map[string]string{"username": "ghost", "role": "SUPPORT"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAccessEndpoint(t *testing.T) {
	router, _ := setupHandlerRouter(t)

	doJSON(t, router, http.MethodPost, "/api/auth/user",
		map[string]string{"name": "Admin", "username": "admin", "password": "secret123"})
	doJSON(t, router, http.MethodPost, "/api/auth/user",
		map[string]string{"name": "Worker", "username": "worker", "password": "secret123"})

	w := doJSON(t, router, http.MethodPut, "/api/auth/access",
		map[string]string{"username": "worker", "operation": "UNLOCK"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "User worker unlocked!" {
		t.Errorf("status message = %q", resp["status"])
	}

	// Locking the administrator is rejected.
	w = doJSON(t, router, http.MethodPut, "/api/auth/access",
		map[string]string{"username": "admin", "operation": "LOCK"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodPut, "/api/auth/access",
		map[string]string{"username": "worker", "operation": "FREEZE"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListAndDeleteEndpoints(t *testing.T) {
	router, _ := setupHandlerRouter(t)

	doJSON(t, router, http.MethodPost, "/api/auth/user",
		map[string]string{"name": "Admin", "username": "admin", "password": "secret123"})
	doJSON(t, router, http.MethodPost, "/api/auth/user",
		map[string]string{"name": "Worker", "username": "worker", "password": "secret123"})

	w := doJSON(t, router, http.MethodGet, "/api/auth/list", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var users []User
	if err := json.Unmarshal(w.Body.Bytes(), &users); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(users) != 2 || users[0].ID != 1 {
		t.Errorf("unexpected list: %+v", users)
	}

	w = doJSON(t, router, http.MethodDelete, "/api/auth/user/worker", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "Deleted successfully!" {
		t.Errorf("status = %q", resp["status"])
	}

	w = doJSON(t, router, http.MethodDelete, "/api/auth/user/worker", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("delete missing status = %d, want 404", w.Code)
	}
}
