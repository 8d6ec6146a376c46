package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	authservice "github.com/zhouzirui/gemchat/backend/internal/service/auth"
	"github.com/zhouzirui/gemchat/backend/internal/store/memory"
	"github.com/zhouzirui/gemchat/backend/internal/store/nop"
)

func setupRouter(t *testing.T) (*chi.Mux, *authservice.TokenIssuer) {
	t.Helper()

	tokens := authservice.NewTokenIssuer("test-secret", time.Hour)
	svc := authservice.NewService(memory.New(), tokens, bcrypt.MinCost)

	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r, tokens
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSignupThenSignin(t *testing.T) {
	r, tokens := setupRouter(t)

	resp := postJSON(r, "/auth/signup", map[string]string{"name": "Ann", "email": "a@x.com", "password": "secret1"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var signup sessionResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &signup); err != nil {
		t.Fatalf("decode signup: %v", err)
	}
	if signup.Token == "" || signup.User.ID == "" {
		t.Fatalf("expected token and user id, got %+v", signup)
	}
	if signup.User.Email != "a@x.com" || signup.User.Name != "Ann" {
		t.Fatalf("unexpected user %+v", signup.User)
	}

	resp = postJSON(r, "/auth/signin", map[string]string{"email": "A@X.com", "password": "secret1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var signin sessionResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &signin); err != nil {
		t.Fatalf("decode signin: %v", err)
	}

	identity, err := tokens.Verify(signin.Token)
	if err != nil {
		t.Fatalf("verify signin token: %v", err)
	}
	if identity.UserID != signup.User.ID {
		t.Fatalf("expected user %s, got %s", signup.User.ID, identity.UserID)
	}
}

func TestSignupValidation(t *testing.T) {
	r, _ := setupRouter(t)

	cases := map[string]map[string]string{
		"missing name":   {"email": "a@x.com", "password": "secret1"},
		"short password": {"name": "Ann", "email": "a@x.com", "password": "12345"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := postJSON(r, "/auth/signup", body)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.Code)
			}
		})
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	r, _ := setupRouter(t)

	body := map[string]string{"name": "Ann", "email": "a@x.com", "password": "secret1"}
	if resp := postJSON(r, "/auth/signup", body); resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	resp := postJSON(r, "/auth/signup", body)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	var errBody map[string]string
	_ = json.Unmarshal(resp.Body.Bytes(), &errBody)
	if errBody["error"] != "user already exists with this email" {
		t.Fatalf("unexpected error %q", errBody["error"])
	}
}

func TestSigninBadCredentials(t *testing.T) {
	r, _ := setupRouter(t)
	postJSON(r, "/auth/signup", map[string]string{"name": "Ann", "email": "a@x.com", "password": "secret1"})

	if resp := postJSON(r, "/auth/signin", map[string]string{"email": "a@x.com", "password": "wrong!!"}); resp.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", resp.Code)
	}
	if resp := postJSON(r, "/auth/signin", map[string]string{"email": "b@x.com", "password": "secret1"}); resp.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email: expected 401, got %d", resp.Code)
	}
	if resp := postJSON(r, "/auth/signin", map[string]string{"email": "a@x.com"}); resp.Code != http.StatusBadRequest {
		t.Fatalf("missing password: expected 400, got %d", resp.Code)
	}
}

func TestSigninWithoutDatabase(t *testing.T) {
	tokens := authservice.NewTokenIssuer("test-secret", time.Hour)
	svc := authservice.NewService(nop.New(), tokens, bcrypt.MinCost)
	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)

	resp := postJSON(r, "/auth/signin", map[string]string{"email": "a@x.com", "password": "secret1"})
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}

func TestMe(t *testing.T) {
	r, tokens := setupRouter(t)

	resp := postJSON(r, "/auth/signup", map[string]string{"name": "Ann", "email": "a@x.com", "password": "secret1"})
	var signup sessionResponse
	_ = json.Unmarshal(resp.Body.Bytes(), &signup)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+signup.Token)
	me := httptest.NewRecorder()
	r.ServeHTTP(me, req)
	if me.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", me.Code)
	}
	var body struct {
		User struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"user"`
	}
	_ = json.Unmarshal(me.Body.Bytes(), &body)
	if body.User.ID != signup.User.ID || body.User.Name != "Ann" {
		t.Fatalf("unexpected user %+v", body.User)
	}

	// 令牌有效但用户不存在
	orphan, err := tokens.Issue("missing-user", "ghost@x.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+orphan)
	me = httptest.NewRecorder()
	r.ServeHTTP(me, req)
	if me.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", me.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	me = httptest.NewRecorder()
	r.ServeHTTP(me, req)
	if me.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", me.Code)
	}
}
