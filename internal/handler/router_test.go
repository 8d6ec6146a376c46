package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/zhouzirui/gemchat/backend/internal/service/ai/aitest"
	authService "github.com/zhouzirui/gemchat/backend/internal/service/auth"
	chatService "github.com/zhouzirui/gemchat/backend/internal/service/chat"
	"github.com/zhouzirui/gemchat/backend/internal/store/memory"
	"github.com/zhouzirui/gemchat/backend/internal/store/nop"
)

func newTestRouter(t *testing.T, staticDir string) http.Handler {
	t.Helper()

	st := memory.New()
	authSvc := authService.NewService(st, authService.NewTokenIssuer("test-secret", time.Hour), bcrypt.MinCost)
	chatSvc := chatService.NewService(st, &aitest.Stub{Reply: "hello"}, chatService.DefaultOptions())

	return NewRouter(Deps{Auth: authSvc, Chat: chatSvc, AllowedOrigin: "*", StaticDir: staticDir, Store: st})
}

func request(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, "")

	resp := request(t, r, http.MethodGet, "/health", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if body["status"] != "ok" || body["database"] != "connected" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestHealthReportsUnavailableDatabase(t *testing.T) {
	st := nop.New()
	authSvc := authService.NewService(st, authService.NewTokenIssuer("test-secret", time.Hour), bcrypt.MinCost)
	chatSvc := chatService.NewService(st, &aitest.Stub{Reply: "hello"}, chatService.DefaultOptions())
	r := NewRouter(Deps{Auth: authSvc, Chat: chatSvc, Store: st})

	resp := request(t, r, http.MethodGet, "/health", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if body["status"] != "ok" || body["database"] != "unavailable" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestHealthWithoutStore(t *testing.T) {
	st := memory.New()
	authSvc := authService.NewService(st, authService.NewTokenIssuer("test-secret", time.Hour), bcrypt.MinCost)
	chatSvc := chatService.NewService(st, &aitest.Stub{Reply: "hello"}, chatService.DefaultOptions())
	r := NewRouter(Deps{Auth: authSvc, Chat: chatSvc})

	resp := request(t, r, http.MethodGet, "/health", "", nil)
	var body map[string]string
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if _, ok := body["database"]; ok {
		t.Fatalf("database field should be omitted, got %v", body)
	}
}

func TestSignupChatHistoryFlow(t *testing.T) {
	r := newTestRouter(t, "")

	resp := request(t, r, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "a@x.com", "password": "secret1", "name": "Ann",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var signup struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &signup)
	if signup.Token == "" {
		t.Fatalf("signup returned no token")
	}

	resp = request(t, r, http.MethodPost, "/api/chat", signup.Token, map[string]string{"sessionId": "s1", "message": "hi"})
	if resp.Code != http.StatusOK {
		t.Fatalf("chat: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var chat map[string]string
	_ = json.Unmarshal(resp.Body.Bytes(), &chat)
	if chat["reply"] != "hello" {
		t.Fatalf("unexpected reply %q", chat["reply"])
	}

	resp = request(t, r, http.MethodGet, "/api/history/s1", signup.Token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", resp.Code)
	}
	var history struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &history)
	if len(history.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %+v", history.Messages)
	}
	if history.Messages[0].Role != "user" || history.Messages[0].Content != "hi" {
		t.Fatalf("unexpected first message %+v", history.Messages[0])
	}
	if history.Messages[1].Role != "assistant" || history.Messages[1].Content != "hello" {
		t.Fatalf("unexpected second message %+v", history.Messages[1])
	}

	resp = request(t, r, http.MethodGet, "/api/recent", signup.Token, nil)
	var recent struct {
		Sessions []string `json:"sessions"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &recent)
	if len(recent.Sessions) != 1 || recent.Sessions[0] != "s1" {
		t.Fatalf("unexpected recent sessions %v", recent.Sessions)
	}
}

func TestConcurrentDuplicateSignup(t *testing.T) {
	r := newTestRouter(t, "")
	body := map[string]string{"email": "dup@x.com", "password": "secret1", "name": "Dup"}

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = request(t, r, http.MethodPost, "/api/auth/signup", "", body).Code
		}(i)
	}
	wg.Wait()

	created, rejected := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusBadRequest:
			rejected++
		}
	}
	if created != 1 || rejected != 1 {
		t.Fatalf("expected one 201 and one 400, got %v", codes)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t, "")

	resp := request(t, r, http.MethodOptions, "/api/chat", "", nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>chat</h1>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	r := newTestRouter(t, dir)

	resp := request(t, r, http.MethodGet, "/", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !bytes.Contains(resp.Body.Bytes(), []byte("chat")) {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}

	// API 路由优先于静态目录
	resp = request(t, r, http.MethodGet, "/health", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
