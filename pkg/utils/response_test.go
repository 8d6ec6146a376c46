package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusBadRequest, "bad input")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "bad input" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	var payload struct {
		Email string `json:"email"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@x.com"}`))
	if err := DecodeJSON(httptest.NewRecorder(), req, &payload); err != nil {
		t.Fatalf("DecodeJSON err: %v", err)
	}
	if payload.Email != "a@x.com" {
		t.Fatalf("unexpected email %q", payload.Email)
	}

	empty := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := DecodeJSON(httptest.NewRecorder(), empty, &payload); err != nil {
		t.Fatalf("empty body should decode, got %v", err)
	}

	broken := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	if err := DecodeJSON(httptest.NewRecorder(), broken, &payload); err == nil {
		t.Fatal("expected error for malformed body")
	}
}
