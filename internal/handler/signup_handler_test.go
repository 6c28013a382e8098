package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/launchpage/internal/landing"
	"github.com/hitoshi/launchpage/internal/middleware"
	"github.com/hitoshi/launchpage/internal/signup"
)

// --- モック定義 ---

// mockForm はSignupFormのモック実装。
type mockForm struct {
	email        string
	submitCalls  int
	dismissCalls int
	submitFn    func(ctx context.Context) signup.Outcome
	stateFn     func() signup.State
}

func (m *mockForm) SetEmail(email string) {
	m.email = email
}

func (m *mockForm) DismissResult() {
	m.dismissCalls++
}

func (m *mockForm) Submit(ctx context.Context) signup.Outcome {
	m.submitCalls++
	if m.submitFn != nil {
		return m.submitFn(ctx)
	}
	return signup.OutcomeSucceeded
}

func (m *mockForm) State() signup.State {
	if m.stateFn != nil {
		return m.stateFn()
	}
	return signup.State{Email: m.email, Status: signup.StatusEditing}
}

// mockFormProvider はFormProviderのモック実装。
type mockFormProvider struct {
	form      *mockForm
	visitorID string
}

func (m *mockFormProvider) Form(visitorID string) SignupForm {
	m.visitorID = visitorID
	return m.form
}

// mockRenderer はPageRendererのモック実装。
type mockRenderer struct {
	renderFn func(w io.Writer, v landing.View) error
	lastView landing.View
}

func (m *mockRenderer) Render(w io.Writer, v landing.View) error {
	m.lastView = v
	if m.renderFn != nil {
		return m.renderFn(w, v)
	}
	_, err := io.WriteString(w, "<html></html>")
	return err
}

// --- テストヘルパー ---

// withVisitorID はテスト用にリクエストコンテキストに訪問者IDを注入するヘルパー。
func withVisitorID(r *http.Request, visitorID string) *http.Request {
	return r.WithContext(middleware.ContextWithVisitorID(r.Context(), visitorID))
}

func newTestSignupHandler(form *mockForm, renderer *mockRenderer) (*SignupHandler, *mockFormProvider) {
	provider := &mockFormProvider{form: form}
	if renderer == nil {
		renderer = &mockRenderer{}
	}
	return NewSignupHandler(provider, renderer, 3*time.Second, nil), provider
}

func postJSON(t *testing.T, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/signups", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return withVisitorID(req, "visitor-1")
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) stateResponse {
	t.Helper()
	var resp stateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode state response: %v", err)
	}
	return resp
}

func decodeAPIError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

// --- GET / テスト ---

func TestSignupHandler_ShowPage_RendersVisitorState(t *testing.T) {
	form := &mockForm{
		stateFn: func() signup.State {
			return signup.State{Email: "a@b.co", Status: signup.StatusFailed, ErrorMessage: signup.MessageGeneric}
		},
	}
	renderer := &mockRenderer{}
	h, provider := newTestSignupHandler(form, renderer)

	req := withVisitorID(httptest.NewRequest(http.MethodGet, "/", nil), "visitor-1")
	req = req.WithContext(middleware.ContextWithCSRFToken(req.Context(), "token-abc"))
	w := httptest.NewRecorder()
	h.ShowPage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
	if provider.visitorID != "visitor-1" {
		t.Errorf("visitorID = %q, want visitor-1", provider.visitorID)
	}
	if renderer.lastView.CSRFToken != "token-abc" {
		t.Errorf("CSRFToken = %q, want token-abc", renderer.lastView.CSRFToken)
	}
	if renderer.lastView.SuccessTTL != 3*time.Second {
		t.Errorf("SuccessTTL = %v, want 3s", renderer.lastView.SuccessTTL)
	}
	if renderer.lastView.State.ErrorMessage != signup.MessageGeneric {
		t.Errorf("ErrorMessage = %q", renderer.lastView.State.ErrorMessage)
	}
}

func TestSignupHandler_ShowPage_MissingVisitor(t *testing.T) {
	h, _ := newTestSignupHandler(&mockForm{}, nil)

	w := httptest.NewRecorder()
	h.ShowPage(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestSignupHandler_ShowPage_RenderError(t *testing.T) {
	renderer := &mockRenderer{
		renderFn: func(w io.Writer, v landing.View) error {
			return errors.New("template broken")
		},
	}
	h, _ := newTestSignupHandler(&mockForm{}, renderer)

	w := httptest.NewRecorder()
	h.ShowPage(w, withVisitorID(httptest.NewRequest(http.MethodGet, "/", nil), "visitor-1"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// --- POST /signup テスト ---

func postForm(email string) *http.Request {
	form := url.Values{"email": {email}}
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return withVisitorID(req, "visitor-1")
}

func TestSignupHandler_SubmitForm_SubmitsAndRedirects(t *testing.T) {
	form := &mockForm{}
	h, _ := newTestSignupHandler(form, nil)

	w := httptest.NewRecorder()
	h.SubmitForm(w, postForm("  user@example.com "))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}
	if form.email != "user@example.com" {
		t.Errorf("email = %q, want trimmed address", form.email)
	}
	if form.submitCalls != 1 {
		t.Errorf("submit calls = %d, want 1", form.submitCalls)
	}
}

func TestSignupHandler_SubmitForm_InvalidEmailKeepsInputWithoutSubmit(t *testing.T) {
	form := &mockForm{}
	h, _ := newTestSignupHandler(form, nil)

	w := httptest.NewRecorder()
	h.SubmitForm(w, postForm("not-an-email"))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if form.email != "not-an-email" {
		t.Errorf("email = %q, want input kept", form.email)
	}
	if form.submitCalls != 0 {
		t.Errorf("submit calls = %d, want 0", form.submitCalls)
	}
	if form.dismissCalls != 1 {
		t.Errorf("dismiss calls = %d, want 1", form.dismissCalls)
	}
}

func TestSignupHandler_SubmitForm_EmptyEmailDelegatesToController(t *testing.T) {
	form := &mockForm{
		submitFn: func(ctx context.Context) signup.Outcome { return signup.OutcomeSkipped },
	}
	h, _ := newTestSignupHandler(form, nil)

	w := httptest.NewRecorder()
	h.SubmitForm(w, postForm(""))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if form.submitCalls != 1 {
		t.Errorf("submit calls = %d, want 1", form.submitCalls)
	}
}

// --- POST /api/signups テスト ---

func TestSignupHandler_SubmitAPI_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		outcome    signup.Outcome
		state      signup.State
		wantStatus int
	}{
		{
			name:       "succeeded",
			outcome:    signup.OutcomeSucceeded,
			state:      signup.State{Status: signup.StatusSucceeded, Succeeded: true},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "duplicate",
			outcome:    signup.OutcomeDuplicate,
			state:      signup.State{Email: "user@example.com", Status: signup.StatusFailed, ErrorMessage: signup.MessageDuplicate},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "failed",
			outcome:    signup.OutcomeFailed,
			state:      signup.State{Email: "user@example.com", Status: signup.StatusFailed, ErrorMessage: signup.MessageGeneric},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := &mockForm{
				submitFn: func(ctx context.Context) signup.Outcome { return tt.outcome },
				stateFn:  func() signup.State { return tt.state },
			}
			h, _ := newTestSignupHandler(form, nil)

			w := httptest.NewRecorder()
			h.SubmitAPI(w, postJSON(t, map[string]string{"email": "user@example.com"}))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			resp := decodeState(t, w)
			if resp.Outcome != tt.outcome {
				t.Errorf("outcome = %q, want %q", resp.Outcome, tt.outcome)
			}
			if resp.Status != tt.state.Status {
				t.Errorf("status field = %q, want %q", resp.Status, tt.state.Status)
			}
			if resp.ErrorMessage != tt.state.ErrorMessage {
				t.Errorf("error_message = %q, want %q", resp.ErrorMessage, tt.state.ErrorMessage)
			}
		})
	}
}

func TestSignupHandler_SubmitAPI_InFlight(t *testing.T) {
	form := &mockForm{
		submitFn: func(ctx context.Context) signup.Outcome { return signup.OutcomeInFlight },
	}
	h, _ := newTestSignupHandler(form, nil)

	w := httptest.NewRecorder()
	h.SubmitAPI(w, postJSON(t, map[string]string{"email": "user@example.com"}))

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	if body := decodeAPIError(t, w); body.Code != "SUBMISSION_IN_FLIGHT" {
		t.Errorf("code = %q, want SUBMISSION_IN_FLIGHT", body.Code)
	}
}

func TestSignupHandler_SubmitAPI_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{name: "malformed JSON", body: `{"email":`, wantCode: "INVALID_REQUEST"},
		{name: "empty email", body: `{"email":"   "}`, wantCode: "EMAIL_REQUIRED"},
		{name: "missing at sign", body: `{"email":"user.example.com"}`, wantCode: "INVALID_EMAIL"},
		{name: "display name form", body: `{"email":"User <user@example.com>"}`, wantCode: "INVALID_EMAIL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := &mockForm{}
			h, _ := newTestSignupHandler(form, nil)

			req := withVisitorID(httptest.NewRequest(http.MethodPost, "/api/signups", strings.NewReader(tt.body)), "visitor-1")
			w := httptest.NewRecorder()
			h.SubmitAPI(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if body := decodeAPIError(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if form.submitCalls != 0 {
				t.Errorf("submit calls = %d, want 0", form.submitCalls)
			}
		})
	}
}

func TestSignupHandler_SubmitAPI_OversizedBody(t *testing.T) {
	form := &mockForm{}
	h, _ := newTestSignupHandler(form, nil)

	body := `{"email":"` + strings.Repeat("a", maxSignupBodySize) + `@example.com"}`
	req := withVisitorID(httptest.NewRequest(http.MethodPost, "/api/signups", strings.NewReader(body)), "visitor-1")
	w := httptest.NewRecorder()
	h.SubmitAPI(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if form.submitCalls != 0 {
		t.Errorf("submit calls = %d, want 0", form.submitCalls)
	}
}

// --- GET /api/signups/state テスト ---

func TestSignupHandler_GetState(t *testing.T) {
	form := &mockForm{
		stateFn: func() signup.State {
			return signup.State{Status: signup.StatusSubmitting, Submitting: true, Email: "user@example.com"}
		},
	}
	h, _ := newTestSignupHandler(form, nil)

	w := httptest.NewRecorder()
	h.GetState(w, withVisitorID(httptest.NewRequest(http.MethodGet, "/api/signups/state", nil), "visitor-1"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decodeState(t, w)
	if !resp.Submitting || resp.Status != signup.StatusSubmitting {
		t.Errorf("state = %+v, want submitting", resp.State)
	}
	if resp.Outcome != "" {
		t.Errorf("outcome = %q, want empty", resp.Outcome)
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"user@example.com", true},
		{"first.last+tag@sub.example.co.jp", true},
		{"user@", false},
		{"@example.com", false},
		{"a b@example.com", false},
		{"<user@example.com>", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			got := validateEmail(tt.email) == nil
			if got != tt.valid {
				t.Errorf("validateEmail(%q) valid = %v, want %v", tt.email, got, tt.valid)
			}
		})
	}
}
