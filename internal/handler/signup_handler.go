package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/hitoshi/launchpage/internal/landing"
	"github.com/hitoshi/launchpage/internal/middleware"
	"github.com/hitoshi/launchpage/internal/model"
	"github.com/hitoshi/launchpage/internal/signup"
)

// maxSignupBodySize は登録リクエストボディの上限。
// ルーターでCSRF検証より前に適用する。
const maxSignupBodySize = 4 * 1024

// SignupForm は訪問者1人分のフォーム操作。*signup.Controller が実装する。
type SignupForm interface {
	SetEmail(email string)
	DismissResult()
	Submit(ctx context.Context) signup.Outcome
	State() signup.State
}

// FormProvider は訪問者IDからフォームを引き当てる。
type FormProvider interface {
	Form(visitorID string) SignupForm
}

// PageRenderer はランディングページの描画を行う。
type PageRenderer interface {
	Render(w io.Writer, v landing.View) error
}

// SignupHandler はランディングページと登録APIのHTTPハンドラー。
type SignupHandler struct {
	forms      FormProvider
	renderer   PageRenderer
	successTTL time.Duration
	logger     *slog.Logger
}

// NewSignupHandler はSignupHandlerを生成する。
func NewSignupHandler(forms FormProvider, renderer PageRenderer, successTTL time.Duration, logger *slog.Logger) *SignupHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignupHandler{
		forms:      forms,
		renderer:   renderer,
		successTTL: successTTL,
		logger:     logger,
	}
}

// signupRequest は登録リクエストのボディ。
type signupRequest struct {
	Email string `json:"email"`
}

// stateResponse はフォーム状態のAPIレスポンス。
type stateResponse struct {
	signup.State
	Outcome signup.Outcome `json:"outcome,omitempty"`
}

// ShowPage はランディングページを表示する。
// GET /
func (h *SignupHandler) ShowPage(w http.ResponseWriter, r *http.Request) {
	form, ok := h.formFor(r)
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	err := h.renderer.Render(w, landing.View{
		State:      form.State(),
		CSRFToken:  middleware.CSRFTokenFromContext(r.Context()),
		SuccessTTL: h.successTTL,
	})
	if err != nil {
		h.logger.Error("failed to render landing page", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// SubmitForm はHTMLフォームからの送信を処理し、ページへリダイレクトする。
// POST /signup
func (h *SignupHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	form, ok := h.formFor(r)
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	form.SetEmail(email)

	// type="email"を迂回した不正な値は送信しない。入力値は保持し、前回の結果表示は消す
	if email != "" && validateEmail(email) != nil {
		form.DismissResult()
	} else {
		outcome := form.Submit(r.Context())
		h.logOutcome(r, email, outcome)
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SubmitAPI はJSONでの登録を処理する。
// POST /api/signups
func (h *SignupHandler) SubmitAPI(w http.ResponseWriter, r *http.Request) {
	form, ok := h.formFor(r)
	if !ok {
		middleware.WriteInternalServerError(w)
		return
	}

	var req signupRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSignupBodySize)).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewEmailRequiredError())
		return
	}
	if apiErr := validateEmail(email); apiErr != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	form.SetEmail(email)
	outcome := form.Submit(r.Context())
	h.logOutcome(r, email, outcome)

	switch outcome {
	case signup.OutcomeInFlight:
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewSubmissionInFlightError())
		return
	case signup.OutcomeSkipped:
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewEmailRequiredError())
		return
	}

	writeJSON(w, statusForOutcome(outcome), stateResponse{
		State:   form.State(),
		Outcome: outcome,
	})
}

// GetState は訪問者の現在のフォーム状態を返す。
// GET /api/signups/state
func (h *SignupHandler) GetState(w http.ResponseWriter, r *http.Request) {
	form, ok := h.formFor(r)
	if !ok {
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, stateResponse{State: form.State()})
}

func (h *SignupHandler) formFor(r *http.Request) (SignupForm, bool) {
	visitorID, err := middleware.VisitorIDFromContext(r.Context())
	if err != nil {
		h.logger.Error("visitor ID missing from request context",
			slog.String("path", r.URL.Path),
		)
		return nil, false
	}
	return h.forms.Form(visitorID), true
}

func (h *SignupHandler) logOutcome(r *http.Request, email string, outcome signup.Outcome) {
	visitorID, _ := middleware.VisitorIDFromContext(r.Context())
	h.logger.Info("signup submitted",
		slog.String("visitor_id", visitorID),
		slog.String("email", signup.MaskEmail(email)),
		slog.String("outcome", string(outcome)),
	)
}

// statusForOutcome は送信結果をHTTPステータスに対応付ける。
func statusForOutcome(outcome signup.Outcome) int {
	switch outcome {
	case signup.OutcomeSucceeded:
		return http.StatusCreated
	case signup.OutcomeDuplicate:
		return http.StatusConflict
	case signup.OutcomeFailed:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

// validateEmail はメールアドレスが単一のアドレスとして解釈できるかを検証する。
// 表示名付きの形式（"Name <a@example.com>"）は受け付けない。
func validateEmail(email string) *model.APIError {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.NewInvalidEmailError(email)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write JSON response", slog.String("error", err.Error()))
	}
}
