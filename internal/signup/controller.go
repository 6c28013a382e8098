// Package signup はメールアドレス登録フォームの状態管理を提供する。
//
// Controller は1つのフォーム（1訪問者）の入力値、送信中フラグ、成功フラグ、
// エラーメッセージを保持し、送信1回につきリモートストアへの書き込みを1回だけ行う。
package signup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/launchpage/internal/model"
)

// ユーザー向けメッセージ
const (
	MessageDuplicate = "This email is already registered!"
	MessageGeneric   = "Something went wrong. Please try again."
)

// DefaultSuccessTTL は成功バナーを自動的に消すまでの時間。
const DefaultSuccessTTL = 3 * time.Second

// Status はフォームの表示状態を表す。
type Status string

const (
	StatusEditing    Status = "editing"
	StatusSubmitting Status = "submitting"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Outcome は1回のSubmit呼び出しの結果を表す。
type Outcome string

const (
	// OutcomeSkipped はメールアドレスが空のため何もしなかったことを示す。
	OutcomeSkipped Outcome = "skipped"
	// OutcomeInFlight は別の送信が処理中のため受け付けなかったことを示す。
	OutcomeInFlight  Outcome = "in_flight"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Store はリモートの登録テーブルへの挿入操作。
// 一意制約違反は model.StoreError（Code=23505）で表す。
type Store interface {
	Insert(ctx context.Context, email string) error
}

// Recorder は送信結果の計測先。
type Recorder interface {
	RecordSignup(outcome string)
	RecordStoreLatency(d time.Duration)
}

// Notifier は登録確定後の通知先。失敗してもフォームの結果は変わらない。
type Notifier interface {
	NotifySignup(ctx context.Context, email string) error
}

// State はフォーム状態のスナップショット。
type State struct {
	Email        string `json:"email"`
	Status       Status `json:"status"`
	Submitting   bool   `json:"submitting"`
	Succeeded    bool   `json:"succeeded"`
	ErrorMessage string `json:"error_message"`
}

// Deps はControllerの依存関係。
type Deps struct {
	Store      Store
	Clock      Clock
	SuccessTTL time.Duration
	Recorder   Recorder
	Notifier   Notifier
	Logger     *slog.Logger
}

// Controller はフォーム1つ分の状態を管理する。並行利用に安全。
type Controller struct {
	deps Deps

	mu           sync.Mutex
	email        string
	submitting   bool
	succeeded    bool
	errorMessage string
	resetTimer   Timer
	generation   uint64
}

// NewController はControllerを生成する。
// Clock未指定時はRealClock、SuccessTTL未指定時はDefaultSuccessTTLを使用する。
func NewController(deps Deps) *Controller {
	if deps.Clock == nil {
		deps.Clock = RealClock{}
	}
	if deps.SuccessTTL <= 0 {
		deps.SuccessTTL = DefaultSuccessTTL
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Controller{deps: deps}
}

// SetEmail は入力中のメールアドレスを更新する。送信中でも変更できる。
func (c *Controller) SetEmail(email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.email = email
}

// DismissResult は前回の送信結果（成功バナーまたはエラーメッセージ）を消す。
// 送信中は何もしない。入力値は変更しない。
func (c *Controller) DismissResult() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitting {
		return
	}
	c.errorMessage = ""
	c.succeeded = false
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.generation++
}

// State は現在の状態のスナップショットを返す。
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() State {
	s := State{
		Email:        c.email,
		Submitting:   c.submitting,
		Succeeded:    c.succeeded,
		ErrorMessage: c.errorMessage,
	}
	switch {
	case c.submitting:
		s.Status = StatusSubmitting
	case c.succeeded:
		s.Status = StatusSucceeded
	case c.errorMessage != "":
		s.Status = StatusFailed
	default:
		s.Status = StatusEditing
	}
	return s
}

// Submit は現在のメールアドレスをリモートストアへ1回だけ挿入する。
//
// メールアドレスが空の場合、または別の送信が処理中の場合は状態を変えずに返る。
// 挿入はctxのキャンセルを引き継がない（発行済みの書き込みは中断しない）。
// 失敗はエラーメッセージとして状態に反映し、呼び出し元へは伝播しない。
func (c *Controller) Submit(ctx context.Context) Outcome {
	c.mu.Lock()
	email := c.email
	if email == "" {
		c.mu.Unlock()
		return OutcomeSkipped
	}
	if c.submitting {
		c.mu.Unlock()
		return OutcomeInFlight
	}
	c.submitting = true
	c.errorMessage = ""
	c.succeeded = false
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	start := time.Now()
	err := c.insert(context.WithoutCancel(ctx), email)
	if c.deps.Recorder != nil {
		c.deps.Recorder.RecordStoreLatency(time.Since(start))
	}

	outcome := c.finish(gen, err)

	if c.deps.Recorder != nil {
		c.deps.Recorder.RecordSignup(string(outcome))
	}

	if outcome == OutcomeSucceeded && c.deps.Notifier != nil {
		if nerr := c.deps.Notifier.NotifySignup(context.WithoutCancel(ctx), email); nerr != nil {
			c.deps.Logger.Warn("signup notification failed",
				slog.String("email", MaskEmail(email)),
				slog.String("error", nerr.Error()),
			)
		}
	}

	return outcome
}

// finish は挿入結果を状態に反映する。submittingはここで1回だけ下ろす。
func (c *Controller) finish(gen uint64, err error) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.submitting = false }()

	if err != nil {
		if model.IsUniqueViolation(err) {
			c.errorMessage = MessageDuplicate
			return OutcomeDuplicate
		}
		c.deps.Logger.Error("signup insert failed", slog.String("error", err.Error()))
		c.errorMessage = MessageGeneric
		return OutcomeFailed
	}

	c.succeeded = true
	c.email = ""
	c.resetTimer = c.deps.Clock.AfterFunc(c.deps.SuccessTTL, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		// 新しい送信が始まっていれば古いタイマーは何もしない
		if c.generation == gen {
			c.succeeded = false
			c.resetTimer = nil
		}
	})
	return OutcomeSucceeded
}

// insert はストアのpanicをエラーに変換して返す。
func (c *Controller) insert(ctx context.Context, email string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("store panicked: %v", rec)
		}
	}()
	return c.deps.Store.Insert(ctx, email)
}

// MaskEmail はログ出力用にローカル部を伏せたメールアドレスを返す。
func MaskEmail(email string) string {
	for i := 0; i < len(email); i++ {
		if email[i] == '@' {
			if i == 0 {
				return "***" + email[i:]
			}
			return email[:1] + "***" + email[i:]
		}
	}
	return "***"
}
