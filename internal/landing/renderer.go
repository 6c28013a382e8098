package landing

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"math"
	"net/http"
	"time"

	"github.com/hitoshi/launchpage/internal/middleware"
	"github.com/hitoshi/launchpage/internal/security"
	"github.com/hitoshi/launchpage/internal/signup"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// iconPaths は特徴カードのアイコン名とSVGパスの対応。
var iconPaths = map[string]string{
	"home":   "M3 12l2-2m0 0l7-7 7 7M5 10v10a1 1 0 001 1h3m10-11l2 2m-2-2v10a1 1 0 01-1 1h-3m-6 0a1 1 0 001-1v-4a1 1 0 011-1h2a1 1 0 011 1v4a1 1 0 001 1m-6 0h6",
	"shield": "M9 12l2 2 4-4m5.618-4.016A11.955 11.955 0 0112 2.944a11.955 11.955 0 01-8.618 3.04A12.02 12.02 0 003 9c0 5.591 3.824 10.29 9 11.622 5.176-1.332 9-6.03 9-11.622 0-1.042-.133-2.052-.382-3.016z",
	"clock":  "M12 8v4l3 3m6-3a9 9 0 11-18 0 9 9 0 0118 0z",
}

// View は1回の描画に必要な訪問者ごとの値。
type View struct {
	State      signup.State
	CSRFToken  string
	SuccessTTL time.Duration
}

// page はサニタイズ済みの文言。
type page struct {
	Title           string
	LogoAlt         string
	Badge           string
	HeadlineLead    string
	HeadlineAccent  string
	Subheading      template.HTML
	Placeholder     string
	ButtonLabel     string
	ButtonBusyLabel string
	SuccessMessage  string
	Footnote        template.HTML
	Features        []feature
}

type feature struct {
	IconPath    string
	Title       string
	Description template.HTML
}

type templateData struct {
	Page             *page
	Email            string
	Submitting       bool
	Succeeded        bool
	ErrorMessage     string
	CSRFToken        string
	CSRFField        string
	GenericError     string
	RefreshSeconds   int
	SuccessTTLMillis int64
}

// Renderer はランディングページを描画する。生成後は並行利用に安全。
type Renderer struct {
	tmpl *template.Template
	page *page
}

// NewRenderer は文言をサニタイズし、テンプレートを読み込んだRendererを返す。
func NewRenderer(content Content, sanitizer security.CopySanitizer) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/page.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse landing template: %w", err)
	}

	p := &page{
		Title:           sanitizer.Text(content.Title),
		LogoAlt:         sanitizer.Text(content.LogoAlt),
		Badge:           sanitizer.Text(content.Badge),
		HeadlineLead:    sanitizer.Text(content.HeadlineLead),
		HeadlineAccent:  sanitizer.Text(content.HeadlineAccent),
		Subheading:      sanitizer.Inline(content.Subheading),
		Placeholder:     sanitizer.Text(content.Placeholder),
		ButtonLabel:     sanitizer.Text(content.ButtonLabel),
		ButtonBusyLabel: sanitizer.Text(content.ButtonBusyLabel),
		SuccessMessage:  sanitizer.Text(content.SuccessMessage),
		Footnote:        sanitizer.Inline(content.Footnote),
	}
	for _, f := range content.Features {
		p.Features = append(p.Features, feature{
			IconPath:    iconPaths[f.Icon],
			Title:       sanitizer.Text(f.Title),
			Description: sanitizer.Inline(f.Description),
		})
	}

	return &Renderer{tmpl: tmpl, page: p}, nil
}

// Render はフォーム状態を反映したページをwに書き込む。
// 成功表示中はTTL経過後、送信中は1秒後にページを再読み込みさせる。
func (r *Renderer) Render(w io.Writer, v View) error {
	ttl := v.SuccessTTL
	if ttl <= 0 {
		ttl = signup.DefaultSuccessTTL
	}

	data := templateData{
		Page:             r.page,
		Email:            v.State.Email,
		Submitting:       v.State.Submitting,
		Succeeded:        v.State.Succeeded,
		ErrorMessage:     v.State.ErrorMessage,
		CSRFToken:        v.CSRFToken,
		CSRFField:        middleware.CSRFFormField,
		GenericError:     signup.MessageGeneric,
		SuccessTTLMillis: ttl.Milliseconds(),
	}
	switch {
	case v.State.Submitting:
		data.RefreshSeconds = 1
	case v.State.Succeeded:
		data.RefreshSeconds = int(math.Ceil(ttl.Seconds()))
	}

	// 途中でエラーになった場合に不完全なHTMLを送らないようバッファに描画する
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "page.html", data); err != nil {
		return fmt.Errorf("failed to render landing page: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// StaticHandler は埋め込みの静的ファイル（スタイルシート、スクリプト、ロゴ）を配信する。
// /static/ プレフィックスを含むパスで呼び出すこと。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(fmt.Sprintf("landing: static assets missing: %v", err))
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
