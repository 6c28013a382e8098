// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

const (
	visitorCookieName   = "visitor_id"
	visitorCookieMaxAge = 30 * 24 * 60 * 60 // 30日
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// visitorIDContextKey はリクエストコンテキストに訪問者IDを格納するためのキー。
var visitorIDContextKey = contextKey("visitor_id")

// VisitorConfig は訪問者Cookieの設定。
type VisitorConfig struct {
	CookieSecure bool
	CookieDomain string
}

// NewVisitorMiddleware はHTTP Only Cookieから訪問者IDを読み取り、コンテキストに注入するミドルウェアを返す。
// Cookieがない、またはUUIDとして解釈できない場合は新しいIDを発行する。
// 認証は行わない。訪問者IDはフォーム状態の保持にのみ使用する。
func NewVisitorMiddleware(config VisitorConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			visitorID := ""
			if cookie, err := r.Cookie(visitorCookieName); err == nil {
				if id, err := uuid.Parse(cookie.Value); err == nil {
					visitorID = id.String()
				}
			}

			if visitorID == "" {
				visitorID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     visitorCookieName,
					Value:    visitorID,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   visitorCookieMaxAge,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
				slog.Debug("visitor cookie issued", slog.String("visitor_id", visitorID))
			}

			next.ServeHTTP(w, r.WithContext(ContextWithVisitorID(r.Context(), visitorID)))
		})
	}
}

// VisitorIDFromContext はリクエストコンテキストから訪問者IDを取得する。
// 訪問者ミドルウェアを通過したリクエストでのみ有効。
func VisitorIDFromContext(ctx context.Context) (string, error) {
	visitorID, ok := ctx.Value(visitorIDContextKey).(string)
	if !ok || visitorID == "" {
		return "", fmt.Errorf("visitor ID not found in context")
	}
	return visitorID, nil
}

// ContextWithVisitorID はコンテキストに訪問者IDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithVisitorID(ctx context.Context, visitorID string) context.Context {
	return context.WithValue(ctx, visitorIDContextKey, visitorID)
}
