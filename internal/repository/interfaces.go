// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
)

// SignupRepository はメールアドレス登録の永続化インターフェース。
// 登録の読み出しは提供しない（リモートストアが唯一の記録先）。
type SignupRepository interface {
	// Insert はメールアドレスを1件挿入する。
	// 既に登録済みの場合は Code=23505 の *model.StoreError を返す。
	Insert(ctx context.Context, email string) error
}
