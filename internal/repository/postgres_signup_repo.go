package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/launchpage/internal/model"
)

// PostgresSignupRepo はPostgreSQLを使用したメールアドレス登録リポジトリ。
type PostgresSignupRepo struct {
	db *sql.DB
}

// NewPostgresSignupRepo はPostgresSignupRepoを生成する。
func NewPostgresSignupRepo(db *sql.DB) *PostgresSignupRepo {
	return &PostgresSignupRepo{db: db}
}

// Insert はemail_signupsテーブルにメールアドレスを挿入する。
// id と created_at はテーブルのデフォルト値で採番される。
func (r *PostgresSignupRepo) Insert(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_signups (email) VALUES ($1)`,
		email,
	)
	if err != nil {
		return fmt.Errorf("failed to insert signup: %w", translatePQError(err))
	}
	return nil
}

// translatePQError はlib/pqのエラーをSQLSTATE付きのStoreErrorに変換する。
// pq.Error以外のエラー（接続エラー等）はそのまま返す。
func translatePQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &model.StoreError{
			Code:    string(pqErr.Code),
			Message: pqErr.Message,
		}
	}
	return err
}

// compile-time interface check
var _ SignupRepository = (*PostgresSignupRepo)(nil)
