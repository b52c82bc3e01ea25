package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"kudos-bot/project/domain"
)

// SQLiteRepo は domain.InstallationRepository と domain.StateRepository の SQLite 実装です
type SQLiteRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepo は SQLite データベースを開き、スキーマを作成します
func NewSQLiteRepo(dbPath string) (*SQLiteRepo, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: ディレクトリ作成失敗 (%s): %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: データベースを開けません: %w", err)
	}

	// SQLite は単一コネクションで使う
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &SQLiteRepo{db: db, now: time.Now}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: マイグレーション失敗: %w", err)
	}

	return repo, nil
}

func (repo *SQLiteRepo) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS slack_installations (
		enterprise_id         TEXT NOT NULL DEFAULT '',
		team_id               TEXT NOT NULL DEFAULT '',
		app_id                TEXT NOT NULL DEFAULT '',
		enterprise_name       TEXT NOT NULL DEFAULT '',
		team_name             TEXT NOT NULL DEFAULT '',
		bot_token             TEXT NOT NULL,
		bot_user_id           TEXT NOT NULL DEFAULT '',
		bot_scopes            TEXT NOT NULL DEFAULT '',
		user_id               TEXT NOT NULL DEFAULT '',
		user_token            TEXT NOT NULL DEFAULT '',
		user_scopes           TEXT NOT NULL DEFAULT '',
		token_type            TEXT NOT NULL DEFAULT '',
		is_enterprise_install INTEGER NOT NULL DEFAULT 0,
		installed_at          INTEGER NOT NULL,
		PRIMARY KEY (enterprise_id, team_id)
	);

	CREATE TABLE IF NOT EXISTS oauth_states (
		state     TEXT PRIMARY KEY,
		expire_at INTEGER NOT NULL
	);
	`

	_, err := repo.db.Exec(schema)
	return err
}

// ===== InstallationRepository 実装 =====

// Save はインストール情報を保存します（同一ワークスペースは上書き）
func (repo *SQLiteRepo) Save(ctx context.Context, inst *domain.Installation) error {
	if err := inst.Validate(); err != nil {
		return fmt.Errorf("sqlite: Save検証失敗: %w", err)
	}

	ws := inst.Workspace()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO slack_installations (
			enterprise_id, team_id, app_id, enterprise_name, team_name,
			bot_token, bot_user_id, bot_scopes, user_id, user_token, user_scopes,
			token_type, is_enterprise_install, installed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (enterprise_id, team_id) DO UPDATE SET
			app_id = excluded.app_id,
			enterprise_name = excluded.enterprise_name,
			team_name = excluded.team_name,
			bot_token = excluded.bot_token,
			bot_user_id = excluded.bot_user_id,
			bot_scopes = excluded.bot_scopes,
			user_id = excluded.user_id,
			user_token = excluded.user_token,
			user_scopes = excluded.user_scopes,
			token_type = excluded.token_type,
			is_enterprise_install = excluded.is_enterprise_install,
			installed_at = excluded.installed_at`,
		ws.EnterpriseID, ws.TeamID, inst.AppID, inst.EnterpriseName, inst.TeamName,
		inst.BotToken, inst.BotUserID, strings.Join(inst.BotScopes, ","),
		inst.UserID, inst.UserToken, strings.Join(inst.UserScopes, ","),
		inst.TokenType, inst.IsEnterpriseInstall, inst.InstalledAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: インストール情報保存失敗 (key=%s): %w", ws.Key(), err)
	}

	return nil
}

// Find はワークスペースのインストール情報を取得します
// チーム単位のレコードがなければ組織全体インストールを探します
func (repo *SQLiteRepo) Find(ctx context.Context, ws domain.Workspace) (*domain.Installation, error) {
	inst, err := repo.find(ctx, ws)
	if errors.Is(err, domain.ErrNotFound) && ws.EnterpriseID != "" && ws.TeamID != "" {
		return repo.find(ctx, domain.Workspace{EnterpriseID: ws.EnterpriseID})
	}
	return inst, err
}

func (repo *SQLiteRepo) find(ctx context.Context, ws domain.Workspace) (*domain.Installation, error) {
	var (
		inst                  domain.Installation
		botScopes, userScopes string
	)

	err := repo.db.QueryRowContext(ctx, `
		SELECT enterprise_id, team_id, app_id, enterprise_name, team_name,
			bot_token, bot_user_id, bot_scopes, user_id, user_token, user_scopes,
			token_type, is_enterprise_install, installed_at
		FROM slack_installations WHERE enterprise_id = ? AND team_id = ?`,
		ws.EnterpriseID, ws.TeamID,
	).Scan(
		&inst.EnterpriseID, &inst.TeamID, &inst.AppID, &inst.EnterpriseName, &inst.TeamName,
		&inst.BotToken, &inst.BotUserID, &botScopes, &inst.UserID, &inst.UserToken, &userScopes,
		&inst.TokenType, &inst.IsEnterpriseInstall, &inst.InstalledAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: インストール情報取得失敗 (key=%s): %w", ws.Key(), err)
	}

	inst.BotScopes = splitScopes(botScopes)
	inst.UserScopes = splitScopes(userScopes)
	return &inst, nil
}

// ===== StateRepository 実装 =====

// Issue は OAuth state を保存します
func (repo *SQLiteRepo) Issue(ctx context.Context, s domain.OAuthState) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("sqlite: state検証失敗: %w", err)
	}

	_, err := repo.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO oauth_states (state, expire_at) VALUES (?, ?)`,
		s.Value, s.ExpireAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: state保存失敗: %w", err)
	}
	return nil
}

// Consume は state を削除し、存在して期限内だったかを確認します
func (repo *SQLiteRepo) Consume(ctx context.Context, value string) error {
	if value == "" {
		return domain.ErrStateInvalid
	}

	var expireAt int64
	err := repo.db.QueryRowContext(ctx,
		`DELETE FROM oauth_states WHERE state = ? RETURNING expire_at`, value,
	).Scan(&expireAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrStateInvalid
	}
	if err != nil {
		return fmt.Errorf("sqlite: state消費失敗: %w", err)
	}

	if (domain.OAuthState{Value: value, ExpireAt: expireAt}).Expired(repo.now()) {
		return domain.ErrStateInvalid
	}
	return nil
}

// PurgeExpiredStates は期限切れの state を削除し、削除件数を返します
func (repo *SQLiteRepo) PurgeExpiredStates(ctx context.Context) (int64, error) {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expire_at < ?`, repo.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite: 期限切れstate削除失敗: %w", err)
	}
	return res.RowsAffected()
}

// Close はデータベースを閉じます
func (repo *SQLiteRepo) Close() error {
	return repo.db.Close()
}

func splitScopes(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
