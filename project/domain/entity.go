package domain

import (
	"fmt"
	"strings"
	"time"
)

// Workspace は Slack ワークスペース（Enterprise Grid の場合は組織を含む）を識別します
type Workspace struct {
	// EnterpriseID は Enterprise Grid の組織ID。通常のワークスペースでは空文字
	EnterpriseID string

	// TeamID は Slack ワークスペースのID。組織全体インストールでは空文字
	TeamID string
}

// Key はワークスペースの一意キーを生成します
// 形式: "enterprise:team"（未設定部分は "-"）
func (w Workspace) Key() string {
	return fmt.Sprintf("%s:%s", orDash(w.EnterpriseID), orDash(w.TeamID))
}

// Installation は OAuth インストール完了時に保存されるワークスペースの認証情報です
type Installation struct {
	AppID          string
	EnterpriseID   string
	EnterpriseName string
	TeamID         string
	TeamName       string

	// BotToken は xoxb- で始まる Bot トークン
	BotToken  string
	BotUserID string
	BotScopes []string

	// インストールしたユーザーの情報（user_scope を要求した場合のみトークンあり）
	UserID     string
	UserToken  string
	UserScopes []string

	TokenType           string
	IsEnterpriseInstall bool

	// InstalledAt はインストール日時（Unix秒）
	InstalledAt int64
}

// Workspace はインストール先のワークスペースを返します
// 組織全体インストールの場合は TeamID を持ちません
func (i Installation) Workspace() Workspace {
	if i.IsEnterpriseInstall {
		return Workspace{EnterpriseID: i.EnterpriseID}
	}
	return Workspace{EnterpriseID: i.EnterpriseID, TeamID: i.TeamID}
}

// Validate は Installation の必須項目を検証します
func (i Installation) Validate() error {
	if strings.TrimSpace(i.TeamID) == "" && !i.IsEnterpriseInstall {
		return fmt.Errorf("%w: TeamIDは必須項目です", ErrInvalid)
	}
	if i.IsEnterpriseInstall && strings.TrimSpace(i.EnterpriseID) == "" {
		return fmt.Errorf("%w: 組織インストールにはEnterpriseIDが必須です", ErrInvalid)
	}
	if strings.TrimSpace(i.BotToken) == "" {
		return fmt.Errorf("%w: BotTokenは必須項目です", ErrInvalid)
	}
	if i.InstalledAt <= 0 {
		return fmt.Errorf("%w: InstalledAtは0より大きい必要があります", ErrInvalid)
	}
	return nil
}

// OAuthState は CSRF 対策用に発行した state 値です
type OAuthState struct {
	Value string

	// ExpireAt は有効期限（Unix秒）
	ExpireAt int64
}

// Expired は state が now 時点で期限切れかを判定します
func (s OAuthState) Expired(now time.Time) bool {
	return now.Unix() > s.ExpireAt
}

// Validate は OAuthState の必須項目を検証します
func (s OAuthState) Validate() error {
	if strings.TrimSpace(s.Value) == "" {
		return fmt.Errorf("%w: stateは必須項目です", ErrInvalid)
	}
	if s.ExpireAt <= 0 {
		return fmt.Errorf("%w: ExpireAtは0より大きい必要があります", ErrInvalid)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
