package domain

import (
	"context"
)

// InstallationRepository はインストール済みワークスペースの認証情報の永続化を担当します
type InstallationRepository interface {
	// Save はインストール情報を保存します
	// 同一ワークスペースの既存レコードがある場合は上書きします
	// バリデーションエラー時は domain.ErrInvalid を返します
	Save(ctx context.Context, inst *Installation) error

	// Find は指定ワークスペースのインストール情報を取得します
	// EnterpriseID があり該当チームのレコードがない場合は、組織全体インストールを探します
	// 存在しない場合は domain.ErrNotFound を返します
	Find(ctx context.Context, ws Workspace) (*Installation, error)
}

// StateRepository は OAuth state 値の発行と消費を担当します
type StateRepository interface {
	// Issue は state を保存します
	Issue(ctx context.Context, s OAuthState) error

	// Consume は state を削除し、有効だったかを返します
	// 存在しない・期限切れの場合は domain.ErrStateInvalid を返します（1回のみ消費可能）
	Consume(ctx context.Context, value string) error
}
