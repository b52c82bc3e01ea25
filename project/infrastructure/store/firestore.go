package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"kudos-bot/project/domain"
)

// isNotFound は Firestore の NotFound エラーを判定するヘルパー関数です
func isNotFound(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.NotFound
}

// TokenVault はトークンを Firestore の外（Secret Manager）に保管するためのポートです
type TokenVault interface {
	GetSecret(ctx context.Context, secretName string) (string, error)
	PutSecret(ctx context.Context, secretName, value string) error
}

// FirestoreRepo は domain.InstallationRepository と domain.StateRepository の Firestore 実装です
type FirestoreRepo struct {
	cli              *firestore.Client
	installationsCol string
	statesCol        string

	// vault が nil の場合はトークンをドキュメントに直接保存します
	vault       TokenVault
	tokenPrefix string
}

// FirestoreConfig は Firestore リポジトリの設定です
type FirestoreConfig struct {
	ProjectID        string
	InstallationsCol string
	StatesCol        string
	Vault            TokenVault
	TokenPrefix      string
}

// installationDoc は Firestore 上のインストール情報ドキュメントです
type installationDoc struct {
	AppID               string   `firestore:"app_id"`
	EnterpriseID        string   `firestore:"enterprise_id"`
	EnterpriseName      string   `firestore:"enterprise_name"`
	TeamID              string   `firestore:"team_id"`
	TeamName            string   `firestore:"team_name"`
	BotToken            string   `firestore:"bot_token,omitempty"`
	BotTokenSecretName  string   `firestore:"bot_token_secret_name,omitempty"`
	BotUserID           string   `firestore:"bot_user_id"`
	BotScopes           []string `firestore:"bot_scopes"`
	UserID              string   `firestore:"user_id"`
	UserToken           string   `firestore:"user_token,omitempty"`
	UserTokenSecretName string   `firestore:"user_token_secret_name,omitempty"`
	UserScopes          []string `firestore:"user_scopes"`
	TokenType           string   `firestore:"token_type"`
	IsEnterpriseInstall bool     `firestore:"is_enterprise_install"`
	InstalledAt         int64    `firestore:"installed_at"`
}

type stateDoc struct {
	ExpireAt int64 `firestore:"expire_at"`
}

// NewFirestoreRepo は Firestore リポジトリを初期化します
func NewFirestoreRepo(ctx context.Context, cfg FirestoreConfig) (*FirestoreRepo, error) {
	client, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("firestore: クライアント初期化失敗: %w", err)
	}

	return &FirestoreRepo{
		cli:              client,
		installationsCol: cfg.InstallationsCol,
		statesCol:        cfg.StatesCol,
		vault:            cfg.Vault,
		tokenPrefix:      cfg.TokenPrefix,
	}, nil
}

// ===== InstallationRepository 実装 =====

// Save はインストール情報を保存します（新規作成または上書き）
func (repo *FirestoreRepo) Save(ctx context.Context, inst *domain.Installation) error {
	if err := inst.Validate(); err != nil {
		return fmt.Errorf("firestore: Save検証失敗: %w", err)
	}

	docID := inst.Workspace().Key()
	doc := installationDoc{
		AppID:               inst.AppID,
		EnterpriseID:        inst.EnterpriseID,
		EnterpriseName:      inst.EnterpriseName,
		TeamID:              inst.TeamID,
		TeamName:            inst.TeamName,
		BotUserID:           inst.BotUserID,
		BotScopes:           inst.BotScopes,
		UserID:              inst.UserID,
		UserScopes:          inst.UserScopes,
		TokenType:           inst.TokenType,
		IsEnterpriseInstall: inst.IsEnterpriseInstall,
		InstalledAt:         inst.InstalledAt,
	}

	// トークンは Secret Manager に保存し、ドキュメントにはシークレット名だけを残す
	if repo.vault != nil {
		doc.BotTokenSecretName = repo.secretName(docID, "bot")
		if err := repo.vault.PutSecret(ctx, doc.BotTokenSecretName, inst.BotToken); err != nil {
			return fmt.Errorf("firestore: Botトークン保存失敗 (docID=%s): %w", docID, err)
		}
		if inst.UserToken != "" {
			doc.UserTokenSecretName = repo.secretName(docID, "user")
			if err := repo.vault.PutSecret(ctx, doc.UserTokenSecretName, inst.UserToken); err != nil {
				return fmt.Errorf("firestore: ユーザートークン保存失敗 (docID=%s): %w", docID, err)
			}
		}
	} else {
		doc.BotToken = inst.BotToken
		doc.UserToken = inst.UserToken
	}

	if _, err := repo.cli.Collection(repo.installationsCol).Doc(docID).Set(ctx, doc); err != nil {
		return fmt.Errorf("firestore: インストール情報保存失敗 (docID=%s): %w", docID, err)
	}

	return nil
}

// Find はワークスペースのインストール情報を取得します
// チーム単位のレコードがなければ組織全体インストールを探します
func (repo *FirestoreRepo) Find(ctx context.Context, ws domain.Workspace) (*domain.Installation, error) {
	inst, err := repo.find(ctx, ws.Key())
	if errors.Is(err, domain.ErrNotFound) && ws.EnterpriseID != "" && ws.TeamID != "" {
		return repo.find(ctx, domain.Workspace{EnterpriseID: ws.EnterpriseID}.Key())
	}
	return inst, err
}

func (repo *FirestoreRepo) find(ctx context.Context, docID string) (*domain.Installation, error) {
	snapshot, err := repo.cli.Collection(repo.installationsCol).Doc(docID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("firestore: インストール情報取得失敗 (docID=%s): %w", docID, err)
	}

	var doc installationDoc
	if err := snapshot.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore: インストール情報変換失敗 (docID=%s): %w", docID, err)
	}

	if doc.BotTokenSecretName != "" {
		if repo.vault == nil {
			return nil, fmt.Errorf("firestore: トークン保管先が未設定です (docID=%s)", docID)
		}
		if doc.BotToken, err = repo.vault.GetSecret(ctx, doc.BotTokenSecretName); err != nil {
			return nil, fmt.Errorf("firestore: Botトークン取得失敗 (docID=%s): %w", docID, err)
		}
	}
	if doc.UserTokenSecretName != "" && repo.vault != nil {
		if doc.UserToken, err = repo.vault.GetSecret(ctx, doc.UserTokenSecretName); err != nil {
			return nil, fmt.Errorf("firestore: ユーザートークン取得失敗 (docID=%s): %w", docID, err)
		}
	}

	return &domain.Installation{
		AppID:               doc.AppID,
		EnterpriseID:        doc.EnterpriseID,
		EnterpriseName:      doc.EnterpriseName,
		TeamID:              doc.TeamID,
		TeamName:            doc.TeamName,
		BotToken:            doc.BotToken,
		BotUserID:           doc.BotUserID,
		BotScopes:           doc.BotScopes,
		UserID:              doc.UserID,
		UserToken:           doc.UserToken,
		UserScopes:          doc.UserScopes,
		TokenType:           doc.TokenType,
		IsEnterpriseInstall: doc.IsEnterpriseInstall,
		InstalledAt:         doc.InstalledAt,
	}, nil
}

// ===== StateRepository 実装 =====

// Issue は OAuth state を保存します
func (repo *FirestoreRepo) Issue(ctx context.Context, s domain.OAuthState) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("firestore: state検証失敗: %w", err)
	}

	if _, err := repo.cli.Collection(repo.statesCol).Doc(s.Value).Set(ctx, stateDoc{ExpireAt: s.ExpireAt}); err != nil {
		return fmt.Errorf("firestore: state保存失敗: %w", err)
	}
	return nil
}

// Consume は state をトランザクション内で削除し、有効期限を確認します
func (repo *FirestoreRepo) Consume(ctx context.Context, value string) error {
	if value == "" {
		return domain.ErrStateInvalid
	}

	docRef := repo.cli.Collection(repo.statesCol).Doc(value)
	var expired bool
	err := repo.cli.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snapshot, err := tx.Get(docRef)
		if err != nil {
			if isNotFound(err) {
				return domain.ErrStateInvalid
			}
			return fmt.Errorf("firestore: state取得失敗: %w", err)
		}

		var doc stateDoc
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore: state変換失敗: %w", err)
		}
		expired = (domain.OAuthState{Value: value, ExpireAt: doc.ExpireAt}).Expired(time.Now())

		// 期限切れでも削除はコミットする
		return tx.Delete(docRef)
	})
	if err != nil {
		return err
	}
	if expired {
		return domain.ErrStateInvalid
	}
	return nil
}

// Close は Firestore クライアントを閉じます
func (repo *FirestoreRepo) Close() error {
	if repo.cli != nil {
		return repo.cli.Close()
	}
	return nil
}

// secretName は Secret Manager のシークレット名を生成します
// 形式: "<prefix><enterprise>_<team>_<kind>"（使えない文字は "_" に置換）
func (repo *FirestoreRepo) secretName(docID, kind string) string {
	return repo.tokenPrefix + strings.ReplaceAll(docID, ":", "_") + "_" + kind
}
