package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"

	"kudos-bot/project/domain"
	"kudos-bot/project/infrastructure/oauth"
)

const (
	DirName  = "kudos-bot"
	FileName = "config.toml"

	DefaultPort          = 3000
	DefaultScopes        = "app_mentions:read,channels:history,chat:write,commands,im:write"
	DefaultSQLitePath    = "kudos-bot.db"
	DefaultInstallPath   = "/slack/install"
	DefaultRedirectPath  = "/slack/oauth_redirect"
	DefaultEventsPath    = "/slack/events"
	DefaultTokenPrefix   = "slack-token-"
	DefaultInstallations = "slack_installations"
	DefaultStates        = "slack_oauth_states"

	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"
)

// Secret Manager 上のシークレット名
const (
	SecretClientID      = "slack-client-id"
	SecretClientSecret  = "slack-client-secret"
	SecretSigningSecret = "slack-signing-secret"
)

// Config はアプリケーション設定を表します
type Config struct {
	// 基本設定
	Port    int
	DevMode bool

	// Slack API 設定
	SlackClientID      string // 空の場合は Secret Manager から読み込み
	SlackClientSecret  string // 空の場合は Secret Manager から読み込み
	SlackSigningSecret string // 空の場合は Secret Manager から読み込み
	SlackBotToken      string // 単一ワークスペース運用時のトークン

	// OAuth 設定
	Scopes          []string
	UserScopes      []string
	RedirectURL     string
	InstallPath     string
	RedirectPath    string
	StateCookieName string
	StateExpiration time.Duration

	// ストア設定
	Store                   string
	SQLitePath              string
	GcpProject              string
	FirestoreProjectID      string
	CollectionInstallations string
	CollectionStates        string
	SecretTokenPrefix       string

	// テンプレート
	ModalTemplatePath string
	PhrasesPath       string
}

// Flags はアプリケーション設定の CLI フラグを定義します
// 各フラグは環境変数と設定ファイル (TOML) からも設定できます
func Flags(configFilePath altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "dev",
			Usage: "simple setup, but unsafe for production",
		},
		&cli.IntFlag{
			Name:  "port",
			Usage: "HTTP server port",
			Value: DefaultPort,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("PORT"),
				toml.TOML("http.port", configFilePath),
			),
		},

		// Slack
		&cli.StringFlag{
			Name:  "slack-client-id",
			Usage: "Slack app client ID",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("SLACK_CLIENT_ID"),
				toml.TOML("slack.client_id", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "slack-client-secret",
			Usage: "Slack app client secret",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("SLACK_CLIENT_SECRET"),
				toml.TOML("slack.client_secret", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "slack-signing-secret",
			Usage: "Slack app signing secret",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("SLACK_SIGNING_SECRET"),
				toml.TOML("slack.signing_secret", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "slack-bot-token",
			Usage: "bot token for single-workspace setups (installations take precedence)",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("SLACK_BOT_TOKEN"),
				toml.TOML("slack.bot_token", configFilePath),
			),
		},

		// OAuth
		&cli.StringFlag{
			Name:  "slack-scopes",
			Usage: "bot scopes requested on install (comma or space delimited)",
			Value: DefaultScopes,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("SLACK_SCOPES"),
				toml.TOML("oauth.scopes", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "slack-user-scopes",
			Usage: "user scopes requested on install (comma or space delimited)",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("SLACK_USER_SCOPES"),
				toml.TOML("oauth.user_scopes", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "oauth-redirect-url",
			Usage: "OAuth redirect URL (default: the Slack app setting)",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("OAUTH_REDIRECT_URL"),
				toml.TOML("oauth.redirect_url", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "oauth-install-path",
			Value: DefaultInstallPath,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("OAUTH_INSTALL_PATH"),
				toml.TOML("oauth.install_path", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "oauth-redirect-path",
			Value: DefaultRedirectPath,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("OAUTH_REDIRECT_PATH"),
				toml.TOML("oauth.redirect_path", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "oauth-state-cookie",
			Value: oauth.DefaultStateCookieName,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("OAUTH_STATE_COOKIE"),
				toml.TOML("oauth.state_cookie", configFilePath),
			),
		},
		&cli.DurationFlag{
			Name:  "oauth-state-expiration",
			Value: oauth.DefaultStateExpiration,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("OAUTH_STATE_EXPIRATION"),
				toml.TOML("oauth.state_expiration", configFilePath),
			),
		},

		// Store
		&cli.StringFlag{
			Name:  "store",
			Usage: "installation store backend: sqlite or firestore",
			Value: StoreSQLite,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("STORE"),
				toml.TOML("store.backend", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "sqlite-path",
			Value: DefaultSQLitePath,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("SQLITE_PATH"),
				toml.TOML("store.sqlite_path", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "gcp-project",
			Usage: "GCP project for Secret Manager",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("GCP_PROJECT"),
				toml.TOML("gcp.project", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "firestore-project",
			Usage: "Firestore project (default: --gcp-project)",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("FIRESTORE_PROJECT_ID"),
				toml.TOML("store.firestore_project", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "collection-installations",
			Value: DefaultInstallations,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("COLLECTION_INSTALLATIONS"),
				toml.TOML("store.collection_installations", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "collection-states",
			Value: DefaultStates,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("COLLECTION_STATES"),
				toml.TOML("store.collection_states", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "secret-token-prefix",
			Value: DefaultTokenPrefix,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("SECRET_TOKEN_PREFIX"),
				toml.TOML("store.secret_token_prefix", configFilePath),
			),
		},

		// テンプレート
		&cli.StringFlag{
			Name:  "modal-template",
			Usage: "kudos modal JSON or YAML file (default: built-in)",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("MODAL_TEMPLATE"),
				toml.TOML("templates.modal", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "phrases",
			Usage: "YAML file with success and error phrases (default: built-in)",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("PHRASES_FILE"),
				toml.TOML("templates.phrases", configFilePath),
			),
		},
	}
}

// FromCommand は CLI フラグの値から Config を作成します
func FromCommand(cmd *cli.Command) *Config {
	c := &Config{
		Port:    cmd.Int("port"),
		DevMode: cmd.Bool("dev"),

		SlackClientID:      cmd.String("slack-client-id"),
		SlackClientSecret:  cmd.String("slack-client-secret"),
		SlackSigningSecret: cmd.String("slack-signing-secret"),
		SlackBotToken:      cmd.String("slack-bot-token"),

		Scopes:          oauth.ParseScopes(cmd.String("slack-scopes")),
		UserScopes:      oauth.ParseScopes(cmd.String("slack-user-scopes")),
		RedirectURL:     cmd.String("oauth-redirect-url"),
		InstallPath:     cmd.String("oauth-install-path"),
		RedirectPath:    cmd.String("oauth-redirect-path"),
		StateCookieName: cmd.String("oauth-state-cookie"),
		StateExpiration: cmd.Duration("oauth-state-expiration"),

		Store:                   cmd.String("store"),
		SQLitePath:              cmd.String("sqlite-path"),
		GcpProject:              cmd.String("gcp-project"),
		FirestoreProjectID:      cmd.String("firestore-project"),
		CollectionInstallations: cmd.String("collection-installations"),
		CollectionStates:        cmd.String("collection-states"),
		SecretTokenPrefix:       cmd.String("secret-token-prefix"),

		ModalTemplatePath: cmd.String("modal-template"),
		PhrasesPath:       cmd.String("phrases"),
	}
	if c.FirestoreProjectID == "" {
		c.FirestoreProjectID = c.GcpProject
	}
	return c
}

// SecretSource はシークレットの取得元です
type SecretSource interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// FillSecrets は未設定の Slack 認証情報を Secret Manager から補完します
// 存在しないシークレットは未設定のままにします
func (c *Config) FillSecrets(ctx context.Context, src SecretSource) error {
	targets := []struct {
		name  string
		value *string
	}{
		{SecretClientID, &c.SlackClientID},
		{SecretClientSecret, &c.SlackClientSecret},
		{SecretSigningSecret, &c.SlackSigningSecret},
	}

	for _, t := range targets {
		if *t.value != "" {
			continue
		}
		v, err := src.GetSecret(ctx, t.name)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("config: %s 取得失敗: %w", t.name, err)
		}
		*t.value = v
	}

	return nil
}

// NeedsSecrets は Secret Manager からの補完が必要かどうかを返します
func (c *Config) NeedsSecrets() bool {
	if c.GcpProject == "" {
		return false
	}
	return c.SlackClientID == "" || c.SlackClientSecret == "" || c.SlackSigningSecret == ""
}

// OAuthEnabled は OAuth インストールフローを有効にするかどうかを返します
func (c *Config) OAuthEnabled() bool {
	return c.SlackClientID != "" && c.SlackClientSecret != ""
}

// Validate は設定の整合性を検証します
func (c *Config) Validate() error {
	if c.SlackSigningSecret == "" {
		return fmt.Errorf("config: signing secret が未設定です: %w", domain.ErrInvalid)
	}
	if !c.OAuthEnabled() && c.SlackBotToken == "" {
		return fmt.Errorf("config: client ID/secret または bot token が必要です: %w", domain.ErrInvalid)
	}
	if c.OAuthEnabled() && len(c.Scopes) == 0 {
		return fmt.Errorf("config: scopes が未設定です: %w", domain.ErrInvalid)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d は範囲外です: %w", c.Port, domain.ErrInvalid)
	}
	if c.StateExpiration <= 0 {
		return fmt.Errorf("config: state の有効期限が不正です: %w", domain.ErrInvalid)
	}

	switch c.Store {
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: SQLite のパスが未設定です: %w", domain.ErrInvalid)
		}
	case StoreFirestore:
		if c.FirestoreProjectID == "" {
			return fmt.Errorf("config: Firestore のプロジェクトが未設定です: %w", domain.ErrInvalid)
		}
	default:
		return fmt.Errorf("config: 不明なストア %q: %w", c.Store, domain.ErrInvalid)
	}

	return nil
}
