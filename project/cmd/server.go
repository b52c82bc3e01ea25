package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/urfave/cli/v3"

	"kudos-bot/project/domain"
	"kudos-bot/project/handler"
	"kudos-bot/project/infrastructure/config"
	"kudos-bot/project/infrastructure/oauth"
	"kudos-bot/project/infrastructure/secret"
	"kudos-bot/project/infrastructure/slack"
	"kudos-bot/project/infrastructure/store"
	"kudos-bot/project/infrastructure/template"
	"kudos-bot/project/service"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// repository はインストール情報と OAuth state のストアです
type repository interface {
	domain.InstallationRepository
	domain.StateRepository
	Close() error
}

// run はサーバーを起動します。シグナルを受け取るまで戻りません
func run(ctx context.Context, cmd *cli.Command) error {
	initLog(cmd.Bool("dev"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 設定を読み込む
	cfg := config.FromCommand(cmd)

	var secretMgr *secret.Manager
	if cfg.GcpProject != "" {
		var err error
		if secretMgr, err = secret.NewManager(ctx, cfg.GcpProject); err != nil {
			return err
		}
		defer secretMgr.Close()
	}

	if cfg.NeedsSecrets() {
		if err := cfg.FillSecrets(ctx, secretMgr); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// 2. 依存関係を初期化
	repo, err := openStore(ctx, cfg, secretMgr)
	if err != nil {
		return err
	}
	defer repo.Close()

	slackClient := slack.NewSlackClient(repo, cfg.SlackBotToken)

	phrases, err := template.LoadPhrases(cfg.PhrasesPath)
	if err != nil {
		return err
	}

	// 3. サービス層を初期化
	kudosService := service.NewKudosService(
		slackClient,
		template.NewLoader(cfg.ModalTemplatePath),
		service.NewRandomPhrases(phrases.Success, phrases.Error, nil),
	)

	// 4. HTTP ハンドラーを設定
	dispatcher := handler.NewDispatcher(cfg.SlackSigningSecret)
	handler.RegisterKudos(dispatcher, kudosService)

	mux := http.NewServeMux()

	// Slack イベント・コマンド・インタラクション受信
	mux.Handle("POST "+config.DefaultEventsPath, dispatcher)

	// OAuth インストールフロー
	if cfg.OAuthEnabled() {
		flow := oauth.NewFlow(oauth.Settings{
			ClientID:        cfg.SlackClientID,
			ClientSecret:    cfg.SlackClientSecret,
			Scopes:          cfg.Scopes,
			UserScopes:      cfg.UserScopes,
			RedirectURL:     cfg.RedirectURL,
			StateCookieName: cfg.StateCookieName,
			StateExpiration: cfg.StateExpiration,
		}, repo, repo, oauth.WithAfterInstall(func(*domain.Installation) {
			slackClient.ClearCache()
		}))

		mux.Handle("GET "+cfg.InstallPath, handler.NewInstallHandler(flow))
		mux.Handle("GET "+cfg.RedirectPath, handler.NewOAuthRedirectHandler(flow, cfg.InstallPath))
		log.Info().Str("install_path", cfg.InstallPath).Str("redirect_path", cfg.RedirectPath).Msg("OAuth インストールフロー有効")
	}

	// ヘルスチェック
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// 5. サーバー起動
	server := &http.Server{
		Addr:         net.JoinHostPort("", strconv.Itoa(cfg.Port)),
		Handler:      handler.WithRequestLogger(log.Logger, mux),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("HTTP server listening on port %d", cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Msg("サーバーエラー")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("サーバー停止中")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStore は設定に応じたストアを開きます
func openStore(ctx context.Context, cfg *config.Config, secretMgr *secret.Manager) (repository, error) {
	switch cfg.Store {
	case config.StoreFirestore:
		fsCfg := store.FirestoreConfig{
			ProjectID:        cfg.FirestoreProjectID,
			InstallationsCol: cfg.CollectionInstallations,
			StatesCol:        cfg.CollectionStates,
			TokenPrefix:      cfg.SecretTokenPrefix,
		}
		// nil の *secret.Manager を interface に入れない
		if secretMgr != nil {
			fsCfg.Vault = secretMgr
		}
		repo, err := store.NewFirestoreRepo(ctx, fsCfg)
		if err != nil {
			return nil, err
		}
		return repo, nil

	case config.StoreSQLite:
		repo, err := store.NewSQLiteRepo(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		n, err := repo.PurgeExpiredStates(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("期限切れ state の削除失敗")
		} else if n > 0 {
			log.Debug().Int64("count", n).Msg("期限切れ state を削除")
		}
		return repo, nil

	default:
		return nil, fmt.Errorf("不明なストア: %q", cfg.Store)
	}
}

// initLog はグローバルロガーを設定します
// 本番は JSON で stderr へ、--dev ではコンソール形式で trace まで出力します
func initLog(devMode bool) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	if devMode {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}).
			With().Timestamp().Caller().Logger()
		log.Warn().Msg("開発モードで起動: 本番環境では --dev を外してください")
		return
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
}
