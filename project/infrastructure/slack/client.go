package slack

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/slack-go/slack"

	"kudos-bot/project/domain"
)

// SlackClient は service.SlackPort の Slack SDK 実装です
// ワークスペースごとのインストール情報から Bot トークンを解決します
type SlackClient struct {
	installations domain.InstallationRepository
	defaultToken  string // インストール情報がない場合に使うトークン（任意）
	options       []slack.Option

	mu         sync.Mutex
	tokenCache map[string]*slack.Client // Workspace.Key() -> SlackClient
}

// NewSlackClient は Slack クライアントを初期化します
func NewSlackClient(installations domain.InstallationRepository, defaultToken string, options ...slack.Option) *SlackClient {
	return &SlackClient{
		installations: installations,
		defaultToken:  defaultToken,
		options:       options,
		tokenCache:    make(map[string]*slack.Client),
	}
}

// getSlackClient はワークスペースに対応する Slack API クライアントを取得します
func (sc *SlackClient) getSlackClient(ctx context.Context, ws domain.Workspace) (*slack.Client, error) {
	key := ws.Key()

	sc.mu.Lock()
	cli, exists := sc.tokenCache[key]
	sc.mu.Unlock()
	if exists {
		return cli, nil
	}

	token, err := sc.resolveToken(ctx, ws)
	if err != nil {
		return nil, err
	}

	cli = slack.New(token, sc.options...)

	sc.mu.Lock()
	sc.tokenCache[key] = cli
	sc.mu.Unlock()

	return cli, nil
}

// resolveToken はインストール情報から Bot トークンを取得します
// 未インストールの場合は設定済みのデフォルトトークンを使います
func (sc *SlackClient) resolveToken(ctx context.Context, ws domain.Workspace) (string, error) {
	if sc.installations != nil {
		inst, err := sc.installations.Find(ctx, ws)
		if err == nil {
			return inst.BotToken, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("slack: インストール情報取得失敗 (workspace=%s): %w", ws.Key(), err)
		}
	}

	if sc.defaultToken == "" {
		return "", fmt.Errorf("slack: Bot トークンが見つかりません (workspace=%s): %w", ws.Key(), domain.ErrNotFound)
	}
	return sc.defaultToken, nil
}

// PostText はチャンネルまたはユーザー（DM）にテキストを投稿します
func (sc *SlackClient) PostText(ctx context.Context, ws domain.Workspace, channelID, text string) error {
	cli, err := sc.getSlackClient(ctx, ws)
	if err != nil {
		return err
	}

	if _, _, err := cli.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("slack: メッセージ投稿失敗 (channel=%s): %w", channelID, err)
	}
	return nil
}

// PostBlocks はチャンネルに Block Kit メッセージを投稿します
func (sc *SlackClient) PostBlocks(ctx context.Context, ws domain.Workspace, channelID string, blocks []slack.Block) error {
	cli, err := sc.getSlackClient(ctx, ws)
	if err != nil {
		return err
	}

	if _, _, err := cli.PostMessageContext(ctx, channelID, slack.MsgOptionBlocks(blocks...)); err != nil {
		return fmt.Errorf("slack: ブロック投稿失敗 (channel=%s): %w", channelID, err)
	}
	return nil
}

// OpenView はモーダルを開きます
func (sc *SlackClient) OpenView(ctx context.Context, ws domain.Workspace, triggerID string, view slack.ModalViewRequest) error {
	cli, err := sc.getSlackClient(ctx, ws)
	if err != nil {
		return err
	}

	if _, err := cli.OpenViewContext(ctx, triggerID, view); err != nil {
		return fmt.Errorf("slack: モーダル表示失敗: %w", err)
	}
	return nil
}

// ClearCache はトークンキャッシュをクリアします
// 新しいインストールが保存されたときに呼ばれます
func (sc *SlackClient) ClearCache() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.tokenCache = make(map[string]*slack.Client)
}
