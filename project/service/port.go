package service

import (
	"context"

	"github.com/slack-go/slack"

	"kudos-bot/project/domain"
)

// SlackPort は Slack API 呼び出しのポートです
// ws はトークン解決に使うワークスペース
type SlackPort interface {
	// PostText はチャンネル（またはユーザーIDへの DM）にテキストを投稿します
	PostText(ctx context.Context, ws domain.Workspace, channelID, text string) error

	// PostBlocks はチャンネルに Block Kit メッセージを投稿します
	PostBlocks(ctx context.Context, ws domain.Workspace, channelID string, blocks []slack.Block) error

	// OpenView はトリガーIDを使ってモーダルを開きます
	OpenView(ctx context.Context, ws domain.Workspace, triggerID string, view slack.ModalViewRequest) error
}

// TemplatePort は kudos モーダルの定義を読み込むポートです
// 呼び出しごとに読み込み直します
type TemplatePort interface {
	KudosModal(ctx context.Context) (slack.ModalViewRequest, error)
}

// PhraseProvider は送信者向けの定型文を1つ返します
type PhraseProvider interface {
	Success() string
	Error() string
}

// Ack はコマンドやモーダル送信への即時応答です
// text が空の場合は本文なしで応答します
type Ack func(text string) error
