package dto

import "kudos-bot/project/domain"

// SlackCommandRequest はスラッシュコマンドのうちハンドラーが必要とする項目です
type SlackCommandRequest struct {
	Workspace domain.Workspace
	ChannelID string
	UserID    string
	Command   string // コマンド名 (/kudos など)
	Text      string // コマンド引数
	TriggerID string // モーダルを開くためのトリガーID（数秒で失効）
}

// SlackSlashResponse はスラッシュコマンドの ack レスポンスです
type SlackSlashResponse struct {
	ResponseType string `json:"response_type"` // "in_channel" or "ephemeral"
	Text         string `json:"text"`
}
