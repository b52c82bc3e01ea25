package dto

import "kudos-bot/project/domain"

// SlackMentionEvent は app_mention イベントの必要項目です
type SlackMentionEvent struct {
	Workspace domain.Workspace
	ChannelID string
	UserID    string
	Text      string
	Timestamp string
}

// KudosSubmission は kudos モーダル送信 (view_submission) の入力値です
type KudosSubmission struct {
	Workspace domain.Workspace

	// ChannelID は投稿先として選択されたチャンネル
	ChannelID string

	// RecipientIDs は選択された受信者のユーザーID（選択順を保持、空も可）
	RecipientIDs []string

	// Message は自由入力のメッセージ本文
	Message string

	// SenderID はモーダルを送信したユーザー
	SenderID string
}
