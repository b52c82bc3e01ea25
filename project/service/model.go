package service

import "errors"

const (
	// KudosCommand は kudos モーダルを開くスラッシュコマンド
	KudosCommand = "/kudos"

	// KudosModalCallbackID は kudos モーダルの callback_id
	KudosModalCallbackID = "kudos_modal"

	// KudosHelpArg はヘルプ表示の引数（完全一致）
	KudosHelpArg = "help"

	KudosHelpText = "To use Kudosbot, just type in /kudos and press enter in any chat."

	MentionReplyText = "What's up?"

	// KudosConfirmationPrefix は投稿成功時に送信者へ送る DM の先頭文
	KudosConfirmationPrefix = "Hello Kudo-er! Your kudos has been delivered. "

	kudosImageURL     = "https://media.giphy.com/media/3oz8xEw5k7ae09nFFm/giphy.gif"
	kudosImageAltText = "yayy"
)

// ErrDeliveryFailed は kudos メッセージのチャンネル投稿に失敗したことを表します
// 送信者にはエラー定型文のみを返し、詳細はログにだけ残します
var ErrDeliveryFailed = errors.New("kudos: チャンネル投稿失敗")
