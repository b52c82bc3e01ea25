package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"kudos-bot/project/dto"
)

// KudosService は kudos bot のコマンド・イベント・モーダル送信を処理するサービスです
type KudosService interface {
	// OnAppMention は Bot へのメンションに定型文で返信します
	OnAppMention(ctx context.Context, ev *dto.SlackMentionEvent) error

	// OnMessage は message イベントを受け取り、何もしません
	OnMessage(ctx context.Context) error

	// OnKudosCommand は /kudos を処理します。"help" の場合は使い方を返し、それ以外はモーダルを開きます
	OnKudosCommand(ctx context.Context, cmd *dto.SlackCommandRequest, ack Ack) error

	// OnKudosSubmission はモーダル送信を受け取り、選択チャンネルに kudos を投稿して送信者へ結果を DM します
	OnKudosSubmission(ctx context.Context, sub *dto.KudosSubmission, ack Ack) error
}

// kudosService は KudosService の実装です
type kudosService struct {
	sp        SlackPort
	templates TemplatePort
	phrases   PhraseProvider
}

// NewKudosService は KudosService のインスタンスを作成します
func NewKudosService(sp SlackPort, templates TemplatePort, phrases PhraseProvider) KudosService {
	return &kudosService{
		sp:        sp,
		templates: templates,
		phrases:   phrases,
	}
}

func (ks *kudosService) OnAppMention(ctx context.Context, ev *dto.SlackMentionEvent) error {
	zerolog.Ctx(ctx).Debug().Str("channel", ev.ChannelID).Str("user", ev.UserID).Msg("app_mention 受信")

	if err := ks.sp.PostText(ctx, ev.Workspace, ev.ChannelID, MentionReplyText); err != nil {
		return fmt.Errorf("OnAppMention: 返信投稿失敗: %w", err)
	}
	return nil
}

func (ks *kudosService) OnMessage(_ context.Context) error {
	return nil
}

func (ks *kudosService) OnKudosCommand(ctx context.Context, cmd *dto.SlackCommandRequest, ack Ack) error {
	if cmd.Text == KudosHelpArg {
		return ack(KudosHelpText)
	}

	// 応答期限（3秒）があるため、モーダル読み込みより先に ack する
	if err := ack(""); err != nil {
		return fmt.Errorf("OnKudosCommand: ack 失敗: %w", err)
	}

	view, err := ks.templates.KudosModal(ctx)
	if err != nil {
		return fmt.Errorf("OnKudosCommand: モーダル読み込み失敗: %w", err)
	}

	if err := ks.sp.OpenView(ctx, cmd.Workspace, cmd.TriggerID, view); err != nil {
		return fmt.Errorf("OnKudosCommand: モーダル表示失敗 (user=%s): %w", cmd.UserID, err)
	}

	zerolog.Ctx(ctx).Info().Str("user", cmd.UserID).Msg("kudos モーダル表示")
	return nil
}

func (ks *kudosService) OnKudosSubmission(ctx context.Context, sub *dto.KudosSubmission, ack Ack) error {
	if sub == nil || strings.TrimSpace(sub.SenderID) == "" {
		return errors.New("OnKudosSubmission: 送信者が特定できません")
	}

	// モーダルを閉じる ack は外部 API 呼び出しより先
	if err := ack(""); err != nil {
		return fmt.Errorf("OnKudosSubmission: ack 失敗: %w", err)
	}

	l := zerolog.Ctx(ctx).With().Str("channel", sub.ChannelID).Str("sender", sub.SenderID).Logger()

	var text string
	err := ks.deliver(ctx, sub)
	switch {
	case err == nil:
		text = KudosConfirmationPrefix + ks.phrases.Success()
		l.Info().Int("recipients", len(sub.RecipientIDs)).Msg("kudos 投稿完了")
	case errors.Is(err, ErrDeliveryFailed):
		// 送信者には詳細を伝えず、ログにのみ残す
		text = ks.phrases.Error()
		l.Warn().Err(err).Msg("kudos 投稿失敗")
	default:
		return fmt.Errorf("OnKudosSubmission: %w", err)
	}

	// 投稿結果に関わらず送信者へ DM
	if err := ks.sp.PostText(ctx, sub.Workspace, sub.SenderID, text); err != nil {
		return fmt.Errorf("OnKudosSubmission: 送信者への通知失敗 (user=%s): %w", sub.SenderID, err)
	}
	return nil
}

// deliver は選択チャンネルへ kudos を投稿します（再試行なし）
func (ks *kudosService) deliver(ctx context.Context, sub *dto.KudosSubmission) error {
	blocks := BuildKudosBlocks(sub)
	if err := ks.sp.PostBlocks(ctx, sub.Workspace, sub.ChannelID, blocks); err != nil {
		return fmt.Errorf("%w (channel=%s): %w", ErrDeliveryFailed, sub.ChannelID, err)
	}
	return nil
}
