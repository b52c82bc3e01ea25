package handler

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"kudos-bot/project/domain"
	"kudos-bot/project/dto"
	"kudos-bot/project/infrastructure/template"
	"kudos-bot/project/service"
)

// RegisterKudos は kudos bot のリスナーをディスパッチャーに登録します
func RegisterKudos(d *Dispatcher, ks service.KudosService) {
	d.Event(string(slackevents.AppMention), func(ctx context.Context, ws domain.Workspace, ev slackevents.EventsAPIInnerEvent) error {
		m, ok := ev.Data.(*slackevents.AppMentionEvent)
		if !ok {
			return fmt.Errorf("handler: app_mention の型が不正: %T", ev.Data)
		}
		return ks.OnAppMention(ctx, &dto.SlackMentionEvent{
			Workspace: ws,
			ChannelID: m.Channel,
			UserID:    m.User,
			Text:      m.Text,
			Timestamp: m.TimeStamp,
		})
	})

	d.Event(string(slackevents.Message), func(ctx context.Context, _ domain.Workspace, _ slackevents.EventsAPIInnerEvent) error {
		return ks.OnMessage(ctx)
	})

	d.Command(service.KudosCommand, func(ctx context.Context, ws domain.Workspace, cmd slack.SlashCommand, ack service.Ack) error {
		return ks.OnKudosCommand(ctx, &dto.SlackCommandRequest{
			Workspace: ws,
			ChannelID: cmd.ChannelID,
			UserID:    cmd.UserID,
			Command:   cmd.Command,
			Text:      cmd.Text,
			TriggerID: cmd.TriggerID,
		}, ack)
	})

	d.View(service.KudosModalCallbackID, func(ctx context.Context, ws domain.Workspace, cb slack.InteractionCallback, ack service.Ack) error {
		return ks.OnKudosSubmission(ctx, kudosSubmissionFrom(ws, cb), ack)
	})
}

// kudosSubmissionFrom はモーダルの入力値を取り出します
// 未入力の項目は空のままにします
func kudosSubmissionFrom(ws domain.Workspace, cb slack.InteractionCallback) *dto.KudosSubmission {
	sub := &dto.KudosSubmission{
		Workspace: ws,
		SenderID:  cb.User.ID,
	}
	if cb.View.State == nil {
		return sub
	}

	values := cb.View.State.Values
	if a, ok := values[template.ChannelBlockID][template.ChannelActionID]; ok {
		sub.ChannelID = a.SelectedChannel
		if sub.ChannelID == "" {
			sub.ChannelID = a.SelectedConversation
		}
	}
	if a, ok := values[template.ReceiversBlockID][template.ReceiversActionID]; ok {
		sub.RecipientIDs = a.SelectedUsers
	}
	if a, ok := values[template.MessageBlockID][template.MessageActionID]; ok {
		sub.Message = a.Value
	}
	return sub
}
