package service

import (
	"strings"

	"github.com/slack-go/slack"

	"kudos-bot/project/dto"
)

// BuildKudosBlocks は kudos メッセージの Block Kit を組み立てます
// 構成: 受信者へのメンション、区切り線、送信者と本文、お祝い画像
func BuildKudosBlocks(sub *dto.KudosSubmission) []slack.Block {
	mentions := make([]string, 0, len(sub.RecipientIDs))
	for _, id := range sub.RecipientIDs {
		mentions = append(mentions, mention(id))
	}

	greeting := "Hello, " + strings.Join(mentions, " ") + "! You've gotten a kudos :cherry_blossom:"
	body := "*" + mention(sub.SenderID) + "*\n" + sub.Message

	return []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, greeting, false, false), nil, nil),
		slack.NewDividerBlock(),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, body, false, false), nil, nil),
		slack.NewImageBlock(kudosImageURL, kudosImageAltText, "", nil),
	}
}

// mention は Slack メンション形式 <@USERID> を返します
func mention(userID string) string {
	return "<@" + userID + ">"
}
