package service

import (
	"context"
	"errors"

	"github.com/slack-go/slack"

	"kudos-bot/project/domain"
)

type post struct {
	ws      domain.Workspace
	channel string
	text    string
	blocks  []slack.Block
}

type openedView struct {
	ws        domain.Workspace
	triggerID string
	view      slack.ModalViewRequest
}

// fakeSlack は SlackPort の呼び出しを記録します
type fakeSlack struct {
	posts     []post
	views     []openedView
	blocksErr error
	textErr   error
	viewErr   error

	// events は ack と API 呼び出しの順序を記録します
	events *[]string
}

func (f *fakeSlack) record(e string) {
	if f.events != nil {
		*f.events = append(*f.events, e)
	}
}

func (f *fakeSlack) PostText(_ context.Context, ws domain.Workspace, channelID, text string) error {
	f.record("post_text")
	f.posts = append(f.posts, post{ws: ws, channel: channelID, text: text})
	return f.textErr
}

func (f *fakeSlack) PostBlocks(_ context.Context, ws domain.Workspace, channelID string, blocks []slack.Block) error {
	f.record("post_blocks")
	f.posts = append(f.posts, post{ws: ws, channel: channelID, blocks: blocks})
	return f.blocksErr
}

func (f *fakeSlack) OpenView(_ context.Context, ws domain.Workspace, triggerID string, view slack.ModalViewRequest) error {
	f.record("open_view")
	f.views = append(f.views, openedView{ws: ws, triggerID: triggerID, view: view})
	return f.viewErr
}

type fakeTemplates struct {
	view slack.ModalViewRequest
	err  error
}

func (f fakeTemplates) KudosModal(_ context.Context) (slack.ModalViewRequest, error) {
	return f.view, f.err
}

// recordingAck は ack の呼び出しを記録します
type recordingAck struct {
	texts  []string
	err    error
	events *[]string
}

func (a *recordingAck) ack(text string) error {
	if a.events != nil {
		*a.events = append(*a.events, "ack")
	}
	a.texts = append(a.texts, text)
	return a.err
}

var errSlack = errors.New("channel_not_found")
