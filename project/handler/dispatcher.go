package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"kudos-bot/project/domain"
	"kudos-bot/project/dto"
	"kudos-bot/project/infrastructure/httpsec"
	"kudos-bot/project/service"
)

const maxBodyBytes = 1 << 20

// EventListener は Events API のイベント（ack 済み）を処理します
type EventListener func(ctx context.Context, ws domain.Workspace, ev slackevents.EventsAPIInnerEvent) error

// CommandListener はスラッシュコマンドを処理します
// 応答期限内に ack を呼ぶ必要があります
type CommandListener func(ctx context.Context, ws domain.Workspace, cmd slack.SlashCommand, ack service.Ack) error

// ViewListener はモーダル送信 (view_submission) を処理します
type ViewListener func(ctx context.Context, ws domain.Workspace, cb slack.InteractionCallback, ack service.Ack) error

// Dispatcher は Slack からの Webhook を、種類に一致する1つのリスナーへ振り分けます
// 一致するリスナーがない場合は何もせず 200 を返します
type Dispatcher struct {
	signingSecret string

	events   map[string]EventListener   // イベント type
	commands map[string]CommandListener // コマンド名
	views    map[string]ViewListener    // view の callback_id
}

// NewDispatcher はディスパッチャーを作成します
func NewDispatcher(signingSecret string) *Dispatcher {
	return &Dispatcher{
		signingSecret: signingSecret,
		events:        make(map[string]EventListener),
		commands:      make(map[string]CommandListener),
		views:         make(map[string]ViewListener),
	}
}

// Event はイベント type のリスナーを登録します
func (d *Dispatcher) Event(eventType string, l EventListener) {
	d.events[eventType] = l
}

// Command はスラッシュコマンドのリスナーを登録します
func (d *Dispatcher) Command(name string, l CommandListener) {
	d.commands[name] = l
}

// View はモーダル送信のリスナーを登録します
func (d *Dispatcher) View(callbackID string, l ViewListener) {
	d.views[callbackID] = l
}

// ServeHTTP は Slack Webhook 受信エンドポイント (/slack/events) です
// イベント・コマンド・インタラクションのすべてを受け付けます
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := zerolog.Ctx(r.Context())

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		l.Warn().Err(err).Msg("リクエスト本体の読み込み失敗")
		http.Error(w, "リクエスト本体の読み込み失敗", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	isJSON := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")

	// 署名検証の前に応答するもの
	if isJSON {
		var preCheck eventEnvelope
		if err := json.Unmarshal(body, &preCheck); err == nil && preCheck.Type == slackevents.URLVerification {
			l.Debug().Msg("url_verification に応答")
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(preCheck.Challenge))
			return
		}
	}

	var form url.Values
	if !isJSON {
		if form, err = url.ParseQuery(string(body)); err != nil {
			l.Warn().Err(err).Msg("フォーム解析失敗")
			http.Error(w, "フォーム解析失敗", http.StatusBadRequest)
			return
		}
		if form.Get("ssl_check") == "1" {
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	if err := httpsec.VerifySlackSignature(d.signingSecret, r.Header, body); err != nil {
		l.Warn().Err(err).Msg("署名検証失敗")
		http.Error(w, "署名検証失敗", http.StatusUnauthorized)
		return
	}

	switch {
	case isJSON:
		d.dispatchEvent(w, r, body)
	case form.Has("payload"):
		d.dispatchInteraction(w, r, form.Get("payload"))
	case form.Has("command"):
		r.Body = io.NopCloser(bytes.NewReader(body))
		d.dispatchCommand(w, r, form)
	default:
		l.Debug().Msg("未対応のリクエスト形式")
		w.WriteHeader(http.StatusOK)
	}
}

// eventEnvelope は Events API ペイロードのうちルーティングに使う項目です
type eventEnvelope struct {
	Type         string `json:"type"`
	Challenge    string `json:"challenge,omitempty"`
	TeamID       string `json:"team_id"`
	EnterpriseID string `json:"enterprise_id,omitempty"`
	Event        struct {
		Type string `json:"type"`
	} `json:"event"`
}

func (d *Dispatcher) dispatchEvent(w http.ResponseWriter, r *http.Request, body []byte) {
	ctx := r.Context()
	l := zerolog.Ctx(ctx)

	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		l.Warn().Err(err).Msg("イベント JSON 解析失敗")
		http.Error(w, "JSON パース失敗", http.StatusBadRequest)
		return
	}

	// イベントはリスナー実行前に ack する
	rs := newResponder(w)
	if err := rs.ack(""); err != nil {
		l.Err(err).Msg("イベント ack 失敗")
		return
	}

	if env.Type != slackevents.CallbackEvent {
		return
	}

	// slackevents が知らないイベント型は解析できないが、リスナー未登録と同じ扱い
	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		l.Debug().Err(err).Str("event_type", env.Event.Type).Msg("解析できないイベント")
		return
	}

	listener, ok := d.events[ev.InnerEvent.Type]
	if !ok {
		l.Debug().Str("event_type", ev.InnerEvent.Type).Msg("リスナー未登録のイベント")
		return
	}

	l.Debug().Str("event_type", ev.InnerEvent.Type).Msg("イベント受信")
	ws := domain.Workspace{EnterpriseID: env.EnterpriseID, TeamID: env.TeamID}
	if err := listener(ctx, ws, ev.InnerEvent); err != nil {
		l.Err(err).Str("event_type", ev.InnerEvent.Type).Msg("イベント処理エラー")
	}
}

func (d *Dispatcher) dispatchCommand(w http.ResponseWriter, r *http.Request, form url.Values) {
	ctx := r.Context()
	l := zerolog.Ctx(ctx)

	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		l.Warn().Err(err).Msg("コマンド解析失敗")
		http.Error(w, "コマンド解析失敗", http.StatusBadRequest)
		return
	}

	listener, ok := d.commands[cmd.Command]
	if !ok {
		l.Debug().Str("command", cmd.Command).Msg("リスナー未登録のコマンド")
		w.WriteHeader(http.StatusOK)
		return
	}

	l.Debug().Str("command", cmd.Command).Str("user", cmd.UserID).Msg("コマンド受信")
	ws := domain.Workspace{EnterpriseID: form.Get("enterprise_id"), TeamID: cmd.TeamID}
	rs := newResponder(w)
	rs.finish(l, listener(ctx, ws, cmd, rs.ack))
}

// interactionEnvelope はインタラクションペイロードのうちワークスペース特定に使う項目です
type interactionEnvelope struct {
	Team struct {
		ID string `json:"id"`
	} `json:"team"`
	Enterprise *struct {
		ID string `json:"id"`
	} `json:"enterprise"`
}

func (env interactionEnvelope) workspace() domain.Workspace {
	ws := domain.Workspace{TeamID: env.Team.ID}
	if env.Enterprise != nil {
		ws.EnterpriseID = env.Enterprise.ID
	}
	return ws
}

func (d *Dispatcher) dispatchInteraction(w http.ResponseWriter, r *http.Request, payload string) {
	ctx := r.Context()
	l := zerolog.Ctx(ctx)

	var (
		cb  slack.InteractionCallback
		env interactionEnvelope
	)
	if err := json.Unmarshal([]byte(payload), &cb); err != nil {
		l.Warn().Err(err).Msg("payload 解析失敗")
		http.Error(w, "payload 解析失敗", http.StatusBadRequest)
		return
	}
	_ = json.Unmarshal([]byte(payload), &env)

	if cb.Type != slack.InteractionTypeViewSubmission {
		l.Debug().Str("interaction_type", string(cb.Type)).Msg("未対応のインタラクション")
		w.WriteHeader(http.StatusOK)
		return
	}

	listener, ok := d.views[cb.View.CallbackID]
	if !ok {
		l.Debug().Str("callback_id", cb.View.CallbackID).Msg("リスナー未登録の view")
		w.WriteHeader(http.StatusOK)
		return
	}

	l.Debug().Str("callback_id", cb.View.CallbackID).Str("user", cb.User.ID).Msg("view_submission 受信")
	rs := newResponder(w)

	// view_submission の ack は本文なし（モーダルを閉じる）
	ack := func(string) error { return rs.ack("") }
	rs.finish(l, listener(ctx, env.workspace(), cb, ack))
}

// responder は ack を1回だけ HTTP レスポンスとして書き込みます
type responder struct {
	w     http.ResponseWriter
	mu    sync.Mutex
	acked bool
}

func newResponder(w http.ResponseWriter) *responder {
	return &responder{w: w}
}

// ack はレスポンスを書き込んでフラッシュします。2回目以降は何もしません
func (rs *responder) ack(text string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.acked {
		return nil
	}
	rs.acked = true

	if text == "" {
		rs.w.WriteHeader(http.StatusOK)
	} else {
		rs.w.Header().Set("Content-Type", "application/json")
		rs.w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(rs.w).Encode(dto.SlackSlashResponse{ResponseType: slack.ResponseTypeEphemeral, Text: text}); err != nil {
			return err
		}
	}

	// 後続の外部 API 呼び出しを待たずに Slack へ応答を届ける
	if err := http.NewResponseController(rs.w).Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// finish はリスナーの結果に応じて応答を完了させます
// ack 前の失敗は 500、ack 後の失敗はログのみ
func (rs *responder) finish(l *zerolog.Logger, err error) {
	if err == nil {
		if err := rs.ack(""); err != nil {
			l.Err(err).Msg("ack 失敗")
		}
		return
	}

	rs.mu.Lock()
	acked := rs.acked
	if !acked {
		rs.acked = true
		http.Error(rs.w, "Internal server error", http.StatusInternalServerError)
	}
	rs.mu.Unlock()

	if acked {
		l.Err(err).Msg("ack 後の処理エラー")
		return
	}
	l.Err(err).Msg("処理エラー")
}
