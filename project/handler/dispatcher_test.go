package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"kudos-bot/project/domain"
	"kudos-bot/project/dto"
	"kudos-bot/project/infrastructure/httpsec"
	"kudos-bot/project/service"
)

const testSigningSecret = "e6b19c573432dcc6b075501d51b51bb8"

// signedRequest は Slack 署名付きの POST /slack/events リクエストを作成します
func signedRequest(t *testing.T, contentType, body string) *http.Request {
	t.Helper()

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(testSigningSecret))
	mac.Write([]byte("v0:" + ts + ":" + body))

	r := httptest.NewRequestWithContext(zerolog.Nop().WithContext(t.Context()), http.MethodPost, "/slack/events", strings.NewReader(body))
	r.Header.Set("Content-Type", contentType)
	r.Header.Set(httpsec.TimestampHeader, ts)
	r.Header.Set(httpsec.SignatureHeader, "v0="+hex.EncodeToString(mac.Sum(nil)))
	return r
}

func commandBody(command, text string) string {
	v := url.Values{}
	v.Set("command", command)
	v.Set("text", text)
	v.Set("team_id", "T1")
	v.Set("enterprise_id", "E1")
	v.Set("user_id", "U1")
	v.Set("channel_id", "C1")
	v.Set("trigger_id", "trig-1")
	return v.Encode()
}

func payloadBody(t *testing.T, payload any) string {
	t.Helper()

	b, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return url.Values{"payload": {string(b)}}.Encode()
}

const formType = "application/x-www-form-urlencoded"

func TestDispatcherURLVerification(t *testing.T) {
	d := NewDispatcher(testSigningSecret)

	// url_verification は署名なしでも応答する
	body := `{"type":"url_verification","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P","token":"x"}`
	r := httptest.NewRequestWithContext(t.Context(), http.MethodPost, "/slack/events", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	d.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Body.String(); got != "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P" {
		t.Errorf("body = %q", got)
	}
}

func TestDispatcherSSLCheck(t *testing.T) {
	d := NewDispatcher(testSigningSecret)
	r := httptest.NewRequestWithContext(t.Context(), http.MethodPost, "/slack/events", strings.NewReader("ssl_check=1&token=x"))
	r.Header.Set("Content-Type", formType)
	w := httptest.NewRecorder()

	d.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestDispatcherRejectsInvalidSignature(t *testing.T) {
	called := false
	d := NewDispatcher(testSigningSecret)
	d.Command("/kudos", func(context.Context, domain.Workspace, slack.SlashCommand, service.Ack) error {
		called = true
		return nil
	})

	tests := []struct {
		name   string
		mutate func(r *http.Request)
	}{
		{
			name:   "wrong_signature",
			mutate: func(r *http.Request) { r.Header.Set(httpsec.SignatureHeader, "v0=deadbeef") },
		},
		{
			name:   "missing_headers",
			mutate: func(r *http.Request) { r.Header.Del(httpsec.SignatureHeader); r.Header.Del(httpsec.TimestampHeader) },
		},
		{
			name: "stale_timestamp",
			mutate: func(r *http.Request) {
				r.Header.Set(httpsec.TimestampHeader, strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := signedRequest(t, formType, commandBody("/kudos", ""))
			tt.mutate(r)
			w := httptest.NewRecorder()

			d.ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
	if called {
		t.Error("listener was called for an unverified request")
	}
}

func TestDispatcherMethodNotAllowed(t *testing.T) {
	d := NewDispatcher(testSigningSecret)
	w := httptest.NewRecorder()
	d.ServeHTTP(w, httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/slack/events", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestDispatcherCommand(t *testing.T) {
	errListener := errors.New("listener failed")

	tests := []struct {
		name       string
		command    string
		listener   CommandListener
		wantStatus int
		wantText   string
	}{
		{
			name:    "ack_with_text",
			command: "/kudos",
			listener: func(_ context.Context, _ domain.Workspace, _ slack.SlashCommand, ack service.Ack) error {
				return ack("hello")
			},
			wantStatus: http.StatusOK,
			wantText:   "hello",
		},
		{
			name:    "ack_once",
			command: "/kudos",
			listener: func(_ context.Context, _ domain.Workspace, _ slack.SlashCommand, ack service.Ack) error {
				if err := ack("first"); err != nil {
					return err
				}
				return ack("second")
			},
			wantStatus: http.StatusOK,
			wantText:   "first",
		},
		{
			name:    "no_ack_gets_empty_200",
			command: "/kudos",
			listener: func(context.Context, domain.Workspace, slack.SlashCommand, service.Ack) error {
				return nil
			},
			wantStatus: http.StatusOK,
		},
		{
			name:    "error_before_ack",
			command: "/kudos",
			listener: func(context.Context, domain.Workspace, slack.SlashCommand, service.Ack) error {
				return errListener
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:    "error_after_ack",
			command: "/kudos",
			listener: func(_ context.Context, _ domain.Workspace, _ slack.SlashCommand, ack service.Ack) error {
				_ = ack("")
				return errListener
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown_command",
			command:    "/other",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(testSigningSecret)
			if tt.listener != nil {
				d.Command("/kudos", tt.listener)
			}
			w := httptest.NewRecorder()

			d.ServeHTTP(w, signedRequest(t, formType, commandBody(tt.command, "")))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantText == "" {
				if tt.wantStatus == http.StatusOK && w.Body.Len() != 0 {
					t.Errorf("body = %q, want empty", w.Body.String())
				}
				return
			}
			var resp dto.SlackSlashResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("response is not JSON: %v (%q)", err, w.Body.String())
			}
			if resp.Text != tt.wantText || resp.ResponseType != slack.ResponseTypeEphemeral {
				t.Errorf("response = %+v, want ephemeral %q", resp, tt.wantText)
			}
		})
	}
}

func TestDispatcherCommandFields(t *testing.T) {
	var (
		gotWS  domain.Workspace
		gotCmd slack.SlashCommand
	)
	d := NewDispatcher(testSigningSecret)
	d.Command("/kudos", func(_ context.Context, ws domain.Workspace, cmd slack.SlashCommand, _ service.Ack) error {
		gotWS, gotCmd = ws, cmd
		return nil
	})

	d.ServeHTTP(httptest.NewRecorder(), signedRequest(t, formType, commandBody("/kudos", "help")))

	if want := (domain.Workspace{EnterpriseID: "E1", TeamID: "T1"}); gotWS != want {
		t.Errorf("workspace = %+v, want %+v", gotWS, want)
	}
	if gotCmd.Text != "help" || gotCmd.TriggerID != "trig-1" || gotCmd.UserID != "U1" {
		t.Errorf("command = %+v", gotCmd)
	}
}

func TestDispatcherEvent(t *testing.T) {
	var (
		gotWS    domain.Workspace
		gotEvent slackevents.EventsAPIInnerEvent
		calls    int
	)
	d := NewDispatcher(testSigningSecret)
	d.Event("app_mention", func(_ context.Context, ws domain.Workspace, ev slackevents.EventsAPIInnerEvent) error {
		calls++
		gotWS, gotEvent = ws, ev
		return errors.New("ignored after ack")
	})

	body := `{"token":"x","team_id":"T1","api_app_id":"A1","type":"event_callback","event_id":"Ev1","event_time":1,` +
		`"event":{"type":"app_mention","user":"U1","text":"<@B1> hi","ts":"1.000","channel":"C1","event_ts":"1.000"}}`
	w := httptest.NewRecorder()

	d.ServeHTTP(w, signedRequest(t, "application/json", body))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if calls != 1 {
		t.Fatalf("listener calls = %d, want 1", calls)
	}
	if gotWS != (domain.Workspace{TeamID: "T1"}) {
		t.Errorf("workspace = %+v", gotWS)
	}
	m, ok := gotEvent.Data.(*slackevents.AppMentionEvent)
	if !ok {
		t.Fatalf("event data = %T", gotEvent.Data)
	}
	if m.Channel != "C1" || m.User != "U1" {
		t.Errorf("event = %+v", m)
	}
}

func TestDispatcherUnknownEvent(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "no_listener",
			body: `{"token":"x","team_id":"T1","type":"event_callback","event":{"type":"reaction_added","user":"U1","reaction":"tada"}}`,
		},
		{
			name: "type_unknown_to_slackevents",
			body: `{"token":"x","team_id":"T1","type":"event_callback","event":{"type":"function_executed"}}`,
		},
		{
			name: "app_rate_limited",
			body: `{"token":"x","team_id":"T1","type":"app_rate_limited","minute_rate_limited":1518467820}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			d := NewDispatcher(testSigningSecret)
			d.Event("app_mention", func(context.Context, domain.Workspace, slackevents.EventsAPIInnerEvent) error {
				called = true
				return nil
			})
			w := httptest.NewRecorder()

			d.ServeHTTP(w, signedRequest(t, "application/json", tt.body))

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d (body %q)", w.Code, http.StatusOK, w.Body.String())
			}
			if called {
				t.Error("listener was called")
			}
		})
	}
}

func TestDispatcherMalformedEvent(t *testing.T) {
	d := NewDispatcher(testSigningSecret)
	w := httptest.NewRecorder()

	d.ServeHTTP(w, signedRequest(t, "application/json", `{"type":"event_callback",`))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func viewSubmission(callbackID string) map[string]any {
	return map[string]any{
		"type":       "view_submission",
		"team":       map[string]any{"id": "T1"},
		"enterprise": map[string]any{"id": "E1"},
		"user":       map[string]any{"id": "U9"},
		"view": map[string]any{
			"id":          "V1",
			"type":        "modal",
			"callback_id": callbackID,
			"state": map[string]any{
				"values": map[string]any{
					"channel":   map[string]any{"id": map[string]any{"type": "channels_select", "selected_channel": "C1"}},
					"receivers": map[string]any{"id": map[string]any{"type": "multi_users_select", "selected_users": []string{"U1", "U2"}}},
					"custom":    map[string]any{"message": map[string]any{"type": "plain_text_input", "value": "Great work!"}},
				},
			},
		},
	}
}

func TestDispatcherViewSubmission(t *testing.T) {
	var (
		gotWS domain.Workspace
		gotCB slack.InteractionCallback
		calls int
	)
	d := NewDispatcher(testSigningSecret)
	d.View("kudos_modal", func(_ context.Context, ws domain.Workspace, cb slack.InteractionCallback, ack service.Ack) error {
		calls++
		gotWS, gotCB = ws, cb
		return ack("ignored for views")
	})

	w := httptest.NewRecorder()
	d.ServeHTTP(w, signedRequest(t, formType, payloadBody(t, viewSubmission("kudos_modal"))))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
	if calls != 1 {
		t.Fatalf("listener calls = %d, want 1", calls)
	}
	if gotWS != (domain.Workspace{EnterpriseID: "E1", TeamID: "T1"}) {
		t.Errorf("workspace = %+v", gotWS)
	}
	if gotCB.User.ID != "U9" {
		t.Errorf("user = %q, want U9", gotCB.User.ID)
	}
}

func TestDispatcherViewSubmissionUnmatched(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{
			name:    "other_callback_id",
			payload: viewSubmission("other_modal"),
		},
		{
			name:    "block_actions",
			payload: map[string]any{"type": "block_actions", "team": map[string]any{"id": "T1"}, "user": map[string]any{"id": "U1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			d := NewDispatcher(testSigningSecret)
			d.View("kudos_modal", func(context.Context, domain.Workspace, slack.InteractionCallback, service.Ack) error {
				called = true
				return nil
			})
			w := httptest.NewRecorder()

			d.ServeHTTP(w, signedRequest(t, formType, payloadBody(t, tt.payload)))

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if called {
				t.Error("listener was called")
			}
		})
	}
}
