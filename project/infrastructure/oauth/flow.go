package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/slack-go/slack"

	"kudos-bot/project/domain"
)

const (
	AuthorizeURL = "https://slack.com/oauth/v2/authorize"

	DefaultStateCookieName = "slack-app-oauth-state"
	DefaultStateExpiration = 10 * time.Minute
)

// コールバック失敗理由
const (
	ReasonAccessDenied   = "access_denied"
	ReasonInvalidBrowser = "invalid_browser"
	ReasonInvalidState   = "invalid_state"
	ReasonMissingCode    = "missing_code"
	ReasonInvalidCode    = "invalid_code"
	ReasonStorageError   = "storage_error"
)

// Settings は OAuth フローの設定です
type Settings struct {
	ClientID        string
	ClientSecret    string
	Scopes          []string
	UserScopes      []string
	RedirectURL     string // 空の場合は Slack アプリ設定の既定値
	StateCookieName string
	StateExpiration time.Duration
}

// Exchanger は認可コードを oauth.v2.access でトークンに交換します
type Exchanger func(ctx context.Context, code, redirectURL string) (*slack.OAuthV2Response, error)

// CallbackError はコールバック処理の失敗理由を表します
// Reason はユーザーに表示してよい値のみ
type CallbackError struct {
	Reason string
	Err    error
}

func (e *CallbackError) Error() string {
	if e.Err == nil {
		return "oauth: " + e.Reason
	}
	return fmt.Sprintf("oauth: %s: %v", e.Reason, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// Flow は Slack の "Add to Slack" インストールフローです
type Flow struct {
	settings      Settings
	states        domain.StateRepository
	installations domain.InstallationRepository
	exchange      Exchanger
	afterInstall  []func(*domain.Installation)
	now           func() time.Time
}

// Option は Flow のオプションです
type Option func(*Flow)

// WithExchanger はコード交換処理を差し替えます
func WithExchanger(e Exchanger) Option {
	return func(f *Flow) { f.exchange = e }
}

// WithAfterInstall はインストール保存後に呼ばれる処理を追加します
func WithAfterInstall(fn func(*domain.Installation)) Option {
	return func(f *Flow) { f.afterInstall = append(f.afterInstall, fn) }
}

// NewFlow は OAuth フローを作成します
func NewFlow(s Settings, states domain.StateRepository, installations domain.InstallationRepository, opts ...Option) *Flow {
	if s.StateCookieName == "" {
		s.StateCookieName = DefaultStateCookieName
	}
	if s.StateExpiration <= 0 {
		s.StateExpiration = DefaultStateExpiration
	}

	f := &Flow{
		settings:      s,
		states:        states,
		installations: installations,
		now:           time.Now,
	}
	f.exchange = SlackExchanger(s.ClientID, s.ClientSecret, &http.Client{Timeout: 10 * time.Second})

	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SlackExchanger は slack-go の oauth.v2.access 呼び出しを使う Exchanger です
func SlackExchanger(clientID, clientSecret string, httpClient *http.Client) Exchanger {
	return func(ctx context.Context, code, redirectURL string) (*slack.OAuthV2Response, error) {
		return slack.GetOAuthV2ResponseContext(ctx, httpClient, clientID, clientSecret, code, redirectURL)
	}
}

// CookieName は state を保持する Cookie 名を返します
func (f *Flow) CookieName() string {
	return f.settings.StateCookieName
}

// IssueNewState は新しい state を発行して保存します
func (f *Flow) IssueNewState(ctx context.Context) (string, error) {
	s := domain.OAuthState{
		Value:    uuid.NewString(),
		ExpireAt: f.now().Add(f.settings.StateExpiration).Unix(),
	}
	if err := f.states.Issue(ctx, s); err != nil {
		return "", fmt.Errorf("oauth: state 発行失敗: %w", err)
	}
	return s.Value, nil
}

// BuildAuthorizeURL は state を埋め込んだ Slack 認可 URL を返します
func (f *Flow) BuildAuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("state", state)
	q.Set("client_id", f.settings.ClientID)
	q.Set("scope", strings.Join(f.settings.Scopes, ","))
	q.Set("user_scope", strings.Join(f.settings.UserScopes, ","))
	if f.settings.RedirectURL != "" {
		q.Set("redirect_uri", f.settings.RedirectURL)
	}
	return AuthorizeURL + "?" + q.Encode()
}

// StateCookie はブラウザに state を結びつける Cookie を返します
func (f *Flow) StateCookie(state string) *http.Cookie {
	return &http.Cookie{
		Name:     f.settings.StateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(f.settings.StateExpiration.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearStateCookie は state Cookie を削除する Cookie を返します
func (f *Flow) ClearStateCookie() *http.Cookie {
	return &http.Cookie{
		Name:     f.settings.StateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
	}
}

// HandleCallback は OAuth リダイレクトを処理し、インストール情報を保存します
// 失敗時は *CallbackError を返します
func (f *Flow) HandleCallback(ctx context.Context, query url.Values, cookieState string) (*domain.Installation, error) {
	if reason := query.Get("error"); reason != "" {
		return nil, &CallbackError{Reason: reason}
	}

	state := query.Get("state")
	if state == "" || cookieState == "" || state != cookieState {
		return nil, &CallbackError{Reason: ReasonInvalidBrowser}
	}
	if err := f.states.Consume(ctx, state); err != nil {
		if errors.Is(err, domain.ErrStateInvalid) {
			return nil, &CallbackError{Reason: ReasonInvalidState, Err: err}
		}
		return nil, &CallbackError{Reason: ReasonStorageError, Err: err}
	}

	code := query.Get("code")
	if code == "" {
		return nil, &CallbackError{Reason: ReasonMissingCode}
	}

	resp, err := f.exchange(ctx, code, f.settings.RedirectURL)
	if err != nil {
		return nil, &CallbackError{Reason: ReasonInvalidCode, Err: err}
	}

	inst := installationFrom(resp, f.now())
	if err := f.installations.Save(ctx, inst); err != nil {
		return nil, &CallbackError{Reason: ReasonStorageError, Err: err}
	}

	for _, fn := range f.afterInstall {
		fn(inst)
	}
	return inst, nil
}

// installationFrom は oauth.v2.access のレスポンスをインストール情報に変換します
// 組織全体インストールのレスポンスは team を持たず enterprise だけを持ちます
func installationFrom(resp *slack.OAuthV2Response, now time.Time) *domain.Installation {
	return &domain.Installation{
		AppID:               resp.AppID,
		EnterpriseID:        resp.Enterprise.ID,
		EnterpriseName:      resp.Enterprise.Name,
		TeamID:              resp.Team.ID,
		TeamName:            resp.Team.Name,
		BotToken:            resp.AccessToken,
		BotUserID:           resp.BotUserID,
		BotScopes:           ParseScopes(resp.Scope),
		UserID:              resp.AuthedUser.ID,
		UserToken:           resp.AuthedUser.AccessToken,
		UserScopes:          ParseScopes(resp.AuthedUser.Scope),
		TokenType:           resp.TokenType,
		IsEnterpriseInstall: resp.Team.ID == "" && resp.Enterprise.ID != "",
		InstalledAt:         now.Unix(),
	}
}

// ParseScopes はカンマまたは空白区切りのスコープ一覧を分割します
func ParseScopes(s string) []string {
	scopes := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(scopes) == 0 {
		return nil
	}
	return scopes
}
