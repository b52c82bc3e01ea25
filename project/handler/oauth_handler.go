package handler

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"kudos-bot/project/domain"
	"kudos-bot/project/infrastructure/oauth"
)

// OAuthFlow はインストールフローのポートです
type OAuthFlow interface {
	CookieName() string
	IssueNewState(ctx context.Context) (string, error)
	BuildAuthorizeURL(state string) string
	StateCookie(state string) *http.Cookie
	ClearStateCookie() *http.Cookie
	HandleCallback(ctx context.Context, query url.Values, cookieState string) (*domain.Installation, error)
}

// InstallHandler は GET /slack/install を処理します
// state を発行して Cookie に保存し、Slack の認可画面へリダイレクトします
type InstallHandler struct {
	flow OAuthFlow
}

func NewInstallHandler(flow OAuthFlow) *InstallHandler {
	return &InstallHandler{flow: flow}
}

func (h *InstallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := zerolog.Ctx(r.Context())

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state, err := h.flow.IssueNewState(r.Context())
	if err != nil {
		l.Err(err).Msg("state 発行失敗")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, h.flow.StateCookie(state))
	http.Redirect(w, r, h.flow.BuildAuthorizeURL(state), http.StatusFound)
}

// OAuthRedirectHandler は GET /slack/oauth_redirect を処理します
// 失敗ページには installPath への再試行リンクを表示します
type OAuthRedirectHandler struct {
	flow        OAuthFlow
	installPath string
}

func NewOAuthRedirectHandler(flow OAuthFlow, installPath string) *OAuthRedirectHandler {
	return &OAuthRedirectHandler{flow: flow, installPath: installPath}
}

func (h *OAuthRedirectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := zerolog.Ctx(r.Context())

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cookieState string
	if c, err := r.Cookie(h.flow.CookieName()); err == nil {
		cookieState = c.Value
	}

	inst, err := h.flow.HandleCallback(r.Context(), r.URL.Query(), cookieState)

	// 成否にかかわらず state Cookie は破棄する
	http.SetCookie(w, h.flow.ClearStateCookie())

	if err != nil {
		reason, status := "internal_error", http.StatusInternalServerError
		var cbErr *oauth.CallbackError
		if errors.As(err, &cbErr) {
			reason = cbErr.Reason
			if reason != oauth.ReasonStorageError {
				status = http.StatusBadRequest
			}
		}
		l.Warn().Err(err).Str("reason", reason).Msg("インストール失敗")
		renderPage(w, l, status, failurePage, map[string]any{"Reason": reason, "InstallPath": h.installPath})
		return
	}

	l.Info().Str("workspace", inst.Workspace().Key()).Str("app_id", inst.AppID).Msg("インストール完了")
	// slack:// スキームは html/template の URL フィルタを通らないため template.URL で渡す
	renderPage(w, l, http.StatusOK, successPage, map[string]any{"AppURL": template.URL(slackAppURL(inst))})
}

// slackAppURL はインストール完了後に Slack クライアントでアプリを開く URL です
func slackAppURL(inst *domain.Installation) string {
	q := url.Values{}
	q.Set("team", inst.TeamID)
	if inst.IsEnterpriseInstall {
		q.Set("team", inst.EnterpriseID)
	}
	q.Set("id", inst.AppID)
	return "slack://app?" + q.Encode()
}

var (
	successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Installation completed</title></head>
<body>
<h2>Thank you!</h2>
<p>Redirecting to the Slack App... click <a href="{{.AppURL}}">here</a>. If you use the browser version of Slack, click this link instead.</p>
</body>
</html>
`))

	failurePage = template.Must(template.New("failure").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Installation failed</title></head>
<body>
<h2>Oops, Something Went Wrong!</h2>
<p>Please try again from <a href="{{.InstallPath}}">here</a> or contact the app owner (reason: {{.Reason}})</p>
</body>
</html>
`))
)

func renderPage(w http.ResponseWriter, l *zerolog.Logger, status int, page *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := page.Execute(w, data); err != nil {
		l.Err(err).Str("page", page.Name()).Msg("ページ描画失敗")
	}
}
