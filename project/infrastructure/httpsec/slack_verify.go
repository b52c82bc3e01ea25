package httpsec

import (
	"fmt"
	"net/http"

	"github.com/slack-go/slack"
)

const (
	SignatureHeader = "X-Slack-Signature"
	TimestampHeader = "X-Slack-Request-Timestamp"
)

// VerifySlackSignature は Slack からのリクエストの署名を検証します
// X-Slack-Signature と X-Slack-Request-Timestamp ヘッダを確認し（5分以内）、
// 改ざんやリプレイ攻撃から保護します
func VerifySlackSignature(signingSecret string, header http.Header, body []byte) error {
	if signingSecret == "" {
		return fmt.Errorf("httpsec: signing secret が未設定です")
	}

	sv, err := slack.NewSecretsVerifier(header, signingSecret)
	if err != nil {
		return fmt.Errorf("httpsec: 署名ヘッダ不正: %w", err)
	}
	if _, err := sv.Write(body); err != nil {
		return fmt.Errorf("httpsec: 署名計算失敗: %w", err)
	}
	if err := sv.Ensure(); err != nil {
		return fmt.Errorf("httpsec: 署名不一致: %w", err)
	}

	return nil
}
