package template

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/slack-go/slack"
	"gopkg.in/yaml.v3"

	"kudos-bot/project/service"
)

// kudos モーダルの入力ブロックと action_id
const (
	ChannelBlockID    = "channel"
	ChannelActionID   = "id"
	ReceiversBlockID  = "receivers"
	ReceiversActionID = "id"
	MessageBlockID    = "custom"
	MessageActionID   = "message"
)

//go:embed kudos.json
var defaultKudosModal []byte

// Loader は service.TemplatePort の実装です
// modalPath が空の場合は埋め込みのデフォルト定義を使います
type Loader struct {
	modalPath string
}

// NewLoader はテンプレートローダーを作成します
func NewLoader(modalPath string) *Loader {
	return &Loader{modalPath: modalPath}
}

// KudosModal は kudos モーダル定義を読み込みます（呼び出しごとにファイルを読む）
func (l *Loader) KudosModal(_ context.Context) (slack.ModalViewRequest, error) {
	data := defaultKudosModal
	if l.modalPath != "" {
		b, err := os.ReadFile(l.modalPath)
		if err != nil {
			return slack.ModalViewRequest{}, fmt.Errorf("template: モーダル読み込み失敗 (%s): %w", l.modalPath, err)
		}
		data = b

		if isYAML(l.modalPath) {
			if data, err = yamlToJSON(b); err != nil {
				return slack.ModalViewRequest{}, fmt.Errorf("template: YAML 変換失敗 (%s): %w", l.modalPath, err)
			}
		}
	}

	var view slack.ModalViewRequest
	if err := json.Unmarshal(data, &view); err != nil {
		return slack.ModalViewRequest{}, fmt.Errorf("template: モーダル JSON 解析失敗: %w", err)
	}

	if view.Type != slack.VTModal {
		return slack.ModalViewRequest{}, fmt.Errorf("template: view type が modal ではありません: %q", view.Type)
	}
	if view.CallbackID == "" {
		return slack.ModalViewRequest{}, errors.New("template: callback_id が未設定です")
	}
	// 別の callback_id では送信がどのリスナーにも届かない
	if view.CallbackID != service.KudosModalCallbackID {
		return slack.ModalViewRequest{}, fmt.Errorf("template: callback_id は %q である必要があります: %q", service.KudosModalCallbackID, view.CallbackID)
	}

	return view, nil
}

// Phrases は送信者向け定型文の一覧です
type Phrases struct {
	Success []string `yaml:"success"`
	Error   []string `yaml:"error"`
}

// LoadPhrases は YAML ファイルから定型文を読み込みます
// path が空の場合は空の一覧を返します（呼び出し側でデフォルトを使う）
func LoadPhrases(path string) (Phrases, error) {
	var p Phrases
	if path == "" {
		return p, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("template: 定型文読み込み失敗 (%s): %w", path, err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("template: 定型文 YAML 解析失敗 (%s): %w", path, err)
	}

	return p, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// yamlToJSON は YAML 文書を JSON に変換します
func yamlToJSON(b []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
