package template

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/slack-go/slack"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestKudosModalDefault(t *testing.T) {
	view, err := NewLoader("").KudosModal(t.Context())
	if err != nil {
		t.Fatalf("KudosModal() error = %v", err)
	}

	if view.CallbackID != "kudos_modal" {
		t.Errorf("CallbackID = %q, want kudos_modal", view.CallbackID)
	}
	if len(view.Blocks.BlockSet) != 3 {
		t.Fatalf("len(blocks) = %d, want 3", len(view.Blocks.BlockSet))
	}

	wantIDs := []string{ChannelBlockID, ReceiversBlockID, MessageBlockID}
	for i, b := range view.Blocks.BlockSet {
		in, ok := b.(*slack.InputBlock)
		if !ok {
			t.Fatalf("blocks[%d] type = %T, want *slack.InputBlock", i, b)
		}
		if in.BlockID != wantIDs[i] {
			t.Errorf("blocks[%d] block_id = %q, want %q", i, in.BlockID, wantIDs[i])
		}
	}
}

func TestKudosModalFromFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr bool
	}{
		{
			name:    "json",
			file:    "modal.json",
			content: `{"type":"modal","callback_id":"kudos_modal","title":{"type":"plain_text","text":"K"},"blocks":[]}`,
		},
		{
			name: "yaml",
			file: "modal.yaml",
			content: `type: modal
callback_id: kudos_modal
title:
  type: plain_text
  text: K
blocks:
  - type: divider
`,
		},
		{
			name:    "not_a_modal",
			file:    "home.json",
			content: `{"type":"home","callback_id":"x"}`,
			wantErr: true,
		},
		{
			name:    "missing_callback_id",
			file:    "modal.json",
			content: `{"type":"modal"}`,
			wantErr: true,
		},
		{
			name:    "other_callback_id",
			file:    "modal.json",
			content: `{"type":"modal","callback_id":"feedback_modal"}`,
			wantErr: true,
		},
		{
			name:    "invalid_json",
			file:    "modal.json",
			content: `{`,
			wantErr: true,
		},
		{
			name:    "invalid_yaml",
			file:    "modal.yml",
			content: "type: [modal",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := NewLoader(writeFile(t, tt.file, tt.content)).KudosModal(t.Context())
			if (err != nil) != tt.wantErr {
				t.Fatalf("KudosModal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && view.CallbackID != "kudos_modal" {
				t.Errorf("CallbackID = %q", view.CallbackID)
			}
		})
	}
}

func TestKudosModalMissingFile(t *testing.T) {
	if _, err := NewLoader(filepath.Join(t.TempDir(), "nope.json")).KudosModal(t.Context()); err == nil {
		t.Error("KudosModal() error = nil, want error")
	}
}

func TestKudosModalReloadedEachCall(t *testing.T) {
	path := writeFile(t, "modal.json", `{"type":"modal","callback_id":"kudos_modal","private_metadata":"first"}`)
	l := NewLoader(path)

	if v, _ := l.KudosModal(t.Context()); v.PrivateMetadata != "first" {
		t.Fatalf("PrivateMetadata = %q, want first", v.PrivateMetadata)
	}
	if err := os.WriteFile(path, []byte(`{"type":"modal","callback_id":"kudos_modal","private_metadata":"second"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if v, _ := l.KudosModal(t.Context()); v.PrivateMetadata != "second" {
		t.Errorf("PrivateMetadata = %q, want second", v.PrivateMetadata)
	}
}

func TestLoadPhrases(t *testing.T) {
	p, err := LoadPhrases("")
	if err != nil || len(p.Success)+len(p.Error) != 0 {
		t.Fatalf("LoadPhrases(\"\") = %+v, %v", p, err)
	}

	path := writeFile(t, "phrases.yaml", "success:\n  - yay\n  - woo\nerror:\n  - oops\n")
	p, err = LoadPhrases(path)
	if err != nil {
		t.Fatalf("LoadPhrases() error = %v", err)
	}
	want := Phrases{Success: []string{"yay", "woo"}, Error: []string{"oops"}}
	if !reflect.DeepEqual(p, want) {
		t.Errorf("LoadPhrases() = %+v, want %+v", p, want)
	}

	if _, err := LoadPhrases(writeFile(t, "bad.yaml", "success: [")); err == nil {
		t.Error("LoadPhrases() invalid YAML error = nil")
	}
}
