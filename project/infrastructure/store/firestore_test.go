package store

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"kudos-bot/project/domain"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "not_found", err: status.Error(codes.NotFound, "no doc"), want: true},
		{name: "wrapped_not_found", err: fmt.Errorf("get: %w", status.Error(codes.NotFound, "no doc")), want: true},
		{name: "permission_denied", err: status.Error(codes.PermissionDenied, "nope")},
		{name: "plain", err: errors.New("boom")},
		{name: "nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNotFound(tt.err); got != tt.want {
				t.Errorf("isNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSecretName(t *testing.T) {
	repo := &FirestoreRepo{tokenPrefix: "slack-token-"}

	tests := []struct {
		name string
		ws   domain.Workspace
		kind string
		want string
	}{
		{name: "team", ws: domain.Workspace{TeamID: "T1"}, kind: "bot", want: "slack-token--_T1_bot"},
		{name: "enterprise_team", ws: domain.Workspace{EnterpriseID: "E1", TeamID: "T1"}, kind: "user", want: "slack-token-E1_T1_user"},
		{name: "org_wide", ws: domain.Workspace{EnterpriseID: "E1"}, kind: "bot", want: "slack-token-E1_-_bot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := repo.secretName(tt.ws.Key(), tt.kind); got != tt.want {
				t.Errorf("secretName() = %q, want %q", got, tt.want)
			}
		})
	}
}
