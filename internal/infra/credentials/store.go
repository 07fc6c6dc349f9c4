// Package credentials reads and rotates provider API keys stored in the
// database. The environment variable takes precedence; this store is the
// fallback so keys can be rotated without redeploying the worker.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"sona/internal/infra"
	"sona/internal/sqlinline"
)

const (
	ProviderStableAudio = "stable_audio"
)

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

func (s *Store) StableAudioAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderStableAudio)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetStableAudioAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("stable audio api key is required")
	}
	return s.upsert(ctx, ProviderStableAudio, key, nil)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
