package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"medboard/internal/domain"
	"medboard/internal/engine/auth"
	"medboard/internal/events"
	"medboard/internal/repo"
)

const apiKeyPrefix = "mbk_"

// CreateAPIKey issues a key for email. The secret is returned once; only
// its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, email, name string) (domain.APIKey, string, error) {
	email = auth.NormalizeEmail(email)
	if email == "" {
		return domain.APIKey{}, "", invalid("email is required")
	}
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return domain.APIKey{}, "", err
	}
	secret := apiKeyPrefix + hex.EncodeToString(raw)
	key := domain.APIKey{
		ID:        e.newID(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("insert api key: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.Event{
		Type: events.APIKeyCreated, EntityKind: "api_key", EntityID: key.ID, Actor: email,
		Payload: events.EventPayload{"name": key.Name},
	}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, email string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, auth.NormalizeEmail(email))
}

func (e Engine) DeleteAPIKey(ctx context.Context, email, id string) error {
	return e.Repo.DeleteAPIKey(ctx, auth.NormalizeEmail(email), id)
}

// ResolveAPIKey returns the identity owning secret.
func (e Engine) ResolveAPIKey(ctx context.Context, secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", repo.ErrNotFound
	}
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(secret))
	if err != nil {
		return "", err
	}
	return key.Email, nil
}
