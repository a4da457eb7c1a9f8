package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/apperrors"
)

const (
	connectKeyPrefix = "oauth:connect:"
	// ConnectTTL bounds how long a connect link stays usable.
	ConnectTTL = 10 * time.Minute
)

// ConnectRequest ties a consent round trip to the organization it is for.
type ConnectRequest struct {
	OrganizationID uint `json:"organization_id"`
	UserID         uint `json:"user_id"`
}

// ConnectStore issues single use OAuth state values.
type ConnectStore interface {
	Issue(ctx context.Context, req ConnectRequest) (string, error)
	Consume(ctx context.Context, state string) (ConnectRequest, error)
}

type RedisConnectStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisConnectStore(client *redis.Client) *RedisConnectStore {
	return &RedisConnectStore{client: client, ttl: ConnectTTL}
}

func (s *RedisConnectStore) Issue(ctx context.Context, req ConnectRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	state := uuid.NewString()
	if err := s.client.Set(ctx, connectKeyPrefix+state, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store connect state: %w", err)
	}
	return state, nil
}

// Consume returns the request for state and forgets it.
func (s *RedisConnectStore) Consume(ctx context.Context, state string) (ConnectRequest, error) {
	var req ConnectRequest
	if state == "" {
		return req, apperrors.Validation("missing oauth state")
	}
	payload, err := s.client.GetDel(ctx, connectKeyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return req, apperrors.Validation("unknown or expired oauth state")
	}
	if err != nil {
		return req, fmt.Errorf("load connect state: %w", err)
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("decode connect state: %w", err)
	}
	return req, nil
}
