package pollstate

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/evidenceledger/oadrvtn/internal/errl"
	"github.com/evidenceledger/oadrvtn/internal/models"
)

// drainScript returns a list and deletes it in one step.
var drainScript = redis.NewScript(`
local items = redis.call("LRANGE", KEYS[1], 0, -1)
redis.call("DEL", KEYS[1])
return items
`)

// Redis is a Store shared by several VTN instances.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to a redis server. Keys are namespaced by prefix.
func NewRedis(addr, password string, db int, prefix string) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if prefix == "" {
		prefix = "oadrvtn"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Redis{client: client, prefix: prefix}, nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return errl.Errorf("failed to reach redis: %w", err)
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) eventsKey(venID string) string {
	return r.prefix + ":events_updated:" + venID
}

func (r *Redis) requestsKey(venID string) string {
	return r.prefix + ":report_requests:" + venID
}

func (r *Redis) MarkEventsUpdated(ctx context.Context, venID string) error {
	if err := r.client.Set(ctx, r.eventsKey(venID), "1", 0).Err(); err != nil {
		return errl.Errorf("failed to mark events updated: %w", err)
	}
	return nil
}

func (r *Redis) TakeEventsUpdated(ctx context.Context, venID string) (bool, error) {
	_, err := r.client.GetDel(ctx, r.eventsKey(venID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errl.Errorf("failed to take events flag: %w", err)
	}
	return true, nil
}

func (r *Redis) PushReportRequest(ctx context.Context, venID string, req models.ReportRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return errl.Errorf("failed to encode report request: %w", err)
	}
	if err := r.client.RPush(ctx, r.requestsKey(venID), data).Err(); err != nil {
		return errl.Errorf("failed to queue report request: %w", err)
	}
	return nil
}

func (r *Redis) TakeReportRequests(ctx context.Context, venID string) ([]models.ReportRequest, error) {
	items, err := drainScript.Run(ctx, r.client, []string{r.requestsKey(venID)}).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, errl.Errorf("failed to take report requests: %w", err)
	}

	var reqs []models.ReportRequest
	for _, item := range items {
		var req models.ReportRequest
		if err := json.Unmarshal([]byte(item), &req); err != nil {
			return nil, errl.Errorf("failed to decode report request: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
