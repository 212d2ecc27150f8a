package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/hilthontt/reelsync/internal/domain"
	"github.com/redis/go-redis/v9"
)

type redisPresenceRepository struct {
	client *redis.Client
	buffer int
}

func NewRedisPresenceRepository(client *redis.Client, buffer int) domain.PresenceStore {
	if buffer <= 0 {
		buffer = 64
	}
	return &redisPresenceRepository{
		client: client,
		buffer: buffer,
	}
}

// presenceKeyTTL bounds how long a project's hash outlives its last upsert.
const presenceKeyTTL = 24 * time.Hour

// pruneStale deletes each field only while it still holds the value that was
// read as stale, so a concurrent upsert is never lost.
var pruneStale = redis.NewScript(`
local removed = 0
for i = 1, #ARGV, 2 do
	if redis.call("HGET", KEYS[1], ARGV[i]) == ARGV[i + 1] then
		removed = removed + redis.call("HDEL", KEYS[1], ARGV[i])
	end
end
return removed
`)

func presenceKey(projectID string) string {
	return fmt.Sprintf("project:%s:presence", projectID)
}

func presenceChannel(projectID string) string {
	return fmt.Sprintf("project:%s:presence:events", projectID)
}

// Upsert writes the hash field, refreshes the key's TTL and announces the
// record in one MULTI/EXEC.
func (r *redisPresenceRepository) Upsert(ctx context.Context, record *domain.PresenceRecord) error {
	if record == nil || record.ProjectID == "" || record.ActorID == "" {
		return domain.ErrInvalidInput
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding presence: %w", err)
	}
	event, err := json.Marshal(domain.PresenceEvent{Kind: domain.PresenceUpserted, Record: *record})
	if err != nil {
		return fmt.Errorf("encoding presence event: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, presenceKey(record.ProjectID), record.ActorID, data)
		pipe.Expire(ctx, presenceKey(record.ProjectID), presenceKeyTTL)
		pipe.Publish(ctx, presenceChannel(record.ProjectID), event)
		return nil
	})
	return translateRedisErr("upserting presence", err)
}

func (r *redisPresenceRepository) Delete(ctx context.Context, projectID, actorID string) error {
	if projectID == "" || actorID == "" {
		return domain.ErrInvalidInput
	}

	event, err := json.Marshal(domain.PresenceEvent{
		Kind:   domain.PresenceDeleted,
		Record: domain.PresenceRecord{ProjectID: projectID, ActorID: actorID},
	})
	if err != nil {
		return fmt.Errorf("encoding presence event: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, presenceKey(projectID), actorID)
		pipe.Publish(ctx, presenceChannel(projectID), event)
		return nil
	})
	return translateRedisErr("deleting presence", err)
}

func (r *redisPresenceRepository) ListSince(ctx context.Context, projectID string, since time.Time) ([]domain.PresenceRecord, error) {
	if projectID == "" {
		return nil, domain.ErrInvalidInput
	}

	fields, err := r.client.HGetAll(ctx, presenceKey(projectID)).Result()
	if err != nil {
		return nil, translateRedisErr("listing presence", err)
	}

	out := make([]domain.PresenceRecord, 0, len(fields))
	var stale []any
	for actorID, data := range fields {
		var rec domain.PresenceRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		if rec.LastSeen.Before(since) {
			stale = append(stale, actorID, data)
			continue
		}
		out = append(out, rec)
	}

	if len(stale) > 0 {
		if err := r.prune(ctx, projectID, stale); err != nil {
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ActorID < out[j].ActorID })
	return out, nil
}

// prune drops fields that fell out of the staleness window. Actors that
// close a tab without a leave message would otherwise stay in the hash.
func (r *redisPresenceRepository) prune(ctx context.Context, projectID string, pairs []any) error {
	err := pruneStale.Run(ctx, r.client, []string{presenceKey(projectID)}, pairs...).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return translateRedisErr("pruning presence", err)
	}
	return nil
}

func (r *redisPresenceRepository) Subscribe(ctx context.Context, projectID string) (domain.PresenceSubscription, error) {
	if projectID == "" {
		return nil, domain.ErrInvalidInput
	}

	pubsub := r.client.Subscribe(ctx, presenceChannel(projectID))
	// wait for the subscription confirmation so no event published after
	// Subscribe returns can be missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, translateRedisErr("subscribing to presence", err)
	}

	sub := &redisPresenceSubscription{
		pubsub: pubsub,
		ch:     make(chan domain.PresenceEvent, r.buffer),
		done:   make(chan struct{}),
	}
	go sub.pump(ctx)

	return sub, nil
}

type redisPresenceSubscription struct {
	pubsub *redis.PubSub
	ch     chan domain.PresenceEvent
	done   chan struct{}
	once   sync.Once
}

func (s *redisPresenceSubscription) pump(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)

	messages := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.pubsub.Close()
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event domain.PresenceEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			select {
			case s.ch <- event:
			case <-ctx.Done():
				_ = s.pubsub.Close()
				return
			}
		}
	}
}

func (s *redisPresenceSubscription) Events() <-chan domain.PresenceEvent {
	return s.ch
}

func (s *redisPresenceSubscription) Close() error {
	var err error
	s.once.Do(func() {
		// closing the pubsub closes its Go channel, which ends pump
		err = s.pubsub.Close()
		<-s.done
	})
	return err
}

func translateRedisErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
