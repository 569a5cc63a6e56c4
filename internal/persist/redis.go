package persist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"casetree/internal/logger"
	"casetree/pkg/models"
)

// RedisConfig configures the Redis-backed adapter.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisAdapter keeps each slot in a string key and announces writes on a
// companion pub/sub channel. Every adapter instance carries an origin id
// so a watcher can tell its own writes from another context's.
type RedisAdapter struct {
	client *redis.Client
	prefix string
	origin string
}

// NewRedisAdapter constructs a Redis-backed adapter and verifies the
// connection.
func NewRedisAdapter(cfg RedisConfig) (*RedisAdapter, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "casetree"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis store: %w", err)
	}

	return &RedisAdapter{
		client: client,
		prefix: strings.TrimSpace(cfg.KeyPrefix),
		origin: uuid.NewString(),
	}, nil
}

// SaveForest writes the forest slot and announces the change.
func (a *RedisAdapter) SaveForest(forest models.Forest) error {
	data, err := EncodeForest(forest)
	if err != nil {
		return fmt.Errorf("encode forest: %w", err)
	}
	return a.write(SlotForest, string(data))
}

// LoadForest reads the forest slot. Missing or malformed data loads as
// an empty forest.
func (a *RedisAdapter) LoadForest() (models.Forest, error) {
	data, ok, err := a.read(SlotForest)
	if err != nil || !ok {
		return models.Forest{}, err
	}
	forest, err := DecodeForest(data)
	if err != nil {
		logger.Warnf("Treating malformed forest slot as empty: %v", err)
		return models.Forest{}, nil
	}
	return forest, nil
}

// SaveSignals writes the signal-map slot and announces the change.
func (a *RedisAdapter) SaveSignals(m models.SignalMap) error {
	data, err := EncodeSignals(m)
	if err != nil {
		return fmt.Errorf("encode signals: %w", err)
	}
	return a.write(SlotSignals, string(data))
}

// LoadSignals reads the signal-map slot. Missing or malformed data loads
// as an empty map.
func (a *RedisAdapter) LoadSignals() (models.SignalMap, error) {
	data, ok, err := a.read(SlotSignals)
	if err != nil || !ok {
		return models.SignalMap{}, err
	}
	m, err := DecodeSignals(data)
	if err != nil {
		logger.Warnf("Treating malformed signal slot as empty: %v", err)
		return models.SignalMap{}, nil
	}
	return m, nil
}

// SaveSelection writes the selected-item slot and announces the change.
func (a *RedisAdapter) SaveSelection(id string) error {
	return a.write(SlotSelection, id)
}

// LoadSelection reads the selected-item slot.
func (a *RedisAdapter) LoadSelection() (string, error) {
	data, ok, err := a.read(SlotSelection)
	if err != nil || !ok {
		return "", err
	}
	return string(data), nil
}

// Watch subscribes to the change channel and forwards slot names written
// by other contexts until ctx is cancelled.
func (a *RedisAdapter) Watch(ctx context.Context, onChange func(Slot)) error {
	sub := a.client.Subscribe(ctx, a.changeChannel())
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			origin, slot, valid := decodeChange(msg.Payload)
			if !valid {
				logger.Warnf("Ignoring malformed change notification: %q", msg.Payload)
				continue
			}
			if origin == a.origin {
				continue
			}
			onChange(slot)
		}
	}
}

// Close releases the Redis client.
func (a *RedisAdapter) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}

func (a *RedisAdapter) write(slot Slot, payload string) error {
	ctx := context.Background()
	pipe := a.client.Pipeline()
	pipe.Set(ctx, a.slotKey(slot), payload, 0)
	pipe.Publish(ctx, a.changeChannel(), encodeChange(a.origin, slot))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write slot %s: %w", slot, err)
	}
	return nil
}

func (a *RedisAdapter) read(slot Slot) ([]byte, bool, error) {
	res, err := a.client.Get(context.Background(), a.slotKey(slot)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read slot %s: %w", slot, err)
	}
	return []byte(res), true, nil
}

func (a *RedisAdapter) slotKey(slot Slot) string {
	return a.prefix + ":slot:" + string(slot)
}

func (a *RedisAdapter) changeChannel() string {
	return a.prefix + ":changes"
}

func encodeChange(origin string, slot Slot) string {
	return origin + "|" + string(slot)
}

func decodeChange(payload string) (string, Slot, bool) {
	parts := strings.SplitN(payload, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], Slot(parts[1]), true
}
