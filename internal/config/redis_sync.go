package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	redisConfigKey     = "warnlist:config:settings"
	redisConfigChannel = "warnlist:config:updates"
	redisOpTimeout     = 5 * time.Second
)

// settingsSync shares the active settings between warnlist instances through
// one Redis key and one pub/sub channel.
type settingsSync struct {
	mu     sync.RWMutex
	client redis.UniversalClient
	cancel context.CancelFunc
}

var sharedSettings settingsSync

// EnableRedisSynchronization shares settings between instances. Settings already
// stored in Redis win over the local file; otherwise the local settings are published.
func EnableRedisSynchronization(ctx context.Context, client redis.UniversalClient) {
	if client == nil {
		return
	}

	syncCtx, cancel := context.WithCancel(ctx)
	sharedSettings.mu.Lock()
	if sharedSettings.client != nil {
		sharedSettings.mu.Unlock()
		cancel()
		return
	}
	sharedSettings.client = client
	sharedSettings.cancel = cancel
	sharedSettings.mu.Unlock()

	found, err := sharedSettings.adoptStored(syncCtx)
	switch {
	case err != nil:
		log.Error("Settings sync: stored settings ignored", "error", err)
	case found:
		log.Info("Settings adopted from redis")
	}
	if !found {
		if err := publishSettings(GetConfig()); err != nil {
			log.Error("Settings sync: publish failed", "error", err)
		}
	}

	go sharedSettings.watch(syncCtx)
}

// DisableRedisSynchronization stops the subscription started by EnableRedisSynchronization.
func DisableRedisSynchronization() {
	sharedSettings.mu.Lock()
	defer sharedSettings.mu.Unlock()

	if sharedSettings.cancel != nil {
		sharedSettings.cancel()
	}
	sharedSettings.client = nil
	sharedSettings.cancel = nil
}

func (s *settingsSync) adoptStored(ctx context.Context) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	payload, err := s.client.Get(opCtx, redisConfigKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, applyRemote(payload)
}

func (s *settingsSync) watch(ctx context.Context) {
	sub := s.client.Subscribe(ctx, redisConfigChannel)
	defer sub.Close()

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
			return
		}
		if err != nil {
			log.Warn("Settings sync: subscription interrupted", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if err := applyRemote([]byte(msg.Payload)); err != nil {
			log.Error("Settings sync: remote update rejected", "error", err)
		}
	}
}

func applyRemote(payload []byte) error {
	var cfg Config
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return fmt.Errorf("decode shared settings: %w", err)
	}
	return applyConfigUpdate(cfg, configUpdateOptions{persistToFile: true, source: "redis"})
}

func publishSettings(cfg Config) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return broadcastConfigUpdate(payload)
}

// broadcastConfigUpdate stores payload as the shared settings and announces it.
// It is a no-op while synchronization is disabled.
func broadcastConfigUpdate(payload []byte) error {
	sharedSettings.mu.RLock()
	client := sharedSettings.client
	sharedSettings.mu.RUnlock()
	if client == nil || len(payload) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisConfigKey, payload, 0)
		pipe.Publish(ctx, redisConfigChannel, payload)
		return nil
	})
	return err
}
