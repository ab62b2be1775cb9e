// Package telemetry provides system-load readings for the performance rule.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cast"

	"stockledger/internal/domain/validation"
)

var (
	_ validation.LoadProvider = (*RedisProvider)(nil)
	_ validation.LoadProvider = (*StaticProvider)(nil)
)

// DefaultKey is the hash the monitoring agent writes.
const DefaultKey = "stockledger:telemetry:load"

// RedisProvider reads the latest load sample from a Redis hash with the
// fields cpu, memory and sampled_at (unix seconds). Samples older than
// MaxAge are treated as unavailable.
type RedisProvider struct {
	client *redis.Client
	key    string
	maxAge time.Duration
	now    func() time.Time
}

// NewRedisProvider creates a provider reading key from client.
func NewRedisProvider(client *redis.Client, key string, maxAge time.Duration) *RedisProvider {
	if key == "" {
		key = DefaultKey
	}
	return &RedisProvider{
		client: client,
		key:    key,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// CurrentLoad returns the latest sample.
func (p *RedisProvider) CurrentLoad(ctx context.Context) (validation.Load, error) {
	fields, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return validation.Load{}, fmt.Errorf("read load sample: %w", err)
	}
	if len(fields) == 0 {
		return validation.Load{}, validation.ErrLoadUnavailable
	}
	return parseSample(fields, p.maxAge, p.now())
}

func parseSample(fields map[string]string, maxAge time.Duration, now time.Time) (validation.Load, error) {
	cpu, err := cast.ToFloat64E(fields["cpu"])
	if err != nil {
		return validation.Load{}, fmt.Errorf("parse cpu: %w", err)
	}
	mem, err := cast.ToFloat64E(fields["memory"])
	if err != nil {
		return validation.Load{}, fmt.Errorf("parse memory: %w", err)
	}

	load := validation.Load{CPUPercent: cpu, MemoryPercent: mem, SampledAt: now}
	if raw, ok := fields["sampled_at"]; ok {
		sec, err := cast.ToInt64E(raw)
		if err != nil {
			return validation.Load{}, fmt.Errorf("parse sampled_at: %w", err)
		}
		load.SampledAt = time.Unix(sec, 0)
	}

	if maxAge > 0 && now.Sub(load.SampledAt) > maxAge {
		return validation.Load{}, fmt.Errorf("%w: sample is %s old", validation.ErrLoadUnavailable, now.Sub(load.SampledAt).Round(time.Second))
	}
	return load, nil
}

// StaticProvider returns a fixed reading. Used in tests and when no
// monitoring backend is configured.
type StaticProvider struct {
	mu    sync.RWMutex
	load  validation.Load
	err   error
	delay time.Duration
}

// NewStaticProvider creates a provider reporting cpu and memory percent.
func NewStaticProvider(cpu, memory float64) *StaticProvider {
	return &StaticProvider{load: validation.Load{CPUPercent: cpu, MemoryPercent: memory}}
}

// Set changes the reported reading.
func (p *StaticProvider) Set(cpu, memory float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.load = validation.Load{CPUPercent: cpu, MemoryPercent: memory}
	p.err = nil
}

// Fail makes every call return err.
func (p *StaticProvider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Delay makes every call block for d or until ctx is done.
func (p *StaticProvider) Delay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// CurrentLoad returns the configured reading.
func (p *StaticProvider) CurrentLoad(ctx context.Context) (validation.Load, error) {
	p.mu.RLock()
	load, err, delay := p.load, p.err, p.delay
	p.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return validation.Load{}, ctx.Err()
		}
	}
	if err != nil {
		return validation.Load{}, err
	}
	load.SampledAt = time.Now()
	return load, nil
}
