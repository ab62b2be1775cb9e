package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"stockledger/internal/infrastructure/storage/postgres/rule_repo"
	"stockledger/pkg/logger"
)

// RulesChannel is the NOTIFY channel raised when sys_business_rules changes.
const RulesChannel = rule_repo.NotifyChannel

// Reloader reloads configuration after a change notification.
type Reloader interface {
	Reload(ctx context.Context) error
}

// InvalidationListener is called after each handled notification.
type InvalidationListener func(channel string, payload string)

// RulesListener keeps every process's rule configuration in sync by
// listening for PostgreSQL NOTIFY events and reloading on each one.
type RulesListener struct {
	pool     *pgxpool.Pool
	reloader Reloader

	listeners   []InvalidationListener
	listenersMu sync.RWMutex

	// Lifecycle
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewRulesListener creates a listener reloading reloader on every change.
func NewRulesListener(pool *pgxpool.Pool, reloader Reloader) *RulesListener {
	return &RulesListener{pool: pool, reloader: reloader}
}

// Start loads the current rules and begins listening.
func (l *RulesListener) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	l.lifecycleMu.Lock()
	if l.started {
		l.lifecycleMu.Unlock()
		return nil
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.started = true
	l.lifecycleMu.Unlock()

	if err := l.reloader.Reload(l.ctx); err != nil {
		l.Stop()
		return err
	}

	l.wg.Add(1)
	go l.listenLoop()
	logger.Info(l.ctx, "rules listener started")
	return nil
}

// Stop gracefully stops the listener.
func (l *RulesListener) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	cancel := l.cancel
	l.started = false
	l.cancel = nil
	l.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
	logger.Info(context.Background(), "rules listener stopped")
}

// OnInvalidation registers a callback run after each reload.
func (l *RulesListener) OnInvalidation(listener InvalidationListener) {
	l.listenersMu.Lock()
	l.listeners = append(l.listeners, listener)
	l.listenersMu.Unlock()
}

func (l *RulesListener) listenLoop() {
	defer l.wg.Done()

	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		// Acquire dedicated connection for LISTEN
		conn, err := l.pool.Acquire(l.ctx)
		if err != nil {
			logger.Error(l.ctx, "failed to acquire connection for LISTEN", "error", err)
			time.Sleep(time.Second)
			continue
		}

		if _, err := conn.Exec(l.ctx, "LISTEN "+RulesChannel); err != nil {
			logger.Error(l.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			time.Sleep(time.Second)
			continue
		}

		// Notifications may have been missed while reconnecting.
		if err := l.reloader.Reload(l.ctx); err != nil {
			logger.Error(l.ctx, "failed to reload rules", "error", err)
		}

		l.waitForNotifications(conn)
		conn.Release()
	}
}

func (l *RulesListener) waitForNotifications(conn *pgxpool.Conn) {
	for {
		select {
		case <-l.ctx.Done():
			return
		default:
		}

		// Wait with timeout for graceful shutdown
		ctx, cancel := context.WithTimeout(l.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			if conn.Conn().IsClosed() {
				return
			}
			continue
		}

		l.handleNotification(notification.Channel, notification.Payload)
	}
}

func (l *RulesListener) handleNotification(channel, payload string) {
	logger.Debug(l.ctx, "received notification", "channel", channel, "payload", payload)

	if channel == RulesChannel {
		if err := l.reloader.Reload(l.ctx); err != nil {
			logger.Error(l.ctx, "failed to reload rules", "error", err)
		}
	}

	l.listenersMu.RLock()
	defer l.listenersMu.RUnlock()
	for _, listener := range l.listeners {
		func(fn InvalidationListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(l.ctx, "listener panic recovered", "channel", channel, "panic", r)
				}
			}()
			fn(channel, payload)
		}(listener)
	}
}
