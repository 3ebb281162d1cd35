package chain

import (
	"context"
	"sync"
	"time"

	"github.com/anastasiarods/moxie-alerts-bot/internal/logger"
)

// SubscriptionState describes the manager's lifecycle state
type SubscriptionState int

const (
	StateUnsubscribed SubscriptionState = iota
	StateSubscribed
	StateResubscribing
)

// String returns the state name
func (s SubscriptionState) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribed:
		return "subscribed"
	case StateResubscribing:
		return "resubscribing"
	default:
		return "unknown"
	}
}

// Subscriber is the subset of the ws client the manager drives
type Subscriber interface {
	SubscribeLogs(ctx context.Context, address string, topics []string) (string, error)
	Unsubscribe(ctx context.Context, subID string) error
}

// TxHandler processes a single matched transaction hash
type TxHandler func(ctx context.Context, txHash string)

// ManagerConfig holds subscription manager configuration
type ManagerConfig struct {
	ContractAddress string
	Topics          []string
	// WatchdogInterval is the silence threshold after which the
	// subscription is assumed dead and recreated
	WatchdogInterval time.Duration
}

// SubscriptionManager owns the live log subscription. It refreshes
// lastEventAt on every matched log and runs a watchdog that tears down and
// recreates the subscription when no event arrives within the silence
// threshold, which covers transports that go quiet without raising an error.
//
// The mutex only guards state transitions. Subscribe/unsubscribe round trips
// happen with the mutex released: their responses are delivered by the ws
// read loop, which also feeds HandleLog, so blocking on the network while
// holding the lock would stall the very goroutine that has to answer.
type SubscriptionManager struct {
	config  ManagerConfig
	sub     Subscriber
	handler TxHandler
	log     logger.Logger

	mu            sync.Mutex
	state         SubscriptionState
	subID         string
	lastEventAt   time.Time
	watchdog      *time.Timer
	resubscribing bool

	ctx context.Context
	now func() time.Time
}

// NewSubscriptionManager creates a new subscription manager
func NewSubscriptionManager(cfg ManagerConfig, sub Subscriber, handler TxHandler, log logger.Logger) *SubscriptionManager {
	if cfg.WatchdogInterval == 0 {
		cfg.WatchdogInterval = 5 * time.Minute
	}

	return &SubscriptionManager{
		config:  cfg,
		sub:     sub,
		handler: handler,
		log:     log.With(logger.F("component", "subscription-manager")),
		state:   StateUnsubscribed,
		now:     time.Now,
	}
}

// Start establishes the subscription and arms the watchdog
func (m *SubscriptionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	subID, err := m.sub.SubscribeLogs(ctx, m.config.ContractAddress, m.config.Topics)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.subID = subID
	m.state = StateSubscribed
	m.lastEventAt = m.now()
	m.armWatchdogLocked()
	m.mu.Unlock()

	m.log.Info("subscription started",
		logger.F("subscription", subID),
		logger.F("watchdog_interval", m.config.WatchdogInterval),
	)

	return nil
}

// HandleLog records activity and dispatches the transaction without waiting
// for the handler to finish. Logs are processed in every state after Start;
// a delivery during a resubscribe window is still a real transaction.
func (m *SubscriptionManager) HandleLog(event *LogEvent) {
	m.mu.Lock()
	ctx := m.ctx
	if ctx == nil {
		m.mu.Unlock()
		m.log.Debug("log received before start, dropping",
			logger.F("tx_hash", event.TransactionHash),
		)
		return
	}
	m.lastEventAt = m.now()
	m.mu.Unlock()

	m.log.Info("matched log received", logger.F("tx_hash", event.TransactionHash))

	go m.handler(ctx, event.TransactionHash)
}

// OnReconnect recreates the subscription after a transport-level reconnect;
// the server-side subscription id is gone at that point
func (m *SubscriptionManager) OnReconnect() {
	m.mu.Lock()
	if m.state == StateUnsubscribed || m.resubscribing {
		m.mu.Unlock()
		return
	}
	m.state = StateResubscribing
	m.resubscribing = true
	m.subID = ""
	ctx := m.ctx
	m.mu.Unlock()

	m.log.Warn("transport reconnected, recreating subscription")
	m.resubscribe(ctx, "")
}

// Stop cancels the watchdog and the subscription
func (m *SubscriptionManager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
	subID := m.subID
	m.subID = ""
	m.state = StateUnsubscribed
	m.ctx = nil
	m.mu.Unlock()

	var err error
	if subID != "" {
		err = m.sub.Unsubscribe(ctx, subID)
	}

	m.log.Info("subscription stopped")
	return err
}

// State returns the current lifecycle state
func (m *SubscriptionManager) State() SubscriptionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// armWatchdogLocked discards any previous timer and arms a fresh one.
// Caller must hold m.mu.
func (m *SubscriptionManager) armWatchdogLocked() {
	if m.watchdog != nil {
		m.watchdog.Stop()
	}
	m.watchdog = time.AfterFunc(m.config.WatchdogInterval, m.checkWatchdog)
}

// checkWatchdog fires on the watchdog timer. If events arrived within the
// threshold it re-arms; otherwise it forces a resubscribe.
func (m *SubscriptionManager) checkWatchdog() {
	m.mu.Lock()
	if m.state == StateUnsubscribed {
		m.mu.Unlock()
		return
	}

	// A healthy subscription with recent events just re-arms; a pending
	// resubscribe is left to finish. A failed resubscribe (still in
	// StateResubscribing, nothing in flight) retries regardless of
	// lastEventAt.
	silence := m.now().Sub(m.lastEventAt)
	if m.resubscribing || (m.state == StateSubscribed && silence < m.config.WatchdogInterval) {
		m.armWatchdogLocked()
		m.mu.Unlock()
		return
	}

	m.state = StateResubscribing
	m.resubscribing = true
	staleID := m.subID
	m.subID = ""
	ctx := m.ctx
	m.mu.Unlock()

	m.log.Warn("no events within watchdog interval, resubscribing",
		logger.F("silence", silence),
		logger.F("watchdog_interval", m.config.WatchdogInterval),
	)

	m.resubscribe(ctx, staleID)
}

// resubscribe tears down the stale subscription and creates a fresh one plus
// a fresh watchdog. It performs the network round trips without holding m.mu
// and re-acquires it only to commit the transition. Caller must have set
// resubscribing and StateResubscribing under the lock.
func (m *SubscriptionManager) resubscribe(ctx context.Context, staleID string) {
	if ctx == nil {
		ctx = context.Background()
	}

	if staleID != "" {
		// Best effort: a dead transport cannot unsubscribe anyway
		if err := m.sub.Unsubscribe(ctx, staleID); err != nil {
			m.log.Warn("failed to cancel stale subscription",
				logger.F("subscription", staleID),
				logger.F("error", err),
			)
		}
	}

	subID, err := m.sub.SubscribeLogs(ctx, m.config.ContractAddress, m.config.Topics)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.resubscribing = false

	if m.state == StateUnsubscribed {
		// Stop ran while the round trip was in flight
		if err == nil {
			go func() { _ = m.sub.Unsubscribe(context.Background(), subID) }()
		}
		return
	}

	if err != nil {
		m.log.Error("resubscribe failed, retrying on next watchdog tick",
			logger.F("error", err),
		)
		// Keep Resubscribing state; the watchdog keeps firing until the
		// subscription is back
		m.armWatchdogLocked()
		return
	}

	m.subID = subID
	m.state = StateSubscribed
	m.lastEventAt = m.now()
	m.armWatchdogLocked()

	m.log.Info("subscription recreated", logger.F("subscription", subID))
}
