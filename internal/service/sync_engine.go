// internal/service/sync_engine.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"pos-sync-service/internal/broadcast"
	"pos-sync-service/internal/config"
	"pos-sync-service/internal/lease"
	"pos-sync-service/internal/model"
	"pos-sync-service/internal/network"
	"pos-sync-service/internal/remote"
	"pos-sync-service/internal/repository"
	"pos-sync-service/internal/utils"
)

var (
	// ErrOffline is returned by a manual sync while the back office is unreachable
	ErrOffline = errors.New("back office is unreachable")
	// ErrNotSyncOwner is returned when another engine holds the sync lease
	ErrNotSyncOwner = errors.New("sync queue is owned by another engine")
	// ErrStopped is returned once the engine has been stopped
	ErrStopped = errors.New("sync engine is stopped")
)

// Drain triggers
const (
	TriggerReconnect = "reconnect"
	TriggerPeriodic  = "periodic"
	TriggerRetry     = "retry"
	TriggerManual    = "manual"
)

// OrderSubmitter delivers one order to the back office
type OrderSubmitter interface {
	CreateOrder(ctx context.Context, order *model.OfflineOrder) (model.SyncReceipt, error)
}

// SyncEngine records sales locally and drains them to the back office
// whenever connectivity allows.
type SyncEngine struct {
	store   *repository.LocalStore
	remote  OrderSubmitter
	probe   network.NetworkProbe
	lease   lease.Lease
	factory *OrderFactory
	config  config.SyncConfig
	logger  *zap.Logger
	audit   *utils.AuditLogger

	statuses *broadcast.Broadcaster[model.SyncStatus]
	alerts   *broadcast.Broadcaster[model.Alert]

	// statusMu orders snapshot updates, including the store count they
	// carry, with their place in the status queue.
	statusMu   sync.Mutex
	mutex      sync.RWMutex
	status     model.SyncStatus
	wasOnline  bool
	autoRound  int
	retryTimer *time.Timer

	drains     singleflight.Group
	inProgress atomic.Bool

	lifeMu      sync.Mutex
	started     bool
	stopped     bool
	unsubscribe func()
	runCtx      context.Context
	cancel      context.CancelFunc
	cycleCtx    context.Context
	cycleCancel context.CancelFunc
	wg          sync.WaitGroup
}

// NewSyncEngine creates a sync engine. A nil lease makes this engine the
// unconditional owner of the queue.
func NewSyncEngine(
	store *repository.LocalStore,
	remote OrderSubmitter,
	probe network.NetworkProbe,
	owner lease.Lease,
	cfg config.SyncConfig,
	logger *zap.Logger,
) *SyncEngine {
	logger = logger.With(zap.String("component", "sync_engine"))
	runCtx, cancel := context.WithCancel(context.Background())
	cycleCtx, cycleCancel := context.WithCancel(context.Background())

	return &SyncEngine{
		store:       store,
		remote:      remote,
		probe:       probe,
		lease:       owner,
		factory:     NewOrderFactory(),
		config:      cfg,
		logger:      logger,
		audit:       utils.NewAuditLogger(logger),
		statuses:    broadcast.New[model.SyncStatus]("sync_status", logger),
		alerts:      broadcast.New[model.Alert]("alerts", logger),
		runCtx:      runCtx,
		cancel:      cancel,
		cycleCtx:    cycleCtx,
		cycleCancel: cycleCancel,
	}
}

// Start subscribes to connectivity changes and starts the periodic and
// cleanup loops.
func (e *SyncEngine) Start(ctx context.Context) error {
	e.lifeMu.Lock()
	if e.started || e.stopped {
		e.lifeMu.Unlock()
		return nil
	}
	e.started = true
	e.lifeMu.Unlock()

	online := e.probe.Status().IsOnline
	e.mutex.Lock()
	e.wasOnline = online
	e.mutex.Unlock()

	pending, err := e.updatePending(ctx, func(s *model.SyncStatus) {
		s.IsOnline = online
	})
	if err != nil {
		e.lifeMu.Lock()
		e.started = false
		e.lifeMu.Unlock()
		return fmt.Errorf("failed to read sync queue: %w", err)
	}

	e.lifeMu.Lock()
	e.unsubscribe = e.probe.OnChange(e.handleNetworkChange)
	e.lifeMu.Unlock()

	e.logger.Info("Sync engine started",
		zap.Int("pending_orders", pending),
		zap.Bool("online", online),
		zap.Duration("interval", e.config.Interval),
		zap.Int("retry_attempts", e.config.RetryAttempts),
	)

	if e.config.Interval > 0 && e.acquireWorker() {
		go e.periodicLoop()
	}
	if !e.config.RemoveSynced && e.config.SyncedRetention > 0 && e.config.CleanupInterval > 0 && e.acquireWorker() {
		go e.cleanupLoop()
	}

	if online && pending > 0 {
		e.trigger(TriggerReconnect)
	}
	return nil
}

// Stop stops accepting triggers and waits for a running cycle. A cycle still
// running after the shutdown deadline is cancelled.
func (e *SyncEngine) Stop() {
	e.lifeMu.Lock()
	if e.stopped {
		e.lifeMu.Unlock()
		return
	}
	e.stopped = true
	unsubscribe := e.unsubscribe
	e.lifeMu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	e.stopRetryTimer()
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	deadline := e.config.ShutdownDeadline
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	select {
	case <-done:
	case <-time.After(deadline):
		e.logger.Warn("Sync cycle still running at shutdown deadline, cancelling",
			zap.Duration("deadline", deadline),
		)
		e.cycleCancel()
		<-done
	}
	e.cycleCancel()

	if e.lease != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.lease.Release(ctx); err != nil {
			e.logger.Warn("Failed to release sync lease", zap.Error(err))
		}
		cancel()
	}

	e.logger.Info("Sync engine stopped")
}

// CreateOfflineOrder records a sale locally. It never touches the network;
// the order is picked up by the next drain cycle.
func (e *SyncEngine) CreateOfflineOrder(ctx context.Context, draft OrderDraft) (*model.OfflineOrder, error) {
	order := e.factory.NewOrder(draft)

	if err := e.store.PutOrder(ctx, order); err != nil {
		if errors.Is(err, repository.ErrStorage) {
			e.raiseAlert(model.AlertLevelError, model.AlertCodeLocalStorage,
				"The sale could not be saved on this terminal", order.ID)
		}
		return nil, err
	}

	e.audit.LogOrderCreated(order.ID, order.OrderNumber, order.OfflineID,
		order.TotalAmount.StringFixed(2), len(order.Items))
	e.refreshPending(ctx)

	return order, nil
}

// ForceSync drains the queue now and returns the cycle outcome. Per-order
// failures are reported in the result, not as an error.
func (e *SyncEngine) ForceSync(ctx context.Context) (model.CycleResult, error) {
	if !e.probe.Status().IsOnline {
		return model.CycleResult{}, ErrOffline
	}
	return e.drain(ctx, TriggerManual)
}

// DeleteOrder removes a local order and returns it. Unknown ids return nil
// without error.
func (e *SyncEngine) DeleteOrder(ctx context.Context, id string) (*model.OfflineOrder, error) {
	order, err := e.store.GetOrder(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := e.store.DeleteOrder(ctx, id); err != nil {
		return nil, err
	}
	e.refreshPending(ctx)
	return order, nil
}

// GetSyncStatus returns the latest status snapshot
func (e *SyncEngine) GetSyncStatus() model.SyncStatus {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.status
}

// GetPendingOrdersCount returns the number of unsynced orders in the store
func (e *SyncEngine) GetPendingOrdersCount(ctx context.Context) (int, error) {
	return e.store.CountUnsyncedOrders(ctx)
}

// OnStatusChange registers a status listener and returns its unsubscribe.
// Listeners receive snapshots in the order they were taken and may call
// back into the engine.
func (e *SyncEngine) OnStatusChange(listener broadcast.Listener[model.SyncStatus]) func() {
	return e.statuses.Subscribe(listener)
}

// SubscribeStatus returns a bounded status channel for slow consumers
func (e *SyncEngine) SubscribeStatus(buffer int) (<-chan model.SyncStatus, func()) {
	return e.statuses.SubscribeChan(buffer)
}

// OnAlert registers a listener for cashier alerts
func (e *SyncEngine) OnAlert(listener broadcast.Listener[model.Alert]) func() {
	return e.alerts.Subscribe(listener)
}

// SubscribeAlerts returns a bounded alert channel for slow consumers
func (e *SyncEngine) SubscribeAlerts(buffer int) (<-chan model.Alert, func()) {
	return e.alerts.SubscribeChan(buffer)
}

func (e *SyncEngine) handleNetworkChange(ns model.NetworkStatus) {
	e.mutex.Lock()
	was := e.wasOnline
	e.wasOnline = ns.IsOnline
	e.mutex.Unlock()

	if was == ns.IsOnline {
		return
	}

	e.setStatus(func(s *model.SyncStatus) {
		s.IsOnline = ns.IsOnline
	})

	if !ns.IsOnline {
		e.stopRetryTimer()
		return
	}

	e.logger.Info("Back office reachable again, draining queue")
	e.trigger(TriggerReconnect)
}

// drain runs one cycle. A caller arriving while a cycle is running joins it
// and receives the same result.
func (e *SyncEngine) drain(ctx context.Context, trigger string) (model.CycleResult, error) {
	ch := e.drains.DoChan("drain", func() (interface{}, error) {
		if !e.acquireWorker() {
			return model.CycleResult{}, ErrStopped
		}
		defer e.wg.Done()
		return e.runCycle(trigger)
	})

	select {
	case res := <-ch:
		return res.Val.(model.CycleResult), res.Err
	case <-ctx.Done():
		return model.CycleResult{}, ctx.Err()
	}
}

func (e *SyncEngine) runCycle(trigger string) (model.CycleResult, error) {
	ctx := e.cycleCtx
	result := model.CycleResult{StartedAt: time.Now().UTC()}

	orders, err := e.store.GetUnsyncedOrders(ctx)
	if err != nil {
		e.logger.Error("Failed to read sync queue", zap.Error(err))
		e.raiseAlert(model.AlertLevelError, model.AlertCodeLocalStorage,
			"Pending sales could not be read from this terminal", "")
		msg := err.Error()
		e.setStatus(func(s *model.SyncStatus) { s.LastError = &msg })
		return result, err
	}

	if len(orders) == 0 {
		result.Skipped = true
		result.Duration = time.Since(result.StartedAt).String()
		e.updatePending(ctx, nil)
		return result, nil
	}

	owned, err := e.acquireLease(ctx)
	if err != nil {
		e.logger.Warn("Sync lease unavailable", zap.Error(err))
		result.Skipped = true
		return result, fmt.Errorf("%w: %w", ErrNotSyncOwner, err)
	}
	if !owned {
		e.logger.Debug("Sync queue owned by another engine, skipping cycle",
			zap.String("trigger", trigger))
		result.Skipped = true
		return result, ErrNotSyncOwner
	}

	e.inProgress.Store(true)
	e.updatePending(ctx, func(s *model.SyncStatus) {
		s.SyncInProgress = true
	})

	cycleLog := utils.NewCycleLogger(e.logger, trigger, uuid.NewString())
	cycleLog.Start(len(orders))

	for _, order := range orders {
		if ok, err := e.acquireLease(ctx); err != nil || !ok {
			e.logger.Warn("Sync lease lost during cycle, stopping", zap.Error(err))
			result.Errors = append(result.Errors, ErrNotSyncOwner.Error())
			break
		}

		result.Attempted++
		receipt, err := e.remote.CreateOrder(ctx, order)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", order.ID, err))
			cycleLog.OrderFailed(order.ID, order.OfflineID, err)

			if rerr := e.store.RecordSyncFailure(ctx, order.ID, err); rerr != nil {
				e.logger.Error("Failed to record sync failure",
					zap.String("order_id", order.ID),
					zap.Error(rerr),
				)
			}
			if errors.Is(err, remote.ErrRejected) {
				result.Rejected++
				e.raiseAlert(model.AlertLevelError, model.AlertCodeOrderRejected,
					fmt.Sprintf("Sale %s was refused by the back office and needs attention", order.OrderNumber), order.ID)
			}
			continue
		}

		if err := e.store.MarkSynced(ctx, order.ID, receipt); err != nil {
			// The back office has the order; the next cycle resubmits it and
			// the offline_id dedupe turns that into a no-op.
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", order.ID, err))
			e.logger.Error("Failed to mark order synced",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
			e.raiseAlert(model.AlertLevelError, model.AlertCodeLocalStorage,
				"A synced sale could not be updated on this terminal", order.ID)
			continue
		}

		result.Synced++
		cycleLog.OrderSynced(order.ID, order.OfflineID, receipt.OrderID, receipt.Duplicate)
		e.audit.LogOrderSynced(order.ID, receipt.OrderID, order.SyncAttempts+1)

		if e.config.RemoveSynced {
			if err := e.store.DeleteOrder(ctx, order.ID); err != nil {
				e.logger.Warn("Failed to remove synced order",
					zap.String("order_id", order.ID),
					zap.Error(err),
				)
			}
		}
	}

	cycleLog.Finish(result.Synced, result.Failed)
	result.Duration = cycleLog.Elapsed().String()

	now := time.Now().UTC()
	e.inProgress.Store(false)
	e.updatePending(ctx, func(s *model.SyncStatus) {
		s.SyncInProgress = false
		if result.Synced > 0 {
			s.LastSync = &now
		}
		if result.Failed > 0 {
			msg := result.Errors[len(result.Errors)-1]
			s.LastError = &msg
			s.ConsecutiveFailures++
		} else {
			s.LastError = nil
			s.ConsecutiveFailures = 0
			s.AutoRetryExhausted = false
		}
	})

	e.afterCycle(trigger, result)
	return result, nil
}

// afterCycle applies the automatic retry policy: a failed automatic cycle is
// retried after a fixed delay until RetryAttempts cycles in a row have
// failed, then the engine waits for the next trigger.
func (e *SyncEngine) afterCycle(trigger string, result model.CycleResult) {
	if result.Failed == 0 {
		e.mutex.Lock()
		e.autoRound = 0
		e.mutex.Unlock()
		return
	}
	if trigger == TriggerManual {
		return
	}

	e.mutex.Lock()
	e.autoRound++
	round := e.autoRound
	e.mutex.Unlock()

	if round < e.config.RetryAttempts {
		e.logger.Info("Scheduling sync retry",
			zap.Int("attempt", round),
			zap.Int("max_attempts", e.config.RetryAttempts),
			zap.Duration("delay", e.config.RetryDelay),
		)
		e.scheduleRetry()
		return
	}

	e.logger.Warn("Automatic sync retries exhausted, waiting for next trigger",
		zap.Int("attempts", round),
		zap.Int("failed_orders", result.Failed),
	)
	e.setStatus(func(s *model.SyncStatus) { s.AutoRetryExhausted = true })
	e.raiseAlert(model.AlertLevelWarning, model.AlertCodeRetryExhausted,
		fmt.Sprintf("%d sale(s) could not be sent to the back office", result.Failed), "")
}

func (e *SyncEngine) scheduleRetry() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.retryTimer != nil {
		e.retryTimer.Stop()
	}
	e.retryTimer = time.AfterFunc(e.config.RetryDelay, func() {
		if e.probe.Status().IsOnline {
			e.trigger(TriggerRetry)
		}
	})
}

func (e *SyncEngine) stopRetryTimer() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
}

// trigger starts an automatic cycle in the background
func (e *SyncEngine) trigger(reason string) {
	if !e.acquireWorker() {
		return
	}

	go func() {
		defer e.wg.Done()

		if reason != TriggerRetry {
			e.mutex.Lock()
			e.autoRound = 0
			e.mutex.Unlock()
		}

		_, err := e.drain(e.runCtx, reason)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotSyncOwner), errors.Is(err, ErrStopped), errors.Is(err, context.Canceled):
			e.logger.Debug("Automatic sync skipped", zap.String("trigger", reason), zap.Error(err))
		default:
			e.logger.Error("Automatic sync failed", zap.String("trigger", reason), zap.Error(err))
		}
	}()
}

func (e *SyncEngine) periodicLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.runCtx.Done():
			return
		case <-ticker.C:
			if !e.probe.Status().IsOnline || e.inProgress.Load() {
				continue
			}
			pending, err := e.store.CountUnsyncedOrders(e.runCtx)
			if err != nil || pending == 0 {
				continue
			}
			e.trigger(TriggerPeriodic)
		}
	}
}

func (e *SyncEngine) cleanupLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.runCtx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-e.config.SyncedRetention)
			removed, err := e.store.PurgeSyncedBefore(e.runCtx, cutoff)
			if err != nil {
				e.logger.Error("Failed to purge synced orders", zap.Error(err))
				continue
			}
			if removed > 0 {
				e.logger.Info("Synced order retention cleanup",
					zap.Int64("removed", removed),
					zap.Time("cutoff", cutoff),
				)
			}
		}
	}
}

func (e *SyncEngine) acquireLease(ctx context.Context) (bool, error) {
	if e.lease == nil {
		return true, nil
	}
	ttl := e.config.LeaseTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return e.lease.Acquire(ctx, ttl)
}

func (e *SyncEngine) acquireWorker() bool {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.stopped {
		return false
	}
	e.wg.Add(1)
	return true
}

func (e *SyncEngine) refreshPending(ctx context.Context) {
	if _, err := e.updatePending(ctx, nil); err != nil {
		e.logger.Warn("Failed to count pending orders", zap.Error(err))
	}
}

func (e *SyncEngine) raiseAlert(level model.AlertLevel, code, message, orderID string) {
	e.alerts.Publish(model.Alert{
		Level:     level,
		Code:      code,
		Message:   message,
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
	})
}

// setStatus replaces the status snapshot and publishes it when it changed
func (e *SyncEngine) setStatus(fn func(s *model.SyncStatus)) {
	e.statusMu.Lock()
	e.applyStatus(fn)
	e.statusMu.Unlock()

	e.statuses.Flush()
}

// updatePending counts the unsynced orders and applies fn together with the
// count as one snapshot. The count is read under statusMu, so a slower
// caller cannot overwrite a newer count. When counting fails fn is still
// applied and the previous count kept.
func (e *SyncEngine) updatePending(ctx context.Context, fn func(s *model.SyncStatus)) (int, error) {
	e.statusMu.Lock()
	pending, err := e.store.CountUnsyncedOrders(ctx)
	e.applyStatus(func(s *model.SyncStatus) {
		if fn != nil {
			fn(s)
		}
		if err == nil {
			s.PendingOrders = pending
		}
	})
	e.statusMu.Unlock()

	e.statuses.Flush()
	return pending, err
}

// applyStatus must be called with statusMu held
func (e *SyncEngine) applyStatus(fn func(s *model.SyncStatus)) {
	e.mutex.Lock()
	prev := e.status
	next := prev
	fn(&next)
	e.status = next
	e.mutex.Unlock()

	if !sameSyncStatus(prev, next) {
		e.statuses.Enqueue(next)
	}
}

func sameSyncStatus(a, b model.SyncStatus) bool {
	return a.IsOnline == b.IsOnline &&
		a.PendingOrders == b.PendingOrders &&
		a.SyncInProgress == b.SyncInProgress &&
		a.ConsecutiveFailures == b.ConsecutiveFailures &&
		a.AutoRetryExhausted == b.AutoRetryExhausted &&
		a.LastSync == b.LastSync &&
		a.LastError == b.LastError
}
