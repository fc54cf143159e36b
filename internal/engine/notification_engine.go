package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/medikart/storefront/internal/domain"
	"github.com/medikart/storefront/internal/port"
)

const (
	defaultPollInterval     = time.Minute
	defaultSuppressionDelay = time.Second
)

// Update is the immutable notification view emitted to subscribers.
type Update struct {
	Notifications []domain.Notification
	UnreadCount   int
}

type NotificationEngineConfig struct {
	Service port.NotificationService
	Session port.Session

	Logger           *slog.Logger
	Clock            Clock
	PollInterval     time.Duration
	SuppressionDelay time.Duration

	// OnDialog consumes the present-dialog side effect. The dialog is
	// shown before its read-state is persisted; it may be nil.
	OnDialog func(DialogEvent)
}

// NotificationEngine owns the notification list. It polls the feed on a
// fixed interval while a session exists and runs the auto-presentation
// state machine over every fresh list.
type NotificationEngine struct {
	svc          port.NotificationService
	session      port.Session
	logger       *slog.Logger
	clock        Clock
	pollInterval time.Duration
	onDialog     func(DialogEvent)

	mu         sync.Mutex
	list       []domain.Notification
	dialog     *dialogController
	gen        int
	pollCancel context.CancelFunc
	nextSub    int
	subs       map[int]func(Update)

	unsubSession func()
	wg           sync.WaitGroup
}

func NewNotificationEngine(cfg NotificationEngineConfig) (*NotificationEngine, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("service is nil")
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("session is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.SuppressionDelay <= 0 {
		cfg.SuppressionDelay = defaultSuppressionDelay
	}

	e := &NotificationEngine{
		svc:          cfg.Service,
		session:      cfg.Session,
		logger:       cfg.Logger,
		clock:        cfg.Clock,
		pollInterval: cfg.PollInterval,
		onDialog:     cfg.OnDialog,
		list:         []domain.Notification{},
		dialog:       newDialogController(cfg.Clock, cfg.SuppressionDelay),
		subs:         make(map[int]func(Update)),
	}

	e.unsubSession = cfg.Session.Subscribe(e.onSessionChange)

	if cfg.Session.Authenticated() {
		e.startPolling()
	}

	return e, nil
}

// Close stops the poller and detaches from the session signal.
func (e *NotificationEngine) Close() {
	e.unsubSession()
	e.stopPolling()
	e.wg.Wait()
}

// List returns the current notification list in server order.
func (e *NotificationEngine) List() []domain.Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.CloneNotifications(e.list)
}

// UnreadCount derives the unread badge count from the current list.
func (e *NotificationEngine) UnreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.UnreadCount(e.list)
}

// DialogState exposes the auto-presentation state.
func (e *NotificationEngine) DialogState() DialogState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dialog.current()
}

// Subscribe registers fn to receive an update after every list change. The
// returned func removes the subscription.
func (e *NotificationEngine) Subscribe(fn func(Update)) func() {
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Refresh fetches the feed on demand. A no-op without a session.
func (e *NotificationEngine) Refresh(ctx context.Context) error {
	if !e.session.Authenticated() {
		return nil
	}

	e.mu.Lock()
	gen := e.gen
	e.mu.Unlock()

	return e.refresh(ctx, gen)
}

// MarkAsRead flips one notification's read flag, optimistically locally and
// then on the server. On server failure the local list is reconciled by
// refetch and the error returned. A no-op without a session.
func (e *NotificationEngine) MarkAsRead(ctx context.Context, id string) error {
	if !e.session.Authenticated() {
		return nil
	}
	if id == "" {
		return fmt.Errorf("id is empty: %w", domain.ErrValidation)
	}

	e.mutateList(func(list []domain.Notification) []domain.Notification {
		for i := range list {
			if list[i].ID == id {
				list[i].IsRead = true
			}
		}
		return list
	})

	if err := e.svc.MarkAsRead(ctx, id); err != nil {
		e.reconcile(ctx, "mark as read", err)
		return fmt.Errorf("svc.MarkAsRead: %w", err)
	}
	return nil
}

// MarkAllAsRead flips every notification's read flag. A no-op without a
// session.
func (e *NotificationEngine) MarkAllAsRead(ctx context.Context) error {
	if !e.session.Authenticated() {
		return nil
	}

	e.mutateList(func(list []domain.Notification) []domain.Notification {
		for i := range list {
			list[i].IsRead = true
		}
		return list
	})

	if err := e.svc.MarkAllAsRead(ctx); err != nil {
		e.reconcile(ctx, "mark all as read", err)
		return fmt.Errorf("svc.MarkAllAsRead: %w", err)
	}
	return nil
}

// Delete removes one notification. A no-op without a session.
func (e *NotificationEngine) Delete(ctx context.Context, id string) error {
	if !e.session.Authenticated() {
		return nil
	}
	if id == "" {
		return fmt.Errorf("id is empty: %w", domain.ErrValidation)
	}

	e.mutateList(func(list []domain.Notification) []domain.Notification {
		out := list[:0]
		for _, n := range list {
			if n.ID != id {
				out = append(out, n)
			}
		}
		return out
	})

	if err := e.svc.Delete(ctx, id); err != nil {
		e.reconcile(ctx, "delete", err)
		return fmt.Errorf("svc.Delete: %w", err)
	}
	return nil
}

// ClearAll removes every notification. A no-op without a session.
func (e *NotificationEngine) ClearAll(ctx context.Context) error {
	if !e.session.Authenticated() {
		return nil
	}

	e.mutateList(func([]domain.Notification) []domain.Notification {
		return []domain.Notification{}
	})

	if err := e.svc.ClearAll(ctx); err != nil {
		e.reconcile(ctx, "clear all", err)
		return fmt.Errorf("svc.ClearAll: %w", err)
	}
	return nil
}

// Dismiss closes the recovery dialog. Explicit close, continue-browsing and
// recovery-completion all route here and behave identically.
func (e *NotificationEngine) Dismiss(reason DismissReason) {
	e.mu.Lock()
	id, ok := e.dialog.dismiss()
	e.mu.Unlock()

	if ok {
		e.logger.Info("recovery dialog dismissed", "notification_id", id, "reason", reason)
	}
}

func (e *NotificationEngine) onSessionChange(authenticated bool) {
	if authenticated {
		e.startPolling()
		return
	}

	e.stopPolling()

	// No anonymous notifications exist; the list resets with the session.
	e.mu.Lock()
	e.gen++
	e.list = []domain.Notification{}
	e.mu.Unlock()
	e.emit()
}

func (e *NotificationEngine) startPolling() {
	e.mu.Lock()
	if e.pollCancel != nil {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.pollCancel = cancel
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	e.wg.Add(1)
	go e.pollLoop(ctx, gen)
}

func (e *NotificationEngine) stopPolling() {
	e.mu.Lock()
	cancel := e.pollCancel
	e.pollCancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (e *NotificationEngine) pollLoop(ctx context.Context, gen int) {
	defer e.wg.Done()

	if err := e.refresh(ctx, gen); err != nil {
		e.logger.Warn("notification poll failed", "error", err)
	}

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.refresh(ctx, gen); err != nil {
				e.logger.Warn("notification poll failed", "error", err)
			}
		}
	}
}

// refresh fetches the feed and feeds the fresh list to the dialog state
// machine. A fetch failure keeps the previous list untouched
// (stale-but-consistent over empty-but-wrong). A result arriving after the
// session that issued it ended is dropped.
func (e *NotificationEngine) refresh(ctx context.Context, gen int) error {
	list, err := e.svc.List(ctx)
	if err != nil {
		return fmt.Errorf("svc.List: %w", err)
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return nil
	}
	e.list = list

	var event *DialogEvent
	if presented := e.dialog.evaluate(e.list); presented != nil {
		requestID, _ := presented.PrescriptionRequestID()
		event = &DialogEvent{
			NotificationID: presented.ID,
			RequestID:      requestID,
			ProductName:    presented.ProductName(),
			PharmacyName:   presented.PharmacyName(),
		}

		// Presenting the dialog marks the notification read, optimistic
		// first so the unread badge updates immediately.
		for i := range e.list {
			if e.list[i].ID == presented.ID {
				e.list[i].IsRead = true
			}
		}
	}
	e.mu.Unlock()

	e.emit()

	if event != nil {
		if e.onDialog != nil {
			e.onDialog(*event)
		}

		// Display first, persist read-state best-effort: a failure here
		// must not block the dialog.
		if err := e.svc.MarkAsRead(ctx, event.NotificationID); err != nil {
			e.logger.Warn("marking presented notification read failed",
				"notification_id", event.NotificationID, "error", err)
		}
	}

	return nil
}

func (e *NotificationEngine) mutateList(fn func([]domain.Notification) []domain.Notification) {
	e.mu.Lock()
	e.list = fn(domain.CloneNotifications(e.list))
	e.mu.Unlock()
	e.emit()
}

// reconcile refetches after a failed server mutation so the optimistic
// local change does not diverge silently.
func (e *NotificationEngine) reconcile(ctx context.Context, op string, cause error) {
	e.logger.Warn("notification mutation failed, refetching", "op", op, "error", cause)
	if err := e.Refresh(ctx); err != nil {
		e.logger.Warn("notification refetch failed", "op", op, "error", err)
	}
}

func (e *NotificationEngine) emit() {
	e.mu.Lock()
	update := Update{
		Notifications: domain.CloneNotifications(e.list),
		UnreadCount:   domain.UnreadCount(e.list),
	}
	fns := make([]func(Update), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(update)
	}
}
