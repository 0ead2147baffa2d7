package job

import (
	"context"
	"sync"
	"time"

	"github.com/target/bulkmail/internal/domain/model"
)

// Waiter blocks until the store signals that a job of the given kind became ready.
type Waiter interface {
	WaitForNotification(ctx context.Context, kind model.JobKind) error
}

// Notifier fans out "job ready" signals to executor workers.
type Notifier interface {
	Subscribe(kind model.JobKind) (func(), <-chan struct{})
	Notify(kind model.JobKind)
	StopAll()
}

// NotifierOptions configure the behaviour of the default notifier implementation.
// Waiter is optional; without it only in-process Notify calls wake subscribers.
type NotifierOptions struct {
	Waiter     Waiter
	WaitWindow time.Duration
	Backoff    time.Duration
}

// DefaultNotifier is the default implementation of Notifier.
type DefaultNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu        sync.Mutex
	subs      map[model.JobKind]map[chan struct{}]struct{}
	listeners map[model.JobKind]context.CancelFunc
}

// NewNotifier constructs the default notifier implementation.
func NewNotifier(opts NotifierOptions) *DefaultNotifier {
	waitWindow := opts.WaitWindow
	if waitWindow <= 0 {
		waitWindow = time.Minute
	}

	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	return &DefaultNotifier{
		waiter:     opts.Waiter,
		waitWindow: waitWindow,
		backoff:    backoff,
		subs:       make(map[model.JobKind]map[chan struct{}]struct{}),
		listeners:  make(map[model.JobKind]context.CancelFunc),
	}
}

func (n *DefaultNotifier) Subscribe(kind model.JobKind) (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.listeners[kind]; !ok && n.waiter != nil {
		ctx, cancel := context.WithCancel(context.Background())
		n.listeners[kind] = cancel
		go n.listenLoop(ctx, kind)
	}

	ch := make(chan struct{}, 1)
	if n.subs[kind] == nil {
		n.subs[kind] = make(map[chan struct{}]struct{})
	}
	n.subs[kind][ch] = struct{}{}

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subscribers := n.subs[kind]
		if _, ok := subscribers[ch]; !ok {
			return
		}
		delete(subscribers, ch)
		drainAndClose(ch)
		if len(subscribers) == 0 {
			n.stopListener(kind)
			delete(n.subs, kind)
		}
	}

	return unsub, ch
}

// Notify wakes local subscribers without a round trip through the store.
func (n *DefaultNotifier) Notify(kind model.JobKind) {
	n.broadcast(kind)
}

func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for kind, cancel := range n.listeners {
		cancel()
		delete(n.listeners, kind)
	}
	for kind, subscribers := range n.subs {
		for ch := range subscribers {
			drainAndClose(ch)
		}
		delete(n.subs, kind)
	}
}

func (n *DefaultNotifier) stopListener(kind model.JobKind) {
	cancel, ok := n.listeners[kind]
	if !ok {
		return
	}
	cancel()
	delete(n.listeners, kind)
}

func (n *DefaultNotifier) listenLoop(ctx context.Context, kind model.JobKind) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx, kind)
		cancel()

		// Broadcast on timeouts too so workers re-poll the store.
		n.broadcast(kind)

		if err != nil && ctx.Err() == nil {
			timer := time.NewTimer(n.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

func (n *DefaultNotifier) broadcast(kind model.JobKind) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subs[kind] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// drainAndClose removes any buffered notifications before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Notifier = (*DefaultNotifier)(nil)
