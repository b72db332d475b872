/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errHubClosed = errors.New("hub closed")

type command struct {
	ctx   context.Context
	apply func(ctx context.Context) error
	reply chan error
}

// hub is the single writer for one session's transitions; commands are
// applied one at a time in arrival order.
type hub struct {
	code     string
	commands chan command
	quit     chan struct{}
	once     sync.Once

	mu         sync.Mutex
	lastActive time.Time
}

func newHub(code string) *hub {
	return &hub{
		code:       code,
		commands:   make(chan command),
		quit:       make(chan struct{}),
		lastActive: time.Now(),
	}
}

func (h *hub) run() {
	for {
		select {
		case cmd := <-h.commands:
			h.touch()
			cmd.reply <- cmd.apply(cmd.ctx)
		case <-h.quit:
			return
		}
	}
}

func (h *hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *hub) idleSince() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.lastActive
}

func (h *hub) stop() {
	h.once.Do(func() { close(h.quit) })
}

func (h *hub) do(ctx context.Context, apply func(ctx context.Context) error) error {
	cmd := command{
		ctx:   ctx,
		apply: apply,
		reply: make(chan error, 1),
	}

	select {
	case h.commands <- cmd:
	case <-h.quit:
		return errHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// hubs holds one hub per session code. Hubs carry no state of their own,
// so idle ones are reaped and rebuilt on demand.
type hubs struct {
	mu          sync.Mutex
	byCode      map[string]*hub
	idleTimeout time.Duration
	done        chan struct{}
	once        sync.Once
}

func newHubs(idleTimeout time.Duration) *hubs {
	hs := &hubs{
		byCode:      make(map[string]*hub),
		idleTimeout: idleTimeout,
		done:        make(chan struct{}),
	}
	if idleTimeout > 0 {
		go hs.reaperLoop()
	}
	return hs
}

func (hs *hubs) get(code string) *hub {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if h, ok := hs.byCode[code]; ok {
		h.touch()
		return h
	}

	h := newHub(code)
	hs.byCode[code] = h
	go h.run()

	return h
}

// do runs apply on code's hub, retrying if the hub was reaped in between.
func (hs *hubs) do(ctx context.Context, code string, apply func(ctx context.Context) error) error {
	for {
		select {
		case <-hs.done:
			return errHubClosed
		default:
		}

		err := hs.get(code).do(ctx, apply)
		if errors.Is(err, errHubClosed) {
			continue
		}
		return err
	}
}

func (hs *hubs) len() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	return len(hs.byCode)
}

func (hs *hubs) reap(cutoff time.Time) int {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	reaped := 0
	for code, h := range hs.byCode {
		if h.idleSince().Before(cutoff) {
			delete(hs.byCode, code)
			h.stop()
			reaped++
		}
	}

	return reaped
}

func (hs *hubs) reaperLoop() {
	ticker := time.NewTicker(hs.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hs.reap(time.Now().Add(-hs.idleTimeout))
		case <-hs.done:
			return
		}
	}
}

func (hs *hubs) close() {
	hs.once.Do(func() {
		close(hs.done)

		hs.mu.Lock()
		defer hs.mu.Unlock()

		for code, h := range hs.byCode {
			delete(hs.byCode, code)
			h.stop()
		}
	})
}
