// Package admission gates incoming connections before any session
// exists: a fixed-window rate counter per source address plus a global
// concurrent-connection ceiling. Rejected attempts are refused at the
// transport and never reach the hub.
package admission

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrRateLimited = errors.New("connection rate exceeded for source")
	ErrServerFull  = errors.New("server connection limit reached")
)

// Config tunes the controller. Zero values fall back to defaults.
type Config struct {
	Window       time.Duration // fixed window length, default 10s
	MaxPerWindow int           // admissions per source per window, default 20
	MaxConns     int           // global concurrent ceiling, default 1024
}

type entry struct {
	windowStart time.Time
	count       int
}

// Controller is safe for concurrent use; it runs on transport accept
// paths, outside the hub's serialization.
type Controller struct {
	mu      sync.Mutex
	cfg     Config
	now     func() time.Time
	active  int
	entries map[string]*entry
}

// New builds a Controller with defaults applied.
func New(cfg Config) *Controller {
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = 20
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 1024
	}
	return &Controller{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Admit decides whether a connection from source may proceed. A counter
// whose window has elapsed is reset to a fresh window, not slid.
func (c *Controller) Admit(source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active >= c.cfg.MaxConns {
		return ErrServerFull
	}

	now := c.now()
	e, ok := c.entries[source]
	if !ok || now.Sub(e.windowStart) >= c.cfg.Window {
		e = &entry{windowStart: now}
		c.entries[source] = e
	}
	if e.count >= c.cfg.MaxPerWindow {
		return ErrRateLimited
	}

	e.count++
	c.active++
	return nil
}

// Release returns one admitted connection's slot. Call exactly once per
// successful Admit, when the connection closes.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active > 0 {
		c.active--
	}
}

// Active reports the current admitted-connection count.
func (c *Controller) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
