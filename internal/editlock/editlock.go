// Package editlock implements the optimistic edit lock over a
// Subproject's editing/last_edit pair. The lock is soft and time-boxed:
// holders refresh it with heartbeats, and a holder silent for longer than
// the TTL is treated as expired by the next acquirer.
package editlock

import (
	"context"
	"fmt"
	"time"

	"github.com/mhayashi-dev/prodtrack/internal/dates"
	"github.com/mhayashi-dev/prodtrack/internal/query"
)

// DefaultTTL is how long a lock survives without a heartbeat.
const DefaultTTL = 5 * time.Minute

// Status is the outcome of a lock call. On a failed acquire it carries the
// current holder so the caller can display "locked by X since Y".
type Status struct {
	Success     bool        `json:"success"`
	EditingUser *query.Link `json:"editingUser,omitempty"`
	LastEdit    string      `json:"last_edit,omitempty"`
}

// Coordinator mediates edit locks through the query engine.
type Coordinator struct {
	engine *query.Engine
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTTL overrides the lock expiry.
func WithTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a lock coordinator with the default 5-minute TTL.
func NewCoordinator(engine *query.Engine, opts ...Option) *Coordinator {
	c := &Coordinator{engine: engine, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) load(ctx context.Context, subprojectID int64) (query.Record, error) {
	rec, err := c.engine.Get(ctx, "Subproject", subprojectID, []string{"id", "name", "editing", "last_edit"})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &query.NotFoundError{Type: "Subproject", ID: subprojectID}
	}
	return rec, nil
}

func (c *Coordinator) write(ctx context.Context, subprojectID int64, editing any, lastEdit any) error {
	_, err := c.engine.Update(ctx, "Subproject", subprojectID, map[string]any{
		"editing":   editing,
		"last_edit": lastEdit,
	})
	if err != nil {
		return fmt.Errorf("writing edit lock: %w", err)
	}
	return nil
}

// Acquire attempts to take the lock. It succeeds when the lock is unset,
// already held by this user, or held but expired; otherwise it reports the
// current holder.
func (c *Coordinator) Acquire(ctx context.Context, subprojectID, userID int64) (Status, error) {
	rec, err := c.load(ctx, subprojectID)
	if err != nil {
		return Status{}, err
	}
	now := c.now()

	editing, _ := rec["editing"].(query.Link)
	lastEdit, _ := rec["last_edit"].(string)

	free := editing.ID == 0 || editing.ID == userID || lastEdit == ""
	if !free {
		if held, parseErr := dates.ParseDateTime(lastEdit); parseErr == nil {
			free = now.Sub(held) > c.ttl
		} else {
			// Unreadable timestamp: treat the lock as stale.
			free = true
		}
	}
	if !free {
		return Status{Success: false, EditingUser: &editing, LastEdit: lastEdit}, nil
	}

	if err := c.write(ctx, subprojectID, userID, now.Format(dates.DateTimeLayout)); err != nil {
		return Status{}, err
	}
	return Status{Success: true}, nil
}

// Heartbeat refreshes last_edit when this user holds the lock. It never
// steals or clears another holder's lock.
func (c *Coordinator) Heartbeat(ctx context.Context, subprojectID, userID int64) (Status, error) {
	rec, err := c.load(ctx, subprojectID)
	if err != nil {
		return Status{}, err
	}
	editing, _ := rec["editing"].(query.Link)
	if editing.ID != userID {
		return Status{Success: false}, nil
	}
	if _, err := c.engine.Update(ctx, "Subproject", subprojectID, map[string]any{
		"last_edit": c.now().Format(dates.DateTimeLayout),
	}); err != nil {
		return Status{}, fmt.Errorf("refreshing edit lock: %w", err)
	}
	return Status{Success: true}, nil
}

// Release clears the lock when this user holds it.
func (c *Coordinator) Release(ctx context.Context, subprojectID, userID int64) (Status, error) {
	rec, err := c.load(ctx, subprojectID)
	if err != nil {
		return Status{}, err
	}
	editing, _ := rec["editing"].(query.Link)
	if editing.ID != userID {
		return Status{Success: false}, nil
	}
	if err := c.write(ctx, subprojectID, nil, nil); err != nil {
		return Status{}, err
	}
	return Status{Success: true}, nil
}
