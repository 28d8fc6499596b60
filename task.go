package particle

import (
	"context"
	"time"
)

// Task is a unit of periodic work. It first runs InitialDelay after its
// endpoint starts, then every Period until the endpoint stops. A run never
// overlaps the previous run of the same task.
//
// Errors returned by Run are swallowed; they are logged when debug logging
// is enabled.
type Task struct {
	Name         string
	InitialDelay time.Duration
	Period       time.Duration
	Run          func(ctx context.Context) error
}

// NewTask returns a Task.
func NewTask(name string, initialDelay, period time.Duration, run func(ctx context.Context) error) Task {
	return Task{
		Name:         name,
		InitialDelay: initialDelay,
		Period:       period,
		Run:          run,
	}
}

// pinger is implemented by every client.
type pinger interface {
	Ping() error
}

// clientKeepalive pings the single peer of a client. A failed ping already
// disconnects the client.
func clientKeepalive(c pinger, opts options) Task {
	return NewTask("keepalive", opts.keepaliveDelay, opts.keepalivePeriod, func(context.Context) error {
		return c.Ping()
	})
}

// sweeper is implemented by every server.
type sweeper interface {
	PingAll()
}

// serverKeepalive pings every registered connection and force-disconnects
// the ones that fail.
func serverKeepalive(s sweeper, opts options) Task {
	return NewTask("keepalive", opts.keepaliveDelay, opts.keepalivePeriod, func(context.Context) error {
		s.PingAll()
		return nil
	})
}
