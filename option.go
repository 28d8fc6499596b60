package particle

import (
	"time"

	"github.com/pkg/errors"
)

// Default configuration values.
const (
	// defaultKeepaliveDelay is the delay before the first keepalive ping.
	defaultKeepaliveDelay = 100 * time.Millisecond
	// defaultKeepalivePeriod is the interval between keepalive pings.
	defaultKeepalivePeriod = time.Second
	// defaultPeerTimeout is how long a UDP peer may stay silent.
	defaultPeerTimeout = 5 * time.Second
	// defaultHandshakeTimeout bounds the UDP connect handshake.
	defaultHandshakeTimeout = 3 * time.Second
	// defaultDialTimeout bounds the TCP dial.
	defaultDialTimeout = 5 * time.Second
	// defaultMaxDatagramSize is the default receive buffer for one datagram.
	defaultMaxDatagramSize = 1024
	// maxDatagramSize is the largest UDP payload over IPv4.
	maxDatagramSize = 65507
	// minDatagramSize fits a tag and the ping sentinel.
	minDatagramSize = 5
	// defaultInboxSize is the number of datagrams queued per UDP peer.
	defaultInboxSize = 64
	// defaultPoolSize is the number of periodic tasks run concurrently.
	defaultPoolSize = 2
)

// options holds the configuration shared by clients and servers.
type options struct {
	logger Logger
	tasks  []Task

	keepaliveDelay  time.Duration
	keepalivePeriod time.Duration
	noKeepalive     bool

	peerTimeout      time.Duration // UDP liveness window
	handshakeTimeout time.Duration // UDP connect
	dialTimeout      time.Duration // TCP connect

	maxDatagramSize int
	inboxSize       int
	poolSize        int
}

// Option is a function that configures clients and servers.
type Option func(*options)

func newOptions(opt []Option) (options, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	return opts, checkOptions(&opts)
}

// checkOptions validates and sets default values for options.
func checkOptions(opts *options) error {
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.keepaliveDelay <= 0 {
		opts.keepaliveDelay = defaultKeepaliveDelay
	}

	if opts.keepalivePeriod <= 0 {
		opts.keepalivePeriod = defaultKeepalivePeriod
	}

	if opts.peerTimeout <= 0 {
		opts.peerTimeout = defaultPeerTimeout
	}

	if opts.handshakeTimeout <= 0 {
		opts.handshakeTimeout = defaultHandshakeTimeout
	}

	if opts.dialTimeout <= 0 {
		opts.dialTimeout = defaultDialTimeout
	}

	if opts.maxDatagramSize == 0 {
		opts.maxDatagramSize = defaultMaxDatagramSize
	}
	if opts.maxDatagramSize < minDatagramSize || opts.maxDatagramSize > maxDatagramSize {
		return errors.Errorf("max datagram size %d out of range [%d, %d]",
			opts.maxDatagramSize, minDatagramSize, maxDatagramSize)
	}

	if opts.inboxSize <= 0 {
		opts.inboxSize = defaultInboxSize
	}

	if opts.poolSize <= 0 {
		opts.poolSize = defaultPoolSize
	}

	for _, task := range opts.tasks {
		if task.Run == nil || task.Period <= 0 {
			return errors.Errorf("invalid task %q", task.Name)
		}
	}

	return nil
}

// LoggerOption returns an Option that sets the logger.
// If not set, a logrus backed logger is used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// TasksOption returns an Option that adds user periodic tasks. They start
// with the keepalive task once the endpoint is connected or serving, and
// stop with it.
func TasksOption(tasks ...Task) Option {
	return func(o *options) {
		o.tasks = append(o.tasks, tasks...)
	}
}

// KeepaliveOption returns an Option that sets when the first keepalive ping
// is sent and the interval between pings.
func KeepaliveOption(initialDelay, period time.Duration) Option {
	return func(o *options) {
		o.keepaliveDelay = initialDelay
		o.keepalivePeriod = period
	}
}

// NoKeepaliveOption returns an Option that disables the built-in keepalive
// task. Pings can still be sent by hand.
func NoKeepaliveOption() Option {
	return func(o *options) {
		o.noKeepalive = true
	}
}

// PeerTimeoutOption returns an Option that sets how long a UDP peer may stay
// silent before its ping fails. It should span several keepalive periods.
func PeerTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.peerTimeout = timeout
	}
}

// HandshakeTimeoutOption returns an Option that bounds the wait for the
// pong answering a UDP client's connect ping.
func HandshakeTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.handshakeTimeout = timeout
	}
}

// DialTimeoutOption returns an Option that bounds the TCP dial.
func DialTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = timeout
	}
}

// MaxDatagramSizeOption returns an Option that sets the largest datagram
// sent or received, frame tag included. A message must fit in one datagram.
func MaxDatagramSizeOption(size int) Option {
	return func(o *options) {
		o.maxDatagramSize = size
	}
}

// InboxSizeOption returns an Option that sets how many datagrams may wait
// for a UDP peer's handler. Datagrams beyond it are dropped.
func InboxSizeOption(size int) Option {
	return func(o *options) {
		o.inboxSize = size
	}
}

// SchedulerPoolSizeOption returns an Option that sets how many periodic
// tasks may run at the same time.
func SchedulerPoolSizeOption(size int) Option {
	return func(o *options) {
		o.poolSize = size
	}
}
