package particle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Errors returned by codec, connection and server operations.
var (
	// ErrInvalidMode is returned when a codec is read from without a source
	// or written to without a sink.
	ErrInvalidMode = errors.New("codec mode does not support operation")
	// ErrStringTooLong is returned when a string does not fit a 2-byte length header.
	ErrStringTooLong = errors.New("string too long")
	// ErrInvalidBool is returned when a boolean byte is neither 0 nor 1.
	ErrInvalidBool = errors.New("invalid boolean value")
	// ErrMessageTooLarge is returned when a message exceeds the maximum allowed size.
	ErrMessageTooLarge = errors.New("message too large")
	// ErrUnknownFrame is returned when a frame carries an unknown tag.
	ErrUnknownFrame = errors.New("unknown frame")
)

// Errors returned by lifecycle operations.
var (
	ErrAlreadyConnected   = errors.New("already connected")
	ErrNotConnected       = errors.New("not connected")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrPingTimeout        = errors.New("peer did not answer pings")
	ErrHandshakeFailed    = errors.New("ping handshake failed")
	ErrServerClosed       = errors.New("server closed")

	// ErrInvalidTranslator is returned when no translator is provided.
	ErrInvalidTranslator = errors.New("invalid translator")
	// ErrInvalidHandler is returned when no callback handler is provided.
	ErrInvalidHandler = errors.New("invalid handler")
)

// ReadError reports a failed or malformed codec read.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string { return "particle: read " + e.Op + ": " + e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }

// WriteError reports a failed codec write.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string { return "particle: write " + e.Op + ": " + e.Err.Error() }
func (e *WriteError) Unwrap() error { return e.Err }

// ConnectionError reports a client side lifecycle failure.
type ConnectionError struct {
	Op   string
	Host Host
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("particle: %s %s: %v", e.Op, e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// HostError reports a server side failure. ID is uuid.Nil for operations
// that are not bound to a single connection.
type HostError struct {
	Op  string
	ID  uuid.UUID
	Err error
}

func (e *HostError) Error() string {
	if e.ID == uuid.Nil {
		return fmt.Sprintf("particle: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("particle: %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *HostError) Unwrap() error { return e.Err }

// BroadcastError lists the connections a broadcast could not reach.
// Connections not listed were sent to successfully.
type BroadcastError struct {
	Failed map[uuid.UUID]error
}

func (e *BroadcastError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id.String())
	}
	sort.Strings(ids)
	return fmt.Sprintf("particle: broadcast failed for %d connection(s): %s", len(ids), strings.Join(ids, ", "))
}
