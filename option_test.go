package particle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckOptions_DefaultValues(t *testing.T) {
	opts, err := newOptions(nil)
	require.NoError(t, err)

	assert.NotNil(t, opts.logger)
	assert.Equal(t, defaultKeepaliveDelay, opts.keepaliveDelay)
	assert.Equal(t, defaultKeepalivePeriod, opts.keepalivePeriod)
	assert.Equal(t, defaultPeerTimeout, opts.peerTimeout)
	assert.Equal(t, defaultHandshakeTimeout, opts.handshakeTimeout)
	assert.Equal(t, defaultDialTimeout, opts.dialTimeout)
	assert.Equal(t, defaultMaxDatagramSize, opts.maxDatagramSize)
	assert.Equal(t, defaultInboxSize, opts.inboxSize)
	assert.Equal(t, defaultPoolSize, opts.poolSize)
	assert.False(t, opts.noKeepalive)
}

func TestOptions_MultipleOptions(t *testing.T) {
	logger := &mockLogger{}
	task := NewTask("report", time.Second, time.Minute, func(context.Context) error { return nil })

	opts, err := newOptions([]Option{
		LoggerOption(logger),
		TasksOption(task),
		KeepaliveOption(time.Millisecond, 50*time.Millisecond),
		PeerTimeoutOption(time.Second),
		HandshakeTimeoutOption(200 * time.Millisecond),
		DialTimeoutOption(time.Second),
		MaxDatagramSizeOption(512),
		InboxSizeOption(4),
		SchedulerPoolSizeOption(3),
	})
	require.NoError(t, err)

	assert.Same(t, logger, opts.logger)
	require.Len(t, opts.tasks, 1)
	assert.Equal(t, "report", opts.tasks[0].Name)
	assert.Equal(t, time.Millisecond, opts.keepaliveDelay)
	assert.Equal(t, 50*time.Millisecond, opts.keepalivePeriod)
	assert.Equal(t, time.Second, opts.peerTimeout)
	assert.Equal(t, 200*time.Millisecond, opts.handshakeTimeout)
	assert.Equal(t, time.Second, opts.dialTimeout)
	assert.Equal(t, 512, opts.maxDatagramSize)
	assert.Equal(t, 4, opts.inboxSize)
	assert.Equal(t, 3, opts.poolSize)
}

func TestNoKeepaliveOption(t *testing.T) {
	opts, err := newOptions([]Option{NoKeepaliveOption()})
	require.NoError(t, err)
	assert.True(t, opts.noKeepalive)
}

func TestMaxDatagramSizeOption_Range(t *testing.T) {
	_, err := newOptions([]Option{MaxDatagramSizeOption(minDatagramSize - 1)})
	assert.Error(t, err)

	_, err = newOptions([]Option{MaxDatagramSizeOption(maxDatagramSize + 1)})
	assert.Error(t, err)

	_, err = newOptions([]Option{MaxDatagramSizeOption(maxDatagramSize)})
	assert.NoError(t, err)
}

func TestTasksOption_Invalid(t *testing.T) {
	_, err := newOptions([]Option{TasksOption(Task{Name: "no-run", Period: time.Second})})
	assert.Error(t, err)

	_, err = newOptions([]Option{TasksOption(NewTask("no-period", 0, 0, func(context.Context) error { return nil }))})
	assert.Error(t, err)
}
