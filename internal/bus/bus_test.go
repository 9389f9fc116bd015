package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

func newTestBus(capacity int) *Bus {
	return New(capacity, zap.NewNop())
}

func TestPublish_AssignsMonotonicSequence(t *testing.T) {
	b := newTestBus(10)

	for i := 0; i < 5; i++ {
		seq, err := b.Publish(EventMeasurement, map[string]int{"n": i})
		require.NoError(t, err)
		assert.Equal(t, uint64(i), seq)
	}

	last, ok := b.LastSeq()
	require.True(t, ok)
	assert.Equal(t, uint64(4), last)
}

func TestSubscribe_ReplaysBacklogInOrder(t *testing.T) {
	b := newTestBus(100)
	for i := 0; i < 10; i++ {
		_, err := b.Publish(EventMeasurement, map[string]int{"n": i})
		require.NoError(t, err)
	}

	sub := b.Subscribe(0)
	ctx := context.Background()

	// 从 0 回放：序列号严格递增、无空洞
	for i := 0; i < 10; i++ {
		ev, keepAlive, err := sub.Next(ctx, time.Second)
		require.NoError(t, err)
		require.False(t, keepAlive)
		assert.Equal(t, uint64(i), ev.Seq)
		assert.Equal(t, EventMeasurement, ev.Type)
	}
}

func TestSubscribe_ResumeFromSequence(t *testing.T) {
	b := newTestBus(100)
	for i := 0; i < 10; i++ {
		_, err := b.Publish(EventMeasurement, map[string]int{"n": i})
		require.NoError(t, err)
	}

	sub := b.Subscribe(7)
	ev, keepAlive, err := sub.Next(context.Background(), time.Second)
	require.NoError(t, err)
	require.False(t, keepAlive)
	assert.Equal(t, uint64(7), ev.Seq)
}

func TestSubscribe_CursorBehindEvictionHorizon(t *testing.T) {
	b := newTestBus(5)
	for i := 0; i < 20; i++ {
		_, err := b.Publish(EventMeasurement, map[string]int{"n": i})
		require.NoError(t, err)
	}

	// 前 15 个事件已淘汰：游标 0 静默跳到最旧保留事件（seq=15），无错误
	sub := b.Subscribe(0)
	ev, keepAlive, err := sub.Next(context.Background(), time.Second)
	require.NoError(t, err)
	require.False(t, keepAlive)
	assert.Equal(t, uint64(15), ev.Seq)
}

func TestPublish_NeverBlocksOnSlowSubscriber(t *testing.T) {
	b := newTestBus(10)
	_ = b.Subscribe(0) // 从不读取的订阅者

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			_, _ = b.Publish(EventMeasurement, map[string]int{"n": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a subscriber that never reads")
	}
}

func TestNext_WakesBlockedSubscriber(t *testing.T) {
	b := newTestBus(10)
	sub := b.Subscribe(0)

	type result struct {
		ev  *Event
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ev, _, err := sub.Next(context.Background(), 30*time.Second)
		ch <- result{ev, err}
	}()

	time.Sleep(50 * time.Millisecond)
	_, err := b.Publish(EventEpisodeStart, map[string]string{"type": "fall_critical"})
	require.NoError(t, err)

	select {
	case r := <-ch:
		require.NoError(t, r.err)
		assert.Equal(t, EventEpisodeStart, r.ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber was not woken by publish")
	}
}

func TestNext_KeepAliveOnIdle(t *testing.T) {
	b := newTestBus(10)
	sub := b.Subscribe(0)

	ev, keepAlive, err := sub.Next(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.True(t, keepAlive)
}

func TestNext_ContextCancellation(t *testing.T) {
	b := newTestBus(10)
	sub := b.Subscribe(0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, _, err := sub.Next(ctx, 30*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscriptions_AreIndependent(t *testing.T) {
	b := newTestBus(100)
	for i := 0; i < 3; i++ {
		_, err := b.Publish(EventMeasurement, map[string]int{"n": i})
		require.NoError(t, err)
	}

	a := b.Subscribe(0)
	c := b.Subscribe(0)
	assert.NotEqual(t, a.ID, c.ID)

	ctx := context.Background()
	evA, _, err := a.Next(ctx, time.Second)
	require.NoError(t, err)

	// a 前进不影响 c 的游标
	evC, _, err := c.Next(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, evA.Seq, evC.Seq)
}
