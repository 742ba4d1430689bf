package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	lists   map[string][]string
	ttls    map[string]time.Duration
	pushErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{lists: map[string][]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.pushErr != nil {
		cmd.SetErr(f.pushErr)
		return cmd
	}
	for _, v := range values {
		var s string
		switch vv := v.(type) {
		case []byte:
			s = string(vv)
		case string:
			s = vv
		}
		f.lists[key] = append([]string{s}, f.lists[key]...)
	}
	cmd.SetVal(int64(len(f.lists[key])))
	return cmd
}

func (f *fakeRedis) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	list := f.lists[key]
	if start < 0 {
		start = 0
	}
	if stop >= int64(len(list)) {
		stop = int64(len(list)) - 1
	}
	if start > stop {
		cmd.SetVal(nil)
		return cmd
	}
	cmd.SetVal(append([]string(nil), list[start:stop+1]...))
	return cmd
}

func (f *fakeRedis) LLen(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(f.lists[key])))
	return cmd
}

func (f *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.ttls[key] = expiration
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func TestQueuePushAndList(t *testing.T) {
	client := newFakeRedis()
	q := newQueueWithCommands(client)
	ctx := context.Background()

	err := q.PushUnresolved(ctx, "evt_1", "invoice.payment_succeeded", "cus_1", "sub_1", "no user reference")
	require.NoError(t, err)

	tasks, err := q.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	task := tasks[0]
	assert.NotEmpty(t, task.TaskID)
	assert.Equal(t, "evt_1", task.EventID)
	assert.Equal(t, "invoice.payment_succeeded", task.EventType)
	assert.Equal(t, "cus_1", task.CustomerID)
	assert.Equal(t, "sub_1", task.SubscriptionID)
	assert.Equal(t, "no user reference", task.Reason)
	assert.False(t, task.CreatedAt.IsZero())
	assert.Equal(t, TaskTTL, client.ttls[QueueKey])
}

func TestQueueListNewestFirst(t *testing.T) {
	client := newFakeRedis()
	q := newQueueWithCommands(client)
	ctx := context.Background()

	require.NoError(t, q.PushUnresolved(ctx, "evt_1", "t", "", "", ""))
	require.NoError(t, q.PushUnresolved(ctx, "evt_2", "t", "", "", ""))

	tasks, err := q.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "evt_2", tasks[0].EventID)
	assert.Equal(t, "evt_1", tasks[1].EventID)
}

func TestQueueListLimit(t *testing.T) {
	client := newFakeRedis()
	q := newQueueWithCommands(client)
	ctx := context.Background()

	for _, id := range []string{"evt_1", "evt_2", "evt_3"} {
		require.NoError(t, q.PushUnresolved(ctx, id, "t", "", "", ""))
	}

	tasks, err := q.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestQueueListSkipsMalformedEntries(t *testing.T) {
	client := newFakeRedis()
	client.lists[QueueKey] = []string{"{not json", `{"task_id":"x","event_id":"evt_1"}`}
	q := newQueueWithCommands(client)

	tasks, err := q.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "evt_1", tasks[0].EventID)
}

func TestQueuePushError(t *testing.T) {
	client := newFakeRedis()
	client.pushErr = errors.New("connection refused")
	q := newQueueWithCommands(client)

	err := q.PushUnresolved(context.Background(), "evt_1", "t", "", "", "")
	assert.Error(t, err)
}
