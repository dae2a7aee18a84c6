package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPreferenceEventNormalizesTime(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	at := time.Date(2026, 10, 18, 13, 0, 0, 0, loc)

	ev := NewPreferenceEvent("tables.top-pages", "v", at)

	assert.Equal(t, EventPreferenceUpdated, ev.Type)
	assert.Equal(t, "tables.top-pages", ev.Key)
	assert.Equal(t, time.UTC, ev.At.Location())
	assert.True(t, at.Equal(ev.At))
}

func TestEventEncodeTruncatesOversizedValues(t *testing.T) {
	ev := NewPreferenceEvent("filters.huge", strings.Repeat("x", maxNotifyPayload), time.Now())

	data, err := ev.encode()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), maxNotifyPayload)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Truncated)
	assert.Empty(t, decoded.Value)
	assert.Equal(t, "filters.huge", decoded.Key)
}

func TestNotifyPublishesPayload(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ev := NewPreferenceEvent("filters.device", "[]", time.Now())
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	mock.ExpectExec("SELECT pg_notify").
		WithArgs(ChannelName, string(data)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	Notify(context.Background(), db, ev)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifyHandlesExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("SELECT pg_notify").
		WillReturnError(assert.AnError)

	Notify(context.Background(), db, NewPreferenceEvent("k", "v", time.Now()))
	Notify(context.Background(), nil, NewPreferenceEvent("k", "v", time.Now()))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresNotifierUsesClock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fixed := time.Date(2026, 10, 18, 8, 30, 0, 0, time.UTC)
	nowFunc = func() time.Time { return fixed }
	t.Cleanup(func() { nowFunc = time.Now })

	data, err := json.Marshal(NewPreferenceEvent("filters.os", "x", fixed))
	require.NoError(t, err)
	mock.ExpectExec("SELECT pg_notify").
		WithArgs(ChannelName, string(data)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	PostgresNotifier(db)(context.Background(), "filters.os", "x")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLocalNotifierBroadcasts(t *testing.T) {
	hub := NewHub()
	t.Cleanup(hub.Close)
	sub := &Subscriber{hub: hub, conn: &testConn{}, send: make(chan []byte, 1)}
	hub.register <- sub
	waitForCondition(t, time.Second, func() bool { return hub.GetClientCount() == 1 })

	LocalNotifier(hub)(context.Background(), "filters.device", "v")

	select {
	case got := <-sub.send:
		assert.Contains(t, string(got), `"key":"filters.device"`)
	case <-time.After(time.Second):
		t.Fatal("local notifier did not broadcast")
	}
}

type fakeSource struct {
	ch     chan *pq.Notification
	mu     sync.Mutex
	pings  int
	closed bool
}

func (f *fakeSource) NotificationChannel() <-chan *pq.Notification { return f.ch }

func (f *fakeSource) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestRelayForwardsNotificationsAndPings(t *testing.T) {
	hub := NewHub()
	t.Cleanup(hub.Close)
	sub := &Subscriber{hub: hub, conn: &testConn{}, send: make(chan []byte, 4)}
	hub.register <- sub
	waitForCondition(t, time.Second, func() bool { return hub.GetClientCount() == 1 })

	src := &fakeSource{ch: make(chan *pq.Notification, 2)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay(ctx, src, hub, 10*time.Millisecond)
		close(done)
	}()

	src.ch <- nil
	src.ch <- &pq.Notification{Channel: ChannelName, Extra: `{"type":"preference.updated"}`}

	select {
	case got := <-sub.send:
		assert.Equal(t, `{"type":"preference.updated"}`, string(got))
	case <-time.After(time.Second):
		t.Fatal("notification was not relayed")
	}

	waitForCondition(t, time.Second, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.pings > 0
	})

	cancel()
	<-done
	src.mu.Lock()
	assert.True(t, src.closed)
	src.mu.Unlock()
}
