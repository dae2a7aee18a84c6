package realtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/seuros/mfdash/internal/logging"
)

// ChannelName is the postgres NOTIFY channel carrying preference events.
const ChannelName = "mfdash_preference_events"

// Event types.
const (
	EventPreferenceUpdated = "preference.updated"
	EventPreferenceDeleted = "preference.deleted"
)

// maxNotifyPayload keeps NOTIFY under postgres' 8000 byte payload limit.
const maxNotifyPayload = 7900

// Event is what websocket subscribers receive.
type Event struct {
	Type      string    `json:"type"`
	Key       string    `json:"key"`
	Value     string    `json:"value,omitempty"`
	Truncated bool      `json:"truncated,omitempty"`
	At        time.Time `json:"at"`
}

// NewPreferenceEvent describes a write of value at key.
func NewPreferenceEvent(key, value string, at time.Time) Event {
	return Event{Type: EventPreferenceUpdated, Key: key, Value: value, At: at.UTC()}
}

// encode marshals ev, dropping the value when the payload would not fit a
// NOTIFY. Subscribers re-read truncated values through the API.
func (ev Event) encode() ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil || len(data) <= maxNotifyPayload {
		return data, err
	}
	ev.Value = ""
	ev.Truncated = true
	return json.Marshal(ev)
}

// Notify publishes ev on ChannelName so every instance's listener relays it.
func Notify(ctx context.Context, db *sql.DB, ev Event) {
	if db == nil {
		return
	}
	data, err := ev.encode()
	if err != nil {
		logging.L().Warn("failed to marshal realtime payload", "error", err)
		return
	}
	if _, err := db.ExecContext(ctx, "SELECT pg_notify($1, $2)", ChannelName, string(data)); err != nil {
		logging.L().Warn("failed to send realtime notification", "error", err)
	}
}

// PostgresNotifier returns a prefs notifier that goes through NOTIFY.
func PostgresNotifier(db *sql.DB) func(ctx context.Context, key, value string) {
	return func(ctx context.Context, key, value string) {
		Notify(ctx, db, NewPreferenceEvent(key, value, nowFunc()))
	}
}

// LocalNotifier returns a prefs notifier that broadcasts straight to hub. It
// is used by backends without a shared notification channel.
func LocalNotifier(hub *Hub) func(ctx context.Context, key, value string) {
	return func(_ context.Context, key, value string) {
		hub.Publish(NewPreferenceEvent(key, value, nowFunc()))
	}
}

var nowFunc = time.Now

// notifySource is the part of *pq.Listener the relay loop reads.
type notifySource interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// StartListener subscribes to ChannelName and relays every notification to
// hub until ctx is done.
func StartListener(ctx context.Context, databaseURL string, hub *Hub) error {
	listener := pq.NewListener(databaseURL, 5*time.Second, time.Minute, func(event pq.ListenerEventType, err error) {
		if err != nil {
			logging.L().Warn("realtime listener event", "event", event, "error", err)
		}
	})

	if err := listener.Listen(ChannelName); err != nil {
		_ = listener.Close()
		return err
	}

	go relay(ctx, listener, hub, time.Minute)
	return nil
}

func relay(ctx context.Context, src notifySource, hub *Hub, pingEvery time.Duration) {
	defer func() {
		_ = src.Close()
	}()

	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	notifications := src.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-notifications:
			// nil after a reconnect; events sent during the gap are lost
			if n == nil {
				continue
			}
			hub.Broadcast([]byte(n.Extra))
		case <-ticker.C:
			if err := src.Ping(); err != nil {
				logging.L().Warn("realtime listener ping failed", "error", err)
			}
		}
	}
}
