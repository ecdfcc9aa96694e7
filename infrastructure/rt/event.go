// Package rt carries the realtime change feed: every committed write to a
// watched collection is published as an insert/update/delete event on a
// scope channel, and sessions subscribe to the scopes they have open.
package rt

import (
	"context"
	"encoding/json"
)

type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

const (
	TableMessages      = "messages"
	TableNotifications = "notifications"
)

// Event mirrors one row change. New carries the row after an insert or
// update, Old carries it before an update or delete.
type Event struct {
	Action Action          `json:"action"`
	Table  string          `json:"table"`
	Key    string          `json:"key"`
	New    json.RawMessage `json:"new,omitempty"`
	Old    json.RawMessage `json:"old,omitempty"`
}

// NewEvent builds an event, marshaling the before/after rows. Key is the
// subscription scope: the conversation id for messages, the recipient id
// for notifications.
func NewEvent(action Action, table, key string, newRow, oldRow any) (Event, error) {
	ev := Event{
		Action: action,
		Table:  table,
		Key:    key,
	}

	if newRow != nil {
		raw, err := json.Marshal(newRow)
		if err != nil {
			return Event{}, err
		}
		ev.New = raw
	}
	if oldRow != nil {
		raw, err := json.Marshal(oldRow)
		if err != nil {
			return Event{}, err
		}
		ev.Old = raw
	}

	return ev, nil
}

func (e Event) DecodeNew(v any) error {
	return json.Unmarshal(e.New, v)
}

func (e Event) DecodeOld(v any) error {
	return json.Unmarshal(e.Old, v)
}

// Subscription is an open scope on the feed. The handle is owned by
// whoever opened it and must be closed when the scope goes away.
type Subscription interface {
	Events() <-chan Event
	Close()
}

// Feed is the transport. Events for one row are delivered in publish
// order; delivery is at-least-once, so appliers must be idempotent.
type Feed interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, table, key string) (Subscription, error)
}

func channelName(table, key string) string {
	return "rt:" + table + ":" + key
}
