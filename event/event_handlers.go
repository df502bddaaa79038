package event

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

/*
return nil if not support
*/
type EventHandler func(e *EventRecord) *EventHandleResult

type EventHandleResult struct {
	Success           bool
	Message           string
	HandlerIdentifier string
}

// HandlerTable dispatches committed events to handlers in registration order.
type HandlerTable struct {
	ids      []string
	handlers map[string]EventHandler
}

func NewHandlerTable() *HandlerTable {
	return &HandlerTable{handlers: map[string]EventHandler{}}
}

func (t *HandlerTable) Register(id string, handler EventHandler) error {
	if id == "" || handler == nil {
		return fmt.Errorf("invalid event handler registration %q", id)
	}
	if _, found := t.handlers[id]; found {
		return fmt.Errorf("event handler %q already registered", id)
	}
	t.ids = append(t.ids, id)
	t.handlers[id] = handler
	return nil
}

func (t *HandlerTable) HandlerIds() []string {
	ids := make([]string, len(t.ids))
	copy(ids, t.ids)
	return ids
}

// Dispatch must only be called after the transaction that persisted the records committed.
func (t *HandlerTable) Dispatch(records ...*EventRecord) []EventHandleResult {
	results := []EventHandleResult{}
	if t == nil {
		return results
	}
	for _, record := range records {
		for _, id := range t.ids {
			logrus.Debug("pre handle event ", record.Event)
			r := t.handlers[id](record)
			if r == nil {
				continue
			}
			if r.HandlerIdentifier == "" {
				r.HandlerIdentifier = id
			}
			results = append(results, *r)

			if r.Success {
				logrus.Info("post handle event. ", r)
			} else {
				logrus.Error("post handler error. ", r)
			}
		}
	}
	return results
}

// LoggingHandler writes every event as a structured log line.
func LoggingHandler(e *EventRecord) *EventHandleResult {
	fields := logrus.Fields{
		"eventId":    e.ID,
		"sourceType": e.SourceType,
		"sourceId":   e.SourceId,
		"category":   e.EventCategory,
		"creator":    e.CreatorName,
	}
	for _, p := range e.UpdatedProperties {
		fields[p.PropertyName] = p.NewValue
	}
	logrus.WithFields(fields).Info(e.SourceDesc)
	return &EventHandleResult{Success: true, HandlerIdentifier: "log"}
}
