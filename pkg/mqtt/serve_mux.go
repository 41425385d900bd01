package mqtt

import (
	"fmt"
	"sync"

	"github.com/eclipse/paho.golang/paho"
)

// Message is an inbound publish.
type Message = paho.PublishReceived

// Handler is the interface that wraps the HandleMessage method.
type Handler interface {
	HandleMessage(Message) error
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(Message) error

func (f HandlerFunc) HandleMessage(m Message) error {
	return f(m)
}

type route struct {
	filter string
	h      Handler
}

// ServeMux dispatches inbound messages to every handler whose filter
// matches the topic, in registration order.
type ServeMux struct {
	mu     sync.RWMutex
	routes []route
}

// NewServeMux returns an empty ServeMux.
func NewServeMux() *ServeMux {
	return new(ServeMux)
}

// Handle registers h for filter.
func (sm *ServeMux) Handle(filter string, h Handler) error {
	if err := ValidateFilter(filter); err != nil {
		return err
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.routes = append(sm.routes, route{filter, h})
	return nil
}

// HandleFunc registers f for filter.
func (sm *ServeMux) HandleFunc(filter string, f HandlerFunc) error {
	return sm.Handle(filter, f)
}

// HandleMessage dispatches m. It returns an error when no filter matches or
// a handler fails.
func (sm *ServeMux) HandleMessage(m Message) error {
	topic := m.Packet.Topic
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	matched := false
	for _, r := range sm.routes {
		if !Match(r.filter, topic) {
			continue
		}
		matched = true
		if err := r.h.HandleMessage(m); err != nil {
			return err
		}
	}
	if !matched {
		return fmt.Errorf("mqtt: no handler for %s", topic)
	}
	return nil
}
