package models

import "strings"

// Event is a typed list of key/value attributes, as emitted on chain.
type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func NewEvent(typ string) Event {
	return Event{Type: typ}
}

// Add appends an attribute and returns the event for chaining.
func (e Event) Add(key, value string) Event {
	e.Attributes = append(e.Attributes, Attribute{Key: key, Value: value})
	return e
}

// Get returns the first attribute value for key.
func (e Event) Get(key string) (string, bool) {
	for _, attr := range e.Attributes {
		if attr.Key == key {
			return strings.TrimSpace(attr.Value), true
		}
	}
	return "", false
}
