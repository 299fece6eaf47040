package types

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Copy returns a deep copy of the event, including its attribute map.
func (e *Event) Copy() *Event {
	if e == nil {
		return nil
	}
	dup := &Event{Type: e.Type}
	if e.Attributes != nil {
		dup.Attributes = make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			dup.Attributes[k] = v
		}
	}
	return dup
}
