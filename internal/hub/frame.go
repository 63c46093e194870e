package hub

import "encoding/json"

// unflatten splits a flat legacy frame into its event name and the
// remaining fields re-encoded as an object.
func unflatten(line []byte) (event string, data json.RawMessage, ok bool) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(line, &fields); err != nil {
		return "", nil, false
	}
	rawEvent, present := fields["event"]
	if !present {
		return "", nil, false
	}
	if err := json.Unmarshal(rawEvent, &event); err != nil || event == "" {
		return "", nil, false
	}
	delete(fields, "event")
	data, err := json.Marshal(fields)
	if err != nil {
		return "", nil, false
	}
	return event, data, true
}

func jsonMarshalFrame(event string, data json.RawMessage) ([]byte, error) {
	return json.Marshal(Frame{Event: event, Data: data})
}
