package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Response is the normalized outcome of an executed Request
type Response struct {
	Result json.RawMessage `json:"result"`
	Time   TimeRecord      `json:"time"`
	Total  *int            `json:"total,omitempty"` // list methods only
	Next   *int            `json:"next,omitempty"`  // offset of the next page, list methods only
}

// ResultIsNull returns true if the result is absent or JSON null
func (r *Response) ResultIsNull() bool {
	if r == nil || len(r.Result) == 0 {
		return true
	}
	return bytes.Equal(r.Result, []byte("null"))
}

// Decode unmarshals the result into v
func (r *Response) Decode(v interface{}) error {
	if r.ResultIsNull() {
		return nil
	}
	return json.Unmarshal(r.Result, v)
}

// parseEnvelope extracts result and time from a single call reply
func parseEnvelope(method string, data json.RawMessage) (*Response, error) {
	fields, err := decodeObject(data)
	if err != nil {
		return nil, &MalformedEnvelopeError{Method: method, Field: "envelope", Err: err}
	}

	result, ok := fields["result"]
	if !ok {
		return nil, &MalformedEnvelopeError{Method: method, Field: "result"}
	}
	rawTime, ok := fields["time"]
	if !ok {
		return nil, &MalformedEnvelopeError{Method: method, Field: "time"}
	}

	var t TimeRecord
	if err := json.Unmarshal(rawTime, &t); err != nil {
		return nil, &MalformedEnvelopeError{Method: method, Field: "time", Err: err}
	}

	resp := &Response{Result: result, Time: t}
	if raw, ok := fields["total"]; ok {
		if resp.Total, err = decodeInt(raw); err != nil {
			return nil, &MalformedEnvelopeError{Method: method, Field: "total", Err: err}
		}
	}
	if raw, ok := fields["next"]; ok {
		if resp.Next, err = decodeInt(raw); err != nil {
			return nil, &MalformedEnvelopeError{Method: method, Field: "next", Err: err}
		}
	}

	return resp, nil
}

// decodeObject decodes a JSON object into its raw fields
func decodeObject(data json.RawMessage) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse reply: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("reply is not an object")
	}
	return fields, nil
}

// decodeInt decodes a number or numeric string; null yields nil
func decodeInt(raw json.RawMessage) (*int, error) {
	if isNull(raw) {
		return nil, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("not a number: %s", string(raw))
		}
		n = json.Number(s)
	}

	i, err := strconv.Atoi(n.String())
	if err != nil {
		return nil, fmt.Errorf("not an integer: %s", n)
	}
	return &i, nil
}

// isNull reports whether raw is empty or JSON null
func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
