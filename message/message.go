// Package message defines the three JSON-RPC shapes exchanged between peers and
// the validating decode step that turns one raw JSON value into exactly one of
// them.
//
// Wire shapes (one JSON object per message, framing is done elsewhere):
//
//	Request:      {"method": string, "params": array, "id": <any>}
//	Notification: {"method": string, "params": array, "id": null}
//	Response:     {"result": <any|null>, "error": <any|null>, "id": <any>}
package message

import (
	"encoding/json"
	"fmt"
)

// Request is a call that expects exactly one Response carrying the same ID.
type Request struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
	ID     any    `json:"id"`
}

// Notification is a fire-and-forget call. Its id is always null on the wire.
type Notification struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// Response answers the Request whose id it carries. Both result and error are
// always written, a missing one as null.
type Response struct {
	Result any `json:"result"`
	Error  any `json:"error"`
	ID     any `json:"id"`
}

// NewRequest builds a request with a fresh id taken from gen.
func NewRequest(gen IDGenerator, method string, params []any) *Request {
	return &Request{
		Method: method,
		Params: normalizeParams(params),
		ID:     gen.Next(),
	}
}

// NewNotification builds a notification; it never gets a response.
func NewNotification(method string, params []any) *Notification {
	return &Notification{
		Method: method,
		Params: normalizeParams(params),
	}
}

// NewResponse builds a response for id. A nil err is written as null.
func NewResponse(result any, id any, err any) *Response {
	return &Response{
		Result: result,
		Error:  err,
		ID:     id,
	}
}

// MarshalJSON writes the explicit null id so receivers classify the value as a
// notification.
func (n *Notification) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Method string `json:"method"`
		Params []any  `json:"params"`
		ID     any    `json:"id"`
	}{n.Method, normalizeParams(n.Params), nil})
}

// Bind decodes the i-th positional parameter into v.
func (r *Request) Bind(i int, v any) error {
	return bindParam(r.Params, i, v)
}

// Bind decodes the i-th positional parameter into v.
func (n *Notification) Bind(i int, v any) error {
	return bindParam(n.Params, i, v)
}

func bindParam(params []any, i int, v any) error {
	if i < 0 || i >= len(params) {
		return fmt.Errorf("param %d out of range (have %d)", i, len(params))
	}
	raw, ok := params[i].(json.RawMessage)
	if !ok {
		// locally constructed params: round-trip through JSON
		b, err := json.Marshal(params[i])
		if err != nil {
			return err
		}
		raw = b
	}
	return json.Unmarshal(raw, v)
}

// params must always be an array on the wire, never null
func normalizeParams(params []any) []any {
	if params == nil {
		return []any{}
	}
	return params
}
