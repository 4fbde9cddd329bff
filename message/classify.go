package message

import (
	"bytes"
	"encoding/json"
)

// Kind tags a decoded value with the shape it matched.
type Kind int

const (
	KindInvalid Kind = iota
	KindRequest
	KindNotification
	KindResponse
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "invalid"
	}
}

// Message is the result of classifying one raw JSON value. Exactly one of
// Request, Notification or Response is set, matching Kind; for KindInvalid
// none is set and Reason says why.
type Message struct {
	Kind         Kind
	Request      *Request
	Notification *Notification
	Response     *Response
	Raw          json.RawMessage
	Reason       string
}

// Fields is a presence-aware view of one JSON object: a key that is absent is
// missing from the map, a key holding null maps to the bytes "null".
type Fields map[string]json.RawMessage

// ParseFields decodes raw as a JSON object. Anything else reports false.
func ParseFields(raw []byte) (Fields, bool) {
	var f Fields
	if err := json.Unmarshal(raw, &f); err != nil || f == nil {
		return nil, false
	}
	return f, true
}

func (f Fields) has(key string) bool {
	_, ok := f[key]
	return ok
}

// set reports whether key is present and holds something other than null.
func (f Fields) set(key string) bool {
	v, ok := f[key]
	return ok && !isNull(v)
}

func (f Fields) leading(key string) byte {
	v := bytes.TrimSpace(f[key])
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// IsRequest: method is a string, params is an array and id is present. A null
// id still counts as present.
func IsRequest(f Fields) bool {
	return f.has("method") && f.leading("method") == '"' &&
		f.has("params") && f.leading("params") == '[' &&
		f.has("id")
}

// IsNotification assumes f already satisfies IsRequest.
func IsNotification(f Fields) bool {
	return !f.set("id")
}

// IsSuccess: no error set and a result present (null result is a void
// success).
func IsSuccess(f Fields) bool {
	return !f.set("error") && f.has("result")
}

// IsError: an error set and no result set. Falsy errors such as false, 0 or ""
// still count as set.
func IsError(f Fields) bool {
	return !f.set("result") && f.set("error")
}

// IsResponse: exactly one of the success or error shapes, and an id.
func IsResponse(f Fields) bool {
	return (IsSuccess(f) || IsError(f)) && f.has("id")
}

// Classify decodes raw into the single shape it matches. Response is checked
// first, then Request with Notification as a sub-case.
func Classify(raw json.RawMessage) Message {
	m := Message{Raw: raw}
	f, ok := ParseFields(raw)
	if !ok {
		m.Reason = "not a JSON object"
		return m
	}

	switch {
	case IsResponse(f):
		resp := &Response{ID: json.RawMessage(f["id"])}
		if f.set("result") {
			resp.Result = json.RawMessage(f["result"])
		}
		if f.set("error") {
			resp.Error = json.RawMessage(f["error"])
		}
		m.Kind = KindResponse
		m.Response = resp

	case IsRequest(f):
		var params []json.RawMessage
		if err := json.Unmarshal(f["params"], &params); err != nil {
			m.Reason = "params: " + err.Error()
			return m
		}
		args := make([]any, len(params))
		for i, p := range params {
			args[i] = p
		}
		var method string
		if err := json.Unmarshal(f["method"], &method); err != nil {
			m.Reason = "method: " + err.Error()
			return m
		}
		if IsNotification(f) {
			m.Kind = KindNotification
			m.Notification = &Notification{Method: method, Params: args}
		} else {
			m.Kind = KindRequest
			m.Request = &Request{Method: method, Params: args, ID: json.RawMessage(f["id"])}
		}

	case f.set("result") && f.set("error"):
		m.Reason = "response carries both result and error"
	default:
		m.Reason = "matches no request, notification or response shape"
	}
	return m
}
