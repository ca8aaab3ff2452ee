// Package core provides the shared domain types for DiPeO diagram
// execution: envelopes, node/execution state, and the closed node-type and
// content-type tagged unions that flow through the engine.
package core

import "encoding/json"

// ContentType classifies the body carried by an Envelope. It is a closed
// tag, not an open string, so handlers can switch over it exhaustively.
type ContentType string

const (
	ContentRawText ContentType = "raw_text"
	ContentObject  ContentType = "object"
	ContentBinary  ContentType = "binary"
	ContentError   ContentType = "error"
)

// Envelope is the immutable value that flows along an edge. It carries a
// body, a classification tag, and provenance/trace metadata. Envelopes are
// never mutated after construction — every method returns a new value.
type Envelope struct {
	Body        any
	ContentType ContentType
	ProducedBy  NodeID
	TraceID     string
	Meta        map[string]any
}

// NewEnvelope classifies body and constructs an Envelope. The classification
// follows the same type-switch a Go reducer would use to merge deltas:
// strings are raw text, maps/slices are structured objects, []byte is
// binary, and error values are tagged as error envelopes.
func NewEnvelope(producedBy NodeID, body any) Envelope {
	return Envelope{
		Body:        body,
		ContentType: classify(body),
		ProducedBy:  producedBy,
	}
}

func classify(body any) ContentType {
	switch body.(type) {
	case nil:
		return ContentObject
	case string:
		return ContentRawText
	case []byte:
		return ContentBinary
	case error:
		return ContentError
	case map[string]any, []any:
		return ContentObject
	default:
		// Structs, numbers, bools, and anything else that survives a JSON
		// round trip are treated as structured objects.
		return ContentObject
	}
}

// WithMeta returns a copy of e with key set to value in Meta.
func (e Envelope) WithMeta(key string, value any) Envelope {
	next := e
	next.Meta = make(map[string]any, len(e.Meta)+1)
	for k, v := range e.Meta {
		next.Meta[k] = v
	}
	next.Meta[key] = value
	return next
}

// WithTraceID returns a copy of e with TraceID set to id, the hook
// core/transport's span wrapper uses to propagate an OpenTelemetry trace ID
// onto the envelope a node handler returns.
func (e Envelope) WithTraceID(id string) Envelope {
	next := e
	next.TraceID = id
	return next
}

// AsError returns a new error-classified Envelope describing kind/msg,
// produced by the same node.
func (e Envelope) AsError(kind, msg string) Envelope {
	return Envelope{
		Body:        map[string]any{"kind": kind, "message": msg},
		ContentType: ContentError,
		ProducedBy:  e.ProducedBy,
		TraceID:     e.TraceID,
		Meta:        e.Meta,
	}
}

// IsError reports whether the envelope is tagged as an error.
func (e Envelope) IsError() bool {
	return e.ContentType == ContentError
}

// CoerceTo converts the envelope's body to the requested content type.
// Only object<->raw_text conversions are defined; any other pair — or a
// raw_text body that is not valid JSON when coercing to object — fails
// loud rather than silently truncating data.
func (e Envelope) CoerceTo(target ContentType) (Envelope, error) {
	if e.ContentType == target {
		return e, nil
	}
	switch {
	case e.ContentType == ContentObject && target == ContentRawText:
		b, err := json.Marshal(e.Body)
		if err != nil {
			return Envelope{}, &CoercionError{From: e.ContentType, To: target, Cause: err}
		}
		next := e
		next.Body = string(b)
		next.ContentType = ContentRawText
		return next, nil
	case e.ContentType == ContentRawText && target == ContentObject:
		s, ok := e.Body.(string)
		if !ok {
			return Envelope{}, &CoercionError{From: e.ContentType, To: target, Cause: errNotAString}
		}
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return Envelope{}, &CoercionError{From: e.ContentType, To: target, Cause: err}
		}
		next := e
		next.Body = v
		next.ContentType = ContentObject
		return next, nil
	default:
		return Envelope{}, &CoercionError{From: e.ContentType, To: target, Cause: errUnsupportedCoercion}
	}
}
