// Package wire defines the framed message envelope exchanged between the
// proxy and producer/consumer websocket connections.
//
// # Description
//
// The proxy core treats every delta as an opaque, ordered unit of work; it
// never parses or merges delta payloads. This package owns exactly the
// tagged-union framing needed to recognize a message's type and, for
// new_report messages, the one field (ReportID) the core inspects.
//
// # Thread Safety
//
// Envelope is a plain value type; callers marshal/unmarshal it per message
// with no shared mutable state.
package wire

import "encoding/json"

// Type identifies the recognized envelope variants.
type Type string

const (
	// TypeNewReport is the mandatory first producer message, and the
	// mandatory first message the proxy sends to a newly attached consumer.
	TypeNewReport Type = "new_report"

	// TypeDeltaList carries one or more opaque deltas from a producer.
	TypeDeltaList Type = "delta_list"

	// TypeClose is the only message type a consumer is expected to send
	// inbound; anything else causes the consumer stream loop to exit.
	TypeClose Type = "close"
)

// Envelope is the JSON frame exchanged over the upgraded connection.
//
// # Fields
//
//   - Type: the tagged-union discriminator. Unrecognized values must be
//     rejected by the reading endpoint.
//   - ReportID: populated only on TypeNewReport messages.
//   - Deltas: populated only on TypeDeltaList messages; each element is
//     opaque and passed through unparsed.
type Envelope struct {
	Type     Type              `json:"type"`
	ReportID string            `json:"report_id,omitempty"`
	Deltas   []json.RawMessage `json:"deltas,omitempty"`
}

// NewReportEnvelope builds the new_report frame sent to a consumer on
// attach, or received from a producer as its first message.
func NewReportEnvelope(reportID string) Envelope {
	return Envelope{Type: TypeNewReport, ReportID: reportID}
}

// DeltaListEnvelope builds a delta_list frame carrying the given deltas in
// order.
func DeltaListEnvelope(deltas []json.RawMessage) Envelope {
	return Envelope{Type: TypeDeltaList, Deltas: deltas}
}

// Valid reports whether the envelope's Type is one this proxy recognizes.
func (e Envelope) Valid() bool {
	switch e.Type {
	case TypeNewReport, TypeDeltaList, TypeClose:
		return true
	default:
		return false
	}
}
