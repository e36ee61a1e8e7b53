package types

// Event is the flattened form of a lending-ledger notification: a dotted
// type name plus string attributes, ready for feeds and audit sinks that
// cannot depend on the engine's concrete event structs.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
