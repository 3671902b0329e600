package relay

// Intent tags the kind of envelope a hub has emitted.
type Intent string

const (
	IntentWelcome Intent = "Welcome"
	IntentReceipt Intent = "Receipt"
	IntentPeer    Intent = "Peer"
	IntentJoiner  Intent = "Joiner"
	IntentLeaver  Intent = "Leaver"
)

// Envelope is a hub-emitted, client-facing message. Body marshals through
// encoding/json as a standard Go []byte, which base64-encodes it for free —
// exactly the wire contract the browser shim expects.
type Envelope struct {
	Intent Intent   `json:"Intent"`
	From   []string `json:"From"`
	To     []string `json:"To"`
	Num    uint64   `json:"Num"`
	Time   int64    `json:"Time"`
	Body   []byte   `json:"Body,omitempty"`
}

// inboundMessage is what a Client's read loop hands to its hub: an opaque
// application payload from one client, not yet numbered or addressed.
type inboundMessage struct {
	from *Client
	body []byte
}
