package element

import (
	"context"
	"encoding/json"
)

// Inbound is one raw message received from a frame, tagged with the origin of
// the sending document. The origin is asserted by the transport, not by the
// sender, so receivers can trust it for filtering.
type Inbound struct {
	Origin string
	Data   json.RawMessage
}

// Frame is an embedded document: opened on mount, closed on unmount. An
// element exclusively owns its frame; no other component may post into it.
type Frame interface {
	// Post delivers a payload into the frame. targetOrigin restricts
	// delivery to documents of that origin; transports must refuse to
	// deliver to a document whose origin differs.
	Post(ctx context.Context, targetOrigin string, payload []byte) error
	// Messages yields messages posted by the embedded document. The channel
	// is closed when the frame closes.
	Messages() <-chan Inbound
	// Loaded is closed once the embedded document finished loading.
	Loaded() <-chan struct{}
	// Close tears the frame down. Safe to call more than once.
	Close() error
}

// Navigator opens frames for session URLs. It is the mount target: mounting
// an element into a navigator is the analogue of attaching an iframe under a
// host DOM node.
type Navigator interface {
	Open(ctx context.Context, url string) (Frame, error)
}

// CardValueReader is implemented by frames that expose the current card
// number to the host. Only consulted when the frame advertised the
// card-values capability during the ready handshake.
type CardValueReader interface {
	CardNumber() (string, bool)
}

// DirectSubmitter is implemented by frames that accept a combined
// validate-and-submit invocation. Only consulted when the frame advertised
// the direct-submit capability; the outcome still arrives as a regular
// success or error message.
type DirectSubmitter interface {
	ValidateAndSubmit(ctx context.Context) error
}
