package realtime

// Channel is the transport-side handle for one connected client. Send must
// not block on the peer: implementations enqueue and report failure when the
// client is gone or hopelessly behind. A failed Send affects only that
// member; the caller keeps delivering to the rest.
type Channel interface {
	// ID returns the opaque channel identifier assigned at admission.
	ID() string

	// Send enqueues a message for delivery to the client.
	Send(msg *ChatMessage) error

	// Close tears down the transport. Safe to call more than once.
	Close() error
}
