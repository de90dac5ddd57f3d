package core

// Frame is one encoded signaling message.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend never blocks; a full buffer returns an error.
	TrySend(Frame) error
	// Close flushes what is already queued and then ends the transport.
	Close()
}
