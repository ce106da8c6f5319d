package domain

import "context"

type PeerRole string

const (
	RolePhone PeerRole = "phone"
	RoleWatch PeerRole = "watch"
)

// PeerTransport carries opaque payloads to and from the single paired peer.
type PeerTransport interface {
	Activate(ctx context.Context) error
	IsReachable() bool
	// SendImmediate delivers payload now and returns the peer's reply, if any.
	SendImmediate(ctx context.Context, payload []byte) ([]byte, error)
	// SetPersistentContext stores payload as the latest context snapshot and
	// delivers it whenever the peer is next reachable. Last write wins.
	SetPersistentContext(payload []byte) error
	// OnMessage handlers may return a reply payload; nil means no reply.
	OnMessage(fn func(payload []byte) []byte)
	OnContext(fn func(payload []byte))
	OnReachabilityChange(fn func(reachable bool))
	Close() error
}

// PeerContextRepo persists outgoing context snapshots across restarts.
type PeerContextRepo interface {
	GetContext(ctx context.Context) ([]byte, error)
	SetContext(ctx context.Context, payload []byte) error
}
