package peer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"
	"github.com/echome/echosync/pkg/errors"

	"github.com/rs/zerolog"
)

type State int32

const (
	StateInactive State = iota
	StateActivating
	StateActivated
)

func (s State) String() string {
	switch s {
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	default:
		return "inactive"
	}
}

// FavoriteSet is the part of the favorites service the phone side drives.
type FavoriteSet interface {
	Toggle(itemID, text string) bool
	IDs() []string
	FlushPending(ctx context.Context) error
}

// ContentSource supplies the batch sent in reply to a content request.
type ContentSource interface {
	CurrentBatch() []domain.ContentItem
}

// Sink receives what the phone pushes to the watch.
type Sink interface {
	ApplyFavoriteIDs(ids []string)
	ApplyContentBatch(items []domain.ContentItem, favoriteIDs []string, at time.Time)
}

const outboxSize = 32

// Channel is the typed message layer over a PeerTransport.
type Channel struct {
	log       zerolog.Logger
	role      domain.PeerRole
	transport domain.PeerTransport

	state atomic.Int32

	mu        sync.RWMutex
	favorites FavoriteSet
	content   ContentSource
	sink      Sink
	onReach   []func(bool)

	ctx    context.Context
	outbox chan []byte
}

func NewChannel(log logger.Logger, role domain.PeerRole, transport domain.PeerTransport) *Channel {
	return &Channel{
		log:       log.With().Str("module", "peer").Str("role", string(role)).Logger(),
		role:      role,
		transport: transport,
		ctx:       context.Background(),
		outbox:    make(chan []byte, outboxSize),
	}
}

func (c *Channel) SetFavorites(f FavoriteSet) {
	c.mu.Lock()
	c.favorites = f
	c.mu.Unlock()
}

func (c *Channel) SetContentSource(s ContentSource) {
	c.mu.Lock()
	c.content = s
	c.mu.Unlock()
}

func (c *Channel) SetSink(s Sink) {
	c.mu.Lock()
	c.sink = s
	c.mu.Unlock()
}

// OnReachabilityChange registers fn for transport reachability changes.
// Register before Activate.
func (c *Channel) OnReachabilityChange(fn func(bool)) {
	c.mu.Lock()
	c.onReach = append(c.onReach, fn)
	c.mu.Unlock()
}

func (c *Channel) State() State {
	return State(c.state.Load())
}

func (c *Channel) IsReachable() bool {
	return c.transport.IsReachable()
}

// Activate wires the inbound handlers, starts the transport and the send loop.
// The loop stops when ctx is cancelled.
func (c *Channel) Activate(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateInactive), int32(StateActivating)) {
		return nil
	}

	c.ctx = ctx
	c.transport.OnMessage(c.handleMessage)
	c.transport.OnContext(c.handleContext)
	c.transport.OnReachabilityChange(c.reachabilityChanged)

	if err := c.transport.Activate(ctx); err != nil {
		c.state.Store(int32(StateInactive))
		return errors.Wrap(err, "activate peer transport")
	}

	go c.sendLoop(ctx)

	c.state.Store(int32(StateActivated))
	c.log.Info().Msg("peer channel activated")
	return nil
}

func (c *Channel) reachabilityChanged(reachable bool) {
	c.log.Debug().Bool("reachable", reachable).Msg("peer reachability changed")

	c.mu.RLock()
	fns := append([]func(bool){}, c.onReach...)
	c.mu.RUnlock()

	for _, fn := range fns {
		fn(reachable)
	}
}

func (c *Channel) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-c.outbox:
			if _, err := c.transport.SendImmediate(ctx, payload); err != nil {
				c.log.Warn().Err(err).Msg("direct send failed, context snapshot still pending")
			}
		}
	}
}

// PushFavoriteIDs sends the full favorite id set. Failures are logged only.
func (c *Channel) PushFavoriteIDs(ids []string) {
	c.push(FavoriteIDs{IDs: ids})
}

// PushContentBatch sends content together with the favorite ids.
func (c *Channel) PushContentBatch(items []domain.ContentItem, ids []string) {
	c.push(ContentBatch{Items: items, FavoriteIDs: ids, Timestamp: time.Now()})
}

func (c *Channel) push(msg Message) {
	if c.State() != StateActivated {
		c.log.Debug().Str("type", string(msg.Type())).Msg("channel not activated, skipping push")
		return
	}

	payload, err := Encode(msg)
	if err != nil {
		c.log.Error().Err(err).Msg("could not encode peer message")
		return
	}

	if c.transport.IsReachable() {
		select {
		case c.outbox <- payload:
		default:
			c.log.Warn().Msg("peer outbox full, relying on context snapshot")
		}
	}

	if err := c.transport.SetPersistentContext(payload); err != nil {
		c.log.Error().Err(err).Msg("could not update peer context")
	}
}

// SendToggle relays a toggle intent to the phone and waits for the reply.
func (c *Channel) SendToggle(ctx context.Context, itemID, text string, isFavorite bool) error {
	if c.State() != StateActivated || !c.transport.IsReachable() {
		return ErrNotReachable
	}

	payload, err := Encode(FavoriteToggle{ItemID: itemID, Text: text, IsFavorite: isFavorite})
	if err != nil {
		return err
	}

	_, err = c.transport.SendImmediate(ctx, payload)
	return err
}

// RequestContent asks the phone for a fresh content batch. The batch itself
// arrives later as a separate message.
func (c *Channel) RequestContent(ctx context.Context) (Reply, error) {
	if c.State() != StateActivated || !c.transport.IsReachable() {
		return Reply{}, ErrNotReachable
	}

	payload, err := Encode(RequestContent{})
	if err != nil {
		return Reply{}, err
	}

	raw, err := c.transport.SendImmediate(ctx, payload)
	if err != nil {
		return Reply{}, err
	}
	return DecodeReply(raw)
}

func (c *Channel) handleMessage(payload []byte) []byte {
	msg, err := Decode(payload)
	if err != nil {
		c.log.Warn().Err(err).Msg("dropping peer message")
		return nil
	}
	return c.handle(msg)
}

func (c *Channel) handleContext(payload []byte) {
	msg, err := Decode(payload)
	if err != nil {
		c.log.Warn().Err(err).Msg("dropping peer context")
		return
	}
	c.handle(msg)
}

// handle serves both the message and the context path and returns the
// reply payload, if any.
func (c *Channel) handle(msg Message) []byte {
	c.mu.RLock()
	favorites, content, sink := c.favorites, c.content, c.sink
	c.mu.RUnlock()

	switch m := msg.(type) {
	case FavoriteToggle:
		if c.role != domain.RolePhone || favorites == nil {
			c.log.Debug().Msg("ignoring favorite toggle on this side")
			return nil
		}

		now := favorites.Toggle(m.ItemID, m.Text)
		if now != m.IsFavorite {
			c.log.Info().Str("item", m.ItemID).Bool("requested", m.IsFavorite).Bool("result", now).Msg("peer toggle was based on stale state")
		}

		go func() {
			if err := favorites.FlushPending(c.ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.log.Warn().Err(err).Msg("flush after peer toggle failed")
			}
		}()

		return EncodeReply(StatusReceived)

	case RequestContent:
		if c.role != domain.RolePhone {
			return nil
		}

		var items []domain.ContentItem
		if content != nil {
			items = content.CurrentBatch()
		}
		var ids []string
		if favorites != nil {
			ids = favorites.IDs()
		}
		c.PushContentBatch(items, ids)

		return EncodeReply(StatusAcknowledged)

	case FavoriteIDs:
		if sink != nil {
			sink.ApplyFavoriteIDs(m.IDs)
		}

	case ContentBatch:
		if sink != nil {
			sink.ApplyContentBatch(m.Items, m.FavoriteIDs, m.Timestamp)
		}
	}

	return nil
}
