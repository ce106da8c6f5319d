package events

import (
	"encoding/json"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"

	"github.com/asaskevich/EventBus"
	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog"
)

// Stream is the SSE stream state changes are published on.
const Stream = "events"

// Pusher sends state to the companion.
type Pusher interface {
	PushFavoriteIDs(ids []string)
	PushContentBatch(items []domain.ContentItem, ids []string)
}

type FavoriteIDs interface {
	IDs() []string
}

type SSEPublisher interface {
	Publish(id string, event *sse.Event)
}

type Subscriber struct {
	log       zerolog.Logger
	eventbus  EventBus.Bus
	peer      Pusher
	favorites FavoriteIDs
	sse       SSEPublisher
}

// NewSubscribers registers the bus handlers. sse may be nil.
func NewSubscribers(log logger.Logger, eventbus EventBus.Bus, peer Pusher, favorites FavoriteIDs, sse SSEPublisher) Subscriber {
	s := Subscriber{
		log:       log.With().Str("module", "events").Logger(),
		eventbus:  eventbus,
		peer:      peer,
		favorites: favorites,
		sse:       sse,
	}

	s.Register()

	return s
}

func (s Subscriber) Register() {
	// transactional async handlers keep pushes off the caller and in order
	if err := s.eventbus.SubscribeAsync(domain.EventFavoritesChanged, s.favoritesChanged, true); err != nil {
		s.log.Error().Err(err).Msgf("failed to subscribe to %s", domain.EventFavoritesChanged)
	}
	if err := s.eventbus.SubscribeAsync(domain.EventContentRefreshed, s.contentRefreshed, true); err != nil {
		s.log.Error().Err(err).Msgf("failed to subscribe to %s", domain.EventContentRefreshed)
	}
	if err := s.eventbus.Subscribe(domain.EventPeerReachability, s.reachabilityChanged); err != nil {
		s.log.Error().Err(err).Msgf("failed to subscribe to %s", domain.EventPeerReachability)
	}
}

func (s Subscriber) favoritesChanged(ids []string) {
	s.log.Trace().Strs("ids", ids).Msg("favorites changed")

	if s.peer != nil {
		s.peer.PushFavoriteIDs(ids)
	}
	s.publish("favorites", ids)
}

func (s Subscriber) contentRefreshed(items []domain.ContentItem) {
	var ids []string
	if s.favorites != nil {
		ids = s.favorites.IDs()
	}

	if s.peer != nil {
		s.peer.PushContentBatch(items, ids)
	}
	s.publish("content", map[string]int{"items": len(items)})
}

func (s Subscriber) reachabilityChanged(reachable bool) {
	s.log.Debug().Bool("reachable", reachable).Msg("peer reachability")
	s.publish("peer", map[string]bool{"reachable": reachable})
}

func (s Subscriber) publish(event string, v any) {
	if s.sse == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Str("event", event).Msg("could not encode event")
		return
	}

	s.sse.Publish(Stream, &sse.Event{Event: []byte(event), Data: data})
}
