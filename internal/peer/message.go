package peer

import (
	"encoding/json"
	"math"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/pkg/errors"
)

var (
	ErrMalformedMessage = errors.New("malformed peer message")
	ErrNotReachable     = errors.New("peer not reachable")
)

type MessageType string

const (
	TypeFavoriteIDs    MessageType = "favoriteIds"
	TypeFavoriteToggle MessageType = "favoriteToggle"
	TypeContentBatch   MessageType = "affirmations"
	TypeRequestContent MessageType = "request"
)

const (
	StatusAcknowledged = "acknowledged"
	StatusReceived     = "received"
)

// Message is one of FavoriteIDs, FavoriteToggle, ContentBatch or RequestContent.
type Message interface {
	Type() MessageType
}

// FavoriteIDs replaces the receiver's favorite set.
type FavoriteIDs struct {
	IDs []string
}

// FavoriteToggle asks the data-serving side to toggle an item. IsFavorite is
// the sender's expectation, not a fact.
type FavoriteToggle struct {
	ItemID     string
	Text       string
	IsFavorite bool
}

// ContentBatch is a combined snapshot of content and favorites.
type ContentBatch struct {
	Items       []domain.ContentItem
	FavoriteIDs []string
	Timestamp   time.Time
}

// RequestContent asks for a fresh ContentBatch.
type RequestContent struct{}

func (FavoriteIDs) Type() MessageType    { return TypeFavoriteIDs }
func (FavoriteToggle) Type() MessageType { return TypeFavoriteToggle }
func (ContentBatch) Type() MessageType   { return TypeContentBatch }
func (RequestContent) Type() MessageType { return TypeRequestContent }

// Reply answers a message that expects one.
type Reply struct {
	Status string `json:"status"`
}

type envelope struct {
	Type        MessageType           `json:"type,omitempty"`
	FavoriteIDs *[]string             `json:"favoriteIds,omitempty"`
	ItemID      *string               `json:"affirmationId,omitempty"`
	Text        *string               `json:"affirmationText,omitempty"`
	IsFavorite  *bool                 `json:"isFavorite,omitempty"`
	Data        *[]domain.ContentItem `json:"data,omitempty"`
	Timestamp   *float64              `json:"timestamp,omitempty"`
	Request     string                `json:"request,omitempty"`
}

func unixSeconds(t time.Time) *float64 {
	if t.IsZero() {
		return nil
	}
	v := float64(t.UnixNano()) / float64(time.Second)
	return &v
}

func fromUnixSeconds(v float64) time.Time {
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// Encode renders msg in its wire form.
func Encode(msg Message) ([]byte, error) {
	var env envelope

	switch m := msg.(type) {
	case FavoriteIDs:
		ids := nonNil(m.IDs)
		env = envelope{Type: TypeFavoriteIDs, FavoriteIDs: &ids, Timestamp: unixSeconds(time.Now())}
	case FavoriteToggle:
		env = envelope{Type: TypeFavoriteToggle, ItemID: &m.ItemID, Text: &m.Text, IsFavorite: &m.IsFavorite}
	case ContentBatch:
		ids := nonNil(m.FavoriteIDs)
		items := m.Items
		if items == nil {
			items = []domain.ContentItem{}
		}
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		env = envelope{Type: TypeContentBatch, Data: &items, FavoriteIDs: &ids, Timestamp: unixSeconds(ts)}
	case RequestContent:
		env = envelope{Type: TypeRequestContent, Request: string(TypeRequestContent)}
	default:
		return nil, errors.New("unknown message %T", msg)
	}

	return json.Marshal(env)
}

// Decode parses a wire message. Anything without the fields its type
// requires is rejected with ErrMalformedMessage.
func Decode(b []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, errors.Wrap(ErrMalformedMessage, "%v", err)
	}

	switch env.Type {
	case TypeFavoriteIDs:
		if env.FavoriteIDs == nil {
			return nil, errors.Wrap(ErrMalformedMessage, "favoriteIds missing")
		}
		return FavoriteIDs{IDs: *env.FavoriteIDs}, nil

	case TypeFavoriteToggle:
		if env.ItemID == nil || *env.ItemID == "" || env.Text == nil || env.IsFavorite == nil {
			return nil, errors.Wrap(ErrMalformedMessage, "favoriteToggle requires affirmationId, affirmationText and isFavorite")
		}
		return FavoriteToggle{ItemID: *env.ItemID, Text: *env.Text, IsFavorite: *env.IsFavorite}, nil

	case TypeContentBatch:
		if env.Data == nil {
			return nil, errors.Wrap(ErrMalformedMessage, "affirmations data missing")
		}
		batch := ContentBatch{Items: make([]domain.ContentItem, 0, len(*env.Data))}
		for _, item := range *env.Data {
			if item.ID == "" || item.Text == "" {
				continue
			}
			batch.Items = append(batch.Items, item)
		}
		if env.FavoriteIDs != nil {
			batch.FavoriteIDs = *env.FavoriteIDs
		}
		if env.Timestamp != nil {
			batch.Timestamp = fromUnixSeconds(*env.Timestamp)
		}
		return batch, nil

	case TypeRequestContent:
		return RequestContent{}, nil

	case "":
		// older watches send only {"request": "request"}
		if env.Request == string(TypeRequestContent) {
			return RequestContent{}, nil
		}
		return nil, errors.Wrap(ErrMalformedMessage, "type missing")

	default:
		return nil, errors.Wrap(ErrMalformedMessage, "unknown type %q", env.Type)
	}
}

func EncodeReply(status string) []byte {
	b, _ := json.Marshal(Reply{Status: status})
	return b
}

func DecodeReply(b []byte) (Reply, error) {
	var r Reply
	if len(b) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return r, errors.Wrap(ErrMalformedMessage, "reply: %v", err)
	}
	return r, nil
}
