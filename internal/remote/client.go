package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/logger"
	"github.com/echome/echosync/pkg/errors"

	"github.com/google/uuid"
	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog"
	"gopkg.in/cenkalti/backoff.v1"
)

// APIError is a non-2xx response from the remote store.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" && e.Message != "" {
		return fmt.Sprintf("remote store error: %s (%d): %s", e.Code, e.Status, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("remote store error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("remote store error (%d)", e.Status)
}

type apiErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type favoritePayload struct {
	Text    string    `json:"text"`
	SavedAt time.Time `json:"savedAt"`
}

// Client talks to the remote document store over REST and SSE.
type Client struct {
	log        zerolog.Logger
	baseURL    string
	token      string
	httpClient *http.Client

	mu   sync.Mutex
	subs map[string]context.CancelFunc
}

func NewClient(log logger.Logger, cfg domain.RemoteConfig) (*Client, error) {
	base, err := NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		log:        log.With().Str("module", "remote").Logger(),
		baseURL:    base,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		subs:       make(map[string]context.CancelFunc),
	}, nil
}

// NormalizeBaseURL trims the base url and checks it has a scheme.
func NormalizeBaseURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", errors.New("remote base url cannot be empty")
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", errors.Wrap(err, "invalid remote base url")
	}
	if parsed.Scheme == "" {
		return "", errors.New("remote base url must include scheme")
	}
	return strings.TrimRight(value, "/"), nil
}

func favoritePath(userID, itemID string) string {
	return fmt.Sprintf("/v1/users/%s/favorites/%s", url.PathEscape(userID), url.PathEscape(itemID))
}

func (c *Client) AddFavorite(ctx context.Context, userID, itemID, text string) error {
	body := favoritePayload{Text: text, SavedAt: time.Now().UTC()}
	return c.doJSON(ctx, http.MethodPut, favoritePath(userID, itemID), nil, body, nil)
}

// RemoveFavorite treats a missing document as already removed.
func (c *Client) RemoveFavorite(ctx context.Context, userID, itemID string) error {
	err := c.doJSON(ctx, http.MethodDelete, favoritePath(userID, itemID), nil, nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) FetchContent(ctx context.Context, categories []string, limit int) ([]domain.ContentItem, error) {
	query := url.Values{}
	for _, category := range categories {
		query.Add("category", category)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var items []domain.ContentItem
	if err := c.doJSON(ctx, http.MethodGet, "/v1/content", query, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

type subscription struct {
	id   string
	done chan struct{}
}

func newSubscription() *subscription {
	return &subscription{id: uuid.NewString(), done: make(chan struct{})}
}

func (s *subscription) ID() string { return s.id }

func (s *subscription) Done() <-chan struct{} { return s.done }

// SubscribeFavorites opens the SSE snapshot stream for userID. Each event is
// a full list of favorites; undecodable events are logged and skipped.
// The stream reconnects until Unsubscribe or ctx cancellation.
func (c *Client) SubscribeFavorites(ctx context.Context, userID string, onUpdate func([]domain.FavoriteRecord)) (domain.Subscription, error) {
	endpoint, err := c.buildURL(fmt.Sprintf("/v1/users/%s/favorites/stream", url.PathEscape(userID)), nil)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := newSubscription()

	reconnect := backoff.NewExponentialBackOff()
	reconnect.MaxElapsedTime = 0

	client := sse.NewClient(endpoint)
	client.ReconnectStrategy = backoff.WithContext(reconnect, subCtx)
	client.ReconnectNotify = func(err error, next time.Duration) {
		c.log.Debug().Err(err).Dur("retry_in", next).Msg("favorites stream reconnecting")
	}
	if c.token != "" {
		client.Headers["Authorization"] = "Bearer " + c.token
	}
	client.OnDisconnect(func(*sse.Client) {
		c.log.Debug().Str("user", userID).Msg("favorites stream disconnected")
	})

	c.mu.Lock()
	c.subs[sub.ID()] = cancel
	c.mu.Unlock()

	go func() {
		defer close(sub.done)
		defer c.forget(sub.ID())

		err := client.SubscribeRawWithContext(subCtx, func(msg *sse.Event) {
			if len(msg.Data) == 0 {
				return
			}

			var records []domain.FavoriteRecord
			if err := json.Unmarshal(msg.Data, &records); err != nil {
				c.log.Warn().Err(err).Msg("could not decode favorites snapshot")
				return
			}

			onUpdate(records)
		})
		if err != nil && subCtx.Err() == nil {
			c.log.Error().Err(err).Str("user", userID).Msg("favorites stream closed")
		}
	}()

	c.log.Debug().Str("subscription", sub.ID()).Str("user", userID).Msg("subscribed to favorites")

	return sub, nil
}

func (c *Client) Unsubscribe(sub domain.Subscription) {
	if sub == nil {
		return
	}

	c.mu.Lock()
	cancel, ok := c.subs[sub.ID()]
	delete(c.subs, sub.ID())
	c.mu.Unlock()

	if ok {
		cancel()
		c.log.Debug().Str("subscription", sub.ID()).Msg("unsubscribed from favorites")
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.subs[id]; ok {
		cancel()
		delete(c.subs, id)
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, reqBody any, respBody any) error {
	endpoint, err := c.buildURL(path, query)
	if err != nil {
		return err
	}

	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return errors.Wrap(err, "could not encode request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return errors.Wrap(err, "could not build request")
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "could not read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload apiErrorPayload
		if err := json.Unmarshal(respData, &payload); err == nil {
			apiErr.Code = payload.Error
			apiErr.Message = payload.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(respData))
		}
		return apiErr
	}

	if respBody == nil || len(respData) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(respData, respBody), "could not decode response")
}

func (c *Client) buildURL(path string, query url.Values) (string, error) {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", errors.Wrap(err, "invalid request path %s", path)
	}
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	return endpoint.String(), nil
}

var _ domain.RemoteStore = (*Client)(nil)
