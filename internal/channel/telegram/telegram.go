// Package telegram adapts the Telegram Bot API to the channel contract:
// sendMessage for outbound text and getUpdates long-polling for inbound
// activity events.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"twind/internal/types"
)

const defaultBaseURL = "https://api.telegram.org"

// Adapter is a Telegram Bot API channel adapter.
type Adapter struct {
	token      string
	baseURL    string
	listenMode string
	client     *http.Client
	log        *zap.Logger

	events chan types.ActivityEvent
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customizes the adapter.
type Option func(*Adapter)

// WithBaseURL overrides the API endpoint (used in tests).
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// WithListenMode restricts which inbound messages become activity events:
// "all" (default), "dm" (private chats only), or "mentions" (private chats
// plus messages that @-mention someone).
func WithListenMode(mode string) Option {
	return func(a *Adapter) { a.listenMode = mode }
}

// New creates the adapter and starts the update poll loop.
func New(token string, log *zap.Logger, opts ...Option) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Adapter{
		token:   token,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 90 * time.Second},
		log:     log.Named("telegram"),
		events:  make(chan types.ActivityEvent, 32),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.pollLoop(ctx)

	return a
}

// Name implements channel.Adapter.
func (a *Adapter) Name() string { return "telegram" }

// Subscribe implements channel.Adapter.
func (a *Adapter) Subscribe() <-chan types.ActivityEvent { return a.events }

// Close stops polling and closes the event stream.
func (a *Adapter) Close() error {
	a.cancel()
	<-a.done
	close(a.events)
	return nil
}

// Send posts text to a chat. Target is the numeric chat ID as a string.
func (a *Adapter) Send(ctx context.Context, target, text string) (string, error) {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid telegram chat id %q: %w", target, err)
	}

	body, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", a.baseURL, a.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("telegram send failed: %w", err)
	}
	defer resp.Body.Close()

	var apiResp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("telegram response decode failed: %w", err)
	}
	if !apiResp.OK {
		return "", fmt.Errorf("telegram API error: %s", apiResp.Description)
	}
	return fmt.Sprintf("delivered to chat %d", chatID), nil
}

// update mirrors the subset of the Bot API update object the twin needs.
type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		From *struct {
			Username  string `json:"username"`
			FirstName string `json:"first_name"`
		} `json:"from"`
		Chat *struct {
			Type string `json:"type"`
		} `json:"chat"`
		Entities []struct {
			Type string `json:"type"`
		} `json:"entities"`
		Text string `json:"text"`
	} `json:"message"`
}

// wants applies the listen mode filter to an inbound update.
func (a *Adapter) wants(u update) bool {
	switch a.listenMode {
	case "", "all":
		return true
	case "dm":
		return u.Message.Chat != nil && u.Message.Chat.Type == "private"
	case "mentions":
		if u.Message.Chat != nil && u.Message.Chat.Type == "private" {
			return true
		}
		for _, e := range u.Message.Entities {
			if e.Type == "mention" || e.Type == "text_mention" {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func (a *Adapter) pollLoop(ctx context.Context) {
	defer close(a.done)

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := a.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.log.Warn("getUpdates failed, backing off", zap.Error(err))
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			if !a.wants(u) {
				continue
			}
			author := ""
			if u.Message.From != nil {
				author = u.Message.From.Username
				if author == "" {
					author = u.Message.From.FirstName
				}
			}
			ev := types.ActivityEvent{
				Channel: a.Name(),
				Author:  author,
				Text:    u.Message.Text,
			}
			select {
			case a.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (a *Adapter) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	params := url.Values{}
	params.Set("timeout", "30")
	if offset > 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}

	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?%s", a.baseURL, a.token, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return nil, fmt.Errorf("telegram updates decode failed: %w", err)
	}
	if !apiResp.OK {
		return nil, fmt.Errorf("telegram API rejected getUpdates")
	}
	return apiResp.Result, nil
}
