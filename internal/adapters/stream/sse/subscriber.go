// Package sse implements ports.EventStream over a server-sent-event
// channel. One Subscribe call opens one persistent GET; the connection is
// closed on terminal event types, on transport failure, or when the
// returned disposer runs. The subscriber never reconnects on its own;
// reconnection policy belongs to the progress state machine's caller.
package sse

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mvetter/stewardflow/internal/domain"
	"github.com/mvetter/stewardflow/internal/ports"
)

type Subscriber struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var _ ports.EventStream = (*Subscriber)(nil)

type Option func(*Subscriber)

// WithHTTPClient overrides the transport. The client must not set a
// Timeout: the stream stays open for the whole session.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Subscriber) { s.client = client }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Subscriber) { s.logger = logger }
}

func NewSubscriber(baseURL string, opts ...Option) *Subscriber {
	s := &Subscriber{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe opens the session's event channel. It returns an error only
// when establishing the channel itself fails; everything after that is
// reported through onEvent and onError.
func (s *Subscriber) Subscribe(ctx context.Context, id domain.SessionID, onEvent func(domain.StreamEvent), onError func(error)) (ports.Disposer, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	url := fmt.Sprintf("%s/api/onboarding/sessions/%s/stream", s.baseURL, id)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open event stream for session %s: %w", id, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("open event stream for session %s: HTTP %d: %s", id, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var disposed atomic.Bool
	var once sync.Once
	dispose := func() {
		once.Do(func() {
			disposed.Store(true)
			cancel()
			resp.Body.Close()
		})
	}

	go s.consume(resp.Body, &disposed, dispose, onEvent, onError)

	return dispose, nil
}

func (s *Subscriber) consume(body io.ReadCloser, disposed *atomic.Bool, dispose func(), onEvent func(domain.StreamEvent), onError func(error)) {
	defer dispose()

	known := map[domain.EventType]bool{}
	for _, t := range domain.EventTypes() {
		known[t] = true
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	var data []string

	flush := func() bool {
		defer func() {
			eventName = ""
			data = nil
		}()

		if eventName == "" || len(data) == 0 {
			return false
		}
		eventType := domain.EventType(eventName)
		if !known[eventType] {
			s.logger.Debug("sse subscriber: ignoring unknown event type", "type", eventName)
			return false
		}

		event, err := domain.ParseStreamEvent(eventType, []byte(strings.Join(data, "\n")))
		if err != nil {
			// A single malformed event must not take down a healthy stream.
			onError(err)
			return false
		}

		onEvent(event)
		return eventType.Terminal()
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if flush() {
				return
			}
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		}
	}

	// A dangling frame can arrive without a trailing blank line when the
	// server closes right after writing it.
	if flush() {
		return
	}

	if disposed.Load() {
		return
	}

	if err := scanner.Err(); err != nil {
		onError(fmt.Errorf("event stream transport: %w", err))
		return
	}
	onError(domain.ErrStreamClosed)
}
