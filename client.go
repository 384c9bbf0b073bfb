package modelsocket

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
)

// Client is the main client for connecting to a ModelSocket server.
// It is safe for concurrent use by multiple goroutines.
type Client struct {
	transport Transport
	cfg       clientConfig
	ctx       context.Context
	cancel    context.CancelFunc

	mu       sync.RWMutex
	seqs     map[string]*Seq          // active sequences by seq_id
	pending  map[string]chan *MSEvent // pending opens by cid
	closed   bool
	closeErr error
}

// Connect establishes a connection to a ModelSocket server. The bearer
// secret attached to the handshake comes from WithAPIKey if given,
// otherwise from the MODELSOCKET_API_KEY environment variable. If no
// WithLogger option is given, a logger is built from MODELSOCKET_LOG
// (debug/info/error); if that is also unset, logging is a no-op.
func Connect(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	cfg := clientConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	transport, err := Dial(ctx, url, cfg.apiKey, nil)
	if err != nil {
		return nil, err
	}

	if cfg.logger == nil {
		cfg.logger = loggerFromEnv()
	}

	return newClient(ctx, transport, cfg), nil
}

// NewWithTransport creates a Client with a custom transport. This is
// useful for testing or custom transport implementations.
func NewWithTransport(ctx context.Context, transport Transport, opts ...ClientOption) *Client {
	cfg := clientConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = loggerFromEnv()
	}
	return newClient(ctx, transport, cfg)
}

func newClient(ctx context.Context, transport Transport, cfg clientConfig) *Client {
	ctx, cancel := context.WithCancel(ctx)

	c := &Client{
		transport: transport,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		seqs:      make(map[string]*Seq),
		pending:   make(map[string]chan *MSEvent),
	}

	go c.readLoop()

	return c
}

// loggerFromEnv builds a slog.Logger from MODELSOCKET_LOG (debug, info,
// or error). An unset or unrecognized value disables logging.
func loggerFromEnv() *slog.Logger {
	var level slog.Level
	switch os.Getenv("MODELSOCKET_LOG") {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		return nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// logf logs through the client's configured logger, if any.
func (c *Client) logf(level slog.Level, msg string, args ...any) {
	if c.cfg.logger == nil {
		return
	}
	c.cfg.logger.Log(c.ctx, level, msg, args...)
}

// Open creates a new sequence with the specified model.
func (c *Client) Open(ctx context.Context, model string, opts ...OpenOption) (*Seq, error) {
	cfg := openConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	cid := uuid.New().String()

	ch := make(chan *MSEvent, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[cid] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, cid)
		c.mu.Unlock()
	}()

	data := SeqOpenData{
		Model:        model,
		SkipPrelude:  cfg.skipPrelude,
		ToolsEnabled: cfg.tools,
		ToolPrompt:   cfg.toolPrompt,
	}

	req := NewSeqOpenRequest(cid, data)

	if err := c.send(ctx, req); err != nil {
		return nil, &SendError{Op: "seq_open", Err: err}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrClosed
	case event := <-ch:
		if event.IsError() {
			return nil, &ProtocolError{
				Message: event.Message,
				SeqID:   event.SeqID,
				CID:     event.CID,
			}
		}
		if !event.IsSeqOpened() {
			return nil, ErrUnexpectedEvent
		}

		seq := newSeq(c, event.SeqID, model, cfg.tools)
		c.registerSeq(seq)

		return seq, nil
	}
}

// registerSeq adds a sequence to the live-sequence table.
func (c *Client) registerSeq(seq *Seq) {
	c.mu.Lock()
	c.seqs[seq.id] = seq
	c.mu.Unlock()
}

// Close closes the connection and all sequences. Every call blocked in
// Open wakes with ErrClosed as soon as the connection context is
// cancelled; every sequence's pending waiters are rejected by its own
// handleClose.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()

	c.mu.RLock()
	seqs := make([]*Seq, 0, len(c.seqs))
	for _, seq := range c.seqs {
		seqs = append(seqs, seq)
	}
	c.mu.RUnlock()

	for _, seq := range seqs {
		seq.handleClose(nil)
	}

	return c.transport.Close()
}

// readLoop reads events from the transport and dispatches them one at a
// time: each handler runs to completion before the next frame is read.
func (c *Client) readLoop() {
	for {
		event, err := c.transport.Receive(c.ctx)
		if err != nil {
			c.mu.Lock()
			c.closeErr = err
			c.closed = true
			c.mu.Unlock()
			c.cancel()
			return
		}

		if c.cfg.onReceive != nil {
			c.cfg.onReceive(event)
		}

		c.logf(slog.LevelDebug, "received event",
			"event", event.Event,
			"seq_id", event.SeqID,
			"cid", event.CID,
		)

		c.routeEvent(event)
	}
}

// routeEvent routes an event to the appropriate handler.
func (c *Client) routeEvent(event *MSEvent) {
	if event.IsSeqOpened() {
		c.mu.RLock()
		ch, ok := c.pending[event.CID]
		c.mu.RUnlock()
		if ok {
			select {
			case ch <- event:
			default:
			}
		}
		return
	}

	if event.IsError() && event.CID != "" {
		c.mu.RLock()
		ch, ok := c.pending[event.CID]
		c.mu.RUnlock()
		if ok {
			select {
			case ch <- event:
			default:
			}
			return
		}
	}

	seqID := event.SeqID
	if seqID == "" {
		if event.IsError() {
			c.logf(slog.LevelError, "server error with no matching waiter", "message", event.Message, "cid", event.CID)
		}
		return
	}

	c.mu.RLock()
	seq, ok := c.seqs[seqID]
	c.mu.RUnlock()

	if ok {
		seq.handleEvent(event)
		return
	}

	stateErr := &StateError{SeqID: seqID, Event: event.Event}
	c.logf(slog.LevelError, stateErr.Error())
}

// send sends a request through the transport.
func (c *Client) send(ctx context.Context, req *MSRequest) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return ErrClosed
	}

	if c.cfg.onSend != nil {
		c.cfg.onSend(req)
	}

	c.logf(slog.LevelDebug, "sending request",
		"request", req.Request,
		"cid", req.CID,
		"seq_id", req.SeqID,
	)

	return c.transport.Send(ctx, req)
}

// removeSeq removes a sequence from the client.
func (c *Client) removeSeq(seqID string) {
	c.mu.Lock()
	delete(c.seqs, seqID)
	c.mu.Unlock()
}
