package modelsocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Seq represents an active conversation sequence.
// It is safe for concurrent use by multiple goroutines.
// However, only one Generate call can be active at a time.
type Seq struct {
	client       *Client
	id           string
	model        string
	toolsEnabled bool

	mu         sync.RWMutex
	state      SeqState
	closed     bool
	closeErr   error
	curGenOpts *SeqGenData

	// Command tracking
	cmdMu    sync.RWMutex
	commands map[string]chan *MSEvent

	// Tool table: built exclusively through Install, in installation order.
	toolsMu   sync.RWMutex
	tools     map[string]installedTool
	toolOrder []string

	// Active generation stream
	genStream *GenStream
}

// installedTool pairs a Tool with its compiled parameter schema.
type installedTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// newSeq creates a new sequence.
func newSeq(client *Client, id, model string, toolsEnabled bool) *Seq {
	return &Seq{
		client:       client,
		id:           id,
		model:        model,
		toolsEnabled: toolsEnabled,
		state:        StateReady,
		commands:     make(map[string]chan *MSEvent),
		tools:        make(map[string]installedTool),
	}
}

// ID returns the sequence ID.
func (s *Seq) ID() string {
	return s.id
}

// Model returns the model this sequence was opened (or forked) with.
func (s *Seq) Model() string {
	return s.model
}

// State returns the current sequence state.
func (s *Seq) State() SeqState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Append adds text to the sequence.
func (s *Seq) Append(ctx context.Context, text string, opts ...AppendOption) error {
	return s.append(ctx, SeqAppendData{Text: text}, opts)
}

// AppendTokens adds a raw token sequence to the sequence, bypassing the
// model's tokenizer. The wire form carries tokens instead of text; the
// two are mutually exclusive.
func (s *Seq) AppendTokens(ctx context.Context, tokens []int, opts ...AppendOption) error {
	return s.append(ctx, SeqAppendData{Tokens: tokens}, opts)
}

func (s *Seq) append(ctx context.Context, data SeqAppendData, opts []AppendOption) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrSeqClosed
	}

	cfg := appendConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	data.Role = string(cfg.role)
	data.Echo = cfg.echo
	data.Hidden = cfg.hidden

	cid := uuid.New().String()
	ch := s.registerCommand(cid)
	defer s.unregisterCommand(cid)

	req := NewAppendRequest(cid, s.id, data)
	if err := s.client.send(ctx, req); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case event := <-ch:
		return terminalErr(event)
	}
}

// Generate starts text generation and returns a stream. Generate returns
// as soon as the request has been written; it does not wait for the
// first chunk.
func (s *Seq) Generate(ctx context.Context, opts ...GenOption) (*GenStream, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrSeqClosed
	}

	cfg := genConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	cid := uuid.New().String()
	stream := newGenStream(s, cid)
	data := cfg.toSeqGenData()

	s.mu.Lock()
	s.genStream = stream
	genOpts := data
	s.curGenOpts = &genOpts
	s.mu.Unlock()

	req := NewGenRequest(cid, s.id, data)
	if err := s.client.send(ctx, req); err != nil {
		s.mu.Lock()
		s.genStream = nil
		s.curGenOpts = nil
		s.mu.Unlock()
		return nil, err
	}

	return stream, nil
}

// Fork creates a new sequence sharing this sequence's model and
// tools-enabled flag. The forked sequence starts with an empty tool
// table; tools must be reinstalled on it with Install or InstallToolbox.
func (s *Seq) Fork(ctx context.Context) (*Seq, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrSeqClosed
	}

	cid := uuid.New().String()
	ch := s.registerCommand(cid)
	defer s.unregisterCommand(cid)

	req := NewForkRequest(cid, s.id)
	if err := s.client.send(ctx, req); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case event := <-ch:
		if err := terminalErr(event); err != nil {
			return nil, err
		}
		if !event.IsSeqForkFinish() {
			return nil, ErrUnexpectedEvent
		}
		if event.ChildSeqID == "" {
			return nil, ErrChildSeqIDMissing
		}

		forked := newSeq(s.client, event.ChildSeqID, s.model, s.toolsEnabled)
		s.client.registerSeq(forked)
		return forked, nil
	}
}

// WithFork forks the sequence, runs fn against the child, and requests the
// child's close once fn returns. The close is fired off and not awaited;
// any error closing the child is logged, not returned. The child closes
// whether fn returns an error or not. WithFork itself returns fn's error,
// or the fork error if the fork never happened.
func (s *Seq) WithFork(ctx context.Context, fn func(child *Seq) error) error {
	child, err := s.Fork(ctx)
	if err != nil {
		return err
	}

	fnErr := fn(child)

	go func() {
		if err := child.Close(s.client.ctx); err != nil {
			s.client.logf(slog.LevelError, "close of forked sequence failed", "seq_id", child.id, "err", err)
		}
	}()

	return fnErr
}

// Close closes the sequence.
func (s *Seq) Close(ctx context.Context) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil
	}

	cid := uuid.New().String()
	ch := s.registerCommand(cid)
	defer s.unregisterCommand(cid)

	req := NewCloseRequest(cid, s.id)
	if err := s.client.send(ctx, req); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case event := <-ch:
		if err := terminalErr(event); err != nil {
			return err
		}
		// Mark the sequence closed before returning; the read loop only
		// does so after it has delivered this event here.
		s.handleClose(event)
		return nil
	}
}

// Install validates a tool, registers it in this sequence's tool table,
// and announces it to the model with a hidden system message. The
// sequence must have been opened with WithTools. Installing a duplicate
// name, or a tool whose parameters don't compile as a JSON Schema, fails
// before any network I/O.
func (s *Seq) Install(ctx context.Context, tool Tool) error {
	if !s.toolsEnabled {
		return ErrToolsNotEnabled
	}

	def := tool.Definition()
	if err := def.validate(); err != nil {
		return err
	}

	schema, err := compileToolSchema(def)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidTool, def.Name, err)
	}

	s.toolsMu.RLock()
	_, exists := s.tools[def.Name]
	s.toolsMu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
	}

	text, err := toolInstallText(def)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidTool, def.Name, err)
	}

	if err := s.Append(ctx, text, AsSystem(), Hidden()); err != nil {
		return err
	}

	s.toolsMu.Lock()
	s.tools[def.Name] = installedTool{tool: tool, schema: schema}
	s.toolOrder = append(s.toolOrder, def.Name)
	s.toolsMu.Unlock()

	return nil
}

// InstallToolbox installs every tool in tb, in the toolbox's insertion
// order, each going through Install.
func (s *Seq) InstallToolbox(ctx context.Context, tb *Toolbox) error {
	for _, tool := range tb.Tools() {
		if err := s.Install(ctx, tool); err != nil {
			return err
		}
	}
	return nil
}

// compileToolSchema compiles a tool's parameters as a JSON Schema
// document. Empty parameters (no type, no properties, no required
// fields) compile to an always-valid schema.
func compileToolSchema(def ToolDefinition) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(def.Parameters)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	p := def.Parameters
	if p.Type == "" && len(p.Properties) == 0 && len(p.Required) == 0 {
		doc = map[string]any{}
	}

	c := jsonschema.NewCompiler()
	url := "mem://tool/" + uuid.New().String()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// toolInstallText renders the hidden system message announcing a tool: a
// one-line summary followed by its definition as indented JSON, with two
// trailing newlines.
func toolInstallText(def ToolDefinition) (string, error) {
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Use the function '%s' to: %s\n%s\n\n", def.Name, def.Description, string(data)), nil
}

// handleEvent processes an incoming event for this sequence. It runs on
// the client's single read-loop goroutine, so handlers here complete
// before the next frame is dispatched.
func (s *Seq) handleEvent(event *MSEvent) {
	if event.IsSeqState() {
		s.mu.Lock()
		s.state = event.State
		s.mu.Unlock()
	}

	if event.IsSeqText() {
		s.mu.RLock()
		stream := s.genStream
		s.mu.RUnlock()
		if stream != nil {
			stream.handleText(event)
		}
	}

	if event.IsSeqToolCall() {
		s.handleToolCall(event)
	}

	if event.IsSeqGenFinish() {
		s.mu.Lock()
		stream := s.genStream
		if stream != nil && stream.cid == event.CID {
			s.genStream = nil
			s.curGenOpts = nil
			s.mu.Unlock()
			stream.handleFinish(event)
		} else {
			s.mu.Unlock()
		}
	}

	if cid := event.CID; cid != "" {
		s.cmdMu.RLock()
		ch, ok := s.commands[cid]
		s.cmdMu.RUnlock()
		if ok {
			select {
			case ch <- event:
			default:
			}
		}
	}

	if event.IsSeqClosed() {
		s.handleClose(event)
	}
}

// handleToolCall services a model-initiated tool call transparently: each
// call is invoked in order, failures are logged and omitted from the
// results, and a single tool_return is sent reusing the triggering
// event's cid so the interrupted generation (its waiter and stream slot)
// resumes without a new correlation id.
//
// call.Args (the raw argument text) is always what reaches Tool.Call:
// schema validation is attempted against the parsed JSON first and
// skipped when parsing fails, but the tool itself always receives the
// same raw string either way. See DESIGN.md for why this collapses the
// parsed/raw distinction onto Tool's string-based signature instead of
// widening it to carry both shapes.
func (s *Seq) handleToolCall(event *MSEvent) {
	s.mu.RLock()
	var genOpts SeqGenData
	if s.curGenOpts != nil {
		genOpts = *s.curGenOpts
	}
	s.mu.RUnlock()

	ctx := s.client.ctx
	results := make([]ToolResult, 0, len(event.ToolCalls))

	for _, call := range event.ToolCalls {
		var parsed any
		parseErr := json.Unmarshal([]byte(call.Args), &parsed)

		s.toolsMu.RLock()
		it, ok := s.tools[call.Name]
		s.toolsMu.RUnlock()
		if !ok {
			s.client.logf(slog.LevelError, "tool call for unknown tool", "name", call.Name, "seq_id", s.id)
			continue
		}

		if parseErr == nil && it.schema != nil {
			if err := it.schema.Validate(parsed); err != nil {
				s.client.logf(slog.LevelError, "tool call arguments failed schema validation", "name", call.Name, "seq_id", s.id, "err", err)
				continue
			}
		}

		result, err := it.tool.Call(ctx, call.Args)
		if err != nil {
			s.client.logf(slog.LevelError, "tool invocation failed", "name", call.Name, "seq_id", s.id, "err", err)
			continue
		}

		results = append(results, ToolResult{Name: call.Name, Result: result})
	}

	req := NewToolReturnRequest(event.CID, s.id, results, genOpts)
	if err := s.client.send(ctx, req); err != nil {
		s.client.logf(slog.LevelError, "failed to send tool_return", "seq_id", s.id, "err", err)
	}
}

// handleClose handles sequence closure, draining every pending waiter
// (rejected with ErrSeqClosed) exactly once.
func (s *Seq) handleClose(event *MSEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = StateClosed
	if event != nil && event.ErrorMsg != "" {
		s.closeErr = &SeqError{SeqID: s.id, Message: event.ErrorMsg}
	}
	stream := s.genStream
	s.genStream = nil
	s.curGenOpts = nil
	s.mu.Unlock()

	if stream != nil {
		stream.handleClose()
	}

	s.cmdMu.Lock()
	pending := s.commands
	s.commands = make(map[string]chan *MSEvent)
	s.cmdMu.Unlock()

	closedEvent := &MSEvent{Event: "seq_closed", SeqID: s.id, local: true}
	for cid, ch := range pending {
		select {
		case ch <- closedEvent:
		default:
		}
		delete(pending, cid)
	}

	s.client.removeSeq(s.id)
}

// registerCommand registers a channel to receive a command response.
func (s *Seq) registerCommand(cid string) chan *MSEvent {
	ch := make(chan *MSEvent, 1)
	s.cmdMu.Lock()
	s.commands[cid] = ch
	s.cmdMu.Unlock()
	return ch
}

// unregisterCommand removes a command channel.
func (s *Seq) unregisterCommand(cid string) {
	s.cmdMu.Lock()
	delete(s.commands, cid)
	s.cmdMu.Unlock()
}

// terminalErr converts a command's terminal event into a Go error: a
// server error event becomes a ProtocolError, the synthetic seq_closed
// event handleClose sends to drain pending waiters becomes ErrSeqClosed,
// and anything else is success.
func terminalErr(event *MSEvent) error {
	if event.IsError() {
		return &ProtocolError{
			Message: event.Message,
			SeqID:   event.SeqID,
			CID:     event.CID,
		}
	}
	if event.local {
		return ErrSeqClosed
	}
	return nil
}
