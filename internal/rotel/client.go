package rotel

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/rotelhex/rotelhex/internal/charset"
	"github.com/rotelhex/rotelhex/internal/display"
	"github.com/rotelhex/rotelhex/internal/logging"
	"github.com/rotelhex/rotelhex/internal/model"
	"github.com/rotelhex/rotelhex/internal/protocol"
)

// DefaultRestartDelay is how long Restart waits after each power toggle
const DefaultRestartDelay = 4 * time.Second

// Option configures a Client
type Option func(*Client)

// WithTransportOptions passes options through to the Transport
func WithTransportOptions(opts ...TransportOption) Option {
	return func(c *Client) {
		c.transportOpts = append(c.transportOpts, opts...)
	}
}

// WithClientRecorder sets the recorder used by both the client and its
// transport
func WithClientRecorder(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.rec = r
			c.transportOpts = append(c.transportOpts, WithRecorder(r))
		}
	}
}

// WithObservers subscribes observers to the display state
func WithObservers(observers ...display.Observer) Option {
	return func(c *Client) {
		c.observers = append(c.observers, observers...)
	}
}

// WithRestartOnConnect power cycles the receiver when Connect succeeds
func WithRestartOnConnect(restart bool) Option {
	return func(c *Client) {
		c.restartOnConnect = restart
	}
}

// WithRestartDelay overrides DefaultRestartDelay
func WithRestartDelay(d time.Duration) Option {
	return func(c *Client) {
		c.restartDelay = d
	}
}

// WithCommandOptions sets framing options (device ID, command type) for every
// command the client builds
func WithCommandOptions(opts ...protocol.CommandOption) Option {
	return func(c *Client) {
		c.commandOpts = append(c.commandOpts, opts...)
	}
}

// Client drives one receiver: it keeps the display state current from a
// monitor goroutine and turns named operations into command sequences.
type Client struct {
	model     *model.Model
	chars     charset.Map
	transport *Transport
	display   *display.State
	rec       Recorder

	transportOpts    []TransportOption
	commandOpts      []protocol.CommandOption
	observers        []display.Observer
	restartOnConnect bool
	restartDelay     time.Duration

	// seqMu keeps multi-command procedures whole on the wire
	seqMu sync.Mutex

	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	monitoring bool
}

// NewClient creates a client for the given command table and character map.
// A nil chars uses charset.Default.
func NewClient(m *model.Model, chars charset.Map, opener Opener, opts ...Option) *Client {
	if chars == nil {
		chars = charset.Default
	}
	c := &Client{
		model:        m,
		chars:        chars,
		rec:          nopRecorder{},
		restartDelay: DefaultRestartDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.transport = NewTransport(opener, c.transportOpts...)
	c.display = display.New(c.observers...)
	return c
}

// Connect opens the channel and starts the monitor loop. ctx bounds the open
// (and the restart, if enabled); the monitor runs until Close.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.monitoring {
		c.mu.Unlock()
		return nil
	}
	if err := c.transport.Open(ctx); err != nil {
		c.mu.Unlock()
		return err
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.monitoring = true
	go c.monitor(monitorCtx, c.done)
	c.mu.Unlock()

	if c.restartOnConnect {
		return c.Restart(ctx)
	}
	return nil
}

func (c *Client) monitor(ctx context.Context, done chan struct{}) {
	defer close(done)
	err := c.transport.Run(ctx, c.handle)
	if err != nil && !errors.Is(err, context.Canceled) && !IsClosed(err) {
		logging.Error("Monitor loop stopped", zap.Error(err))
	}
}

func (c *Client) handle(resp *protocol.Response) {
	u := c.display.Update(resp)
	if u.Changed() {
		logging.Debug("Display changed",
			zap.String("source", u.Source.String()),
			zap.String("record", u.Record.String()),
			zap.Stringer("power", u.PowerState),
		)
	}
}

// Close stops the monitor loop and closes the channel
func (c *Client) Close() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.monitoring = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := c.transport.Close()
	if done != nil {
		<-done
	}
	return err
}

func (c *Client) isMonitoring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monitoring
}

// Display returns the live display state
func (c *Client) Display() *display.State {
	return c.display
}

// Model returns the client's command table
func (c *Client) Model() *model.Model {
	return c.model
}

// Charset returns the client's character map
func (c *Client) Charset() charset.Map {
	return c.chars
}

// ValidCommands lists every command name the model knows
func (c *Client) ValidCommands() []string {
	return c.model.Names()
}

// BasicSources lists the functions that can be selected as source
func (c *Client) BasicSources() []string {
	return c.model.Sources()
}

// Send writes a prebuilt command
func (c *Client) Send(ctx context.Context, cmd *protocol.Command) error {
	return c.transport.Send(ctx, cmd)
}

// SendNamed sends the command registered under name. It waits for any label
// or restart sequence in progress to finish.
func (c *Client) SendNamed(ctx context.Context, name string) error {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	return c.sendNamed(ctx, name)
}

func (c *Client) sendNamed(ctx context.Context, name string) error {
	cmd, err := c.command(name)
	if err != nil {
		return err
	}
	return c.send(ctx, name, cmd)
}

func (c *Client) send(ctx context.Context, name string, cmd *protocol.Command) error {
	if err := c.transport.Send(ctx, cmd); err != nil {
		return err
	}
	c.rec.CommandSent(name)
	return nil
}

func (c *Client) command(name string) (*protocol.Command, error) {
	code, ok := c.model.Lookup(name)
	if !ok {
		return nil, NewInvalidArgumentError("unknown command %q for model %s", name, c.model.Name)
	}
	return protocol.NewCommand([]byte{code}, c.commandOpts...), nil
}

// sendSequence sends names in order, stopping at the first failure
func (c *Client) sendSequence(ctx context.Context, names []string) error {
	for _, name := range names {
		if err := c.sendNamed(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// SetSource selects fn (e.g. "cd") as the listening source
func (c *Client) SetSource(ctx context.Context, fn string) error {
	name := model.SourcePrefix + fn
	if _, ok := c.model.Lookup(name); !ok {
		return NewInvalidArgumentError("unknown source function %q", fn)
	}
	return c.SendNamed(ctx, name)
}

// SetRecord selects fn as the record output
func (c *Client) SetRecord(ctx context.Context, fn string) error {
	name := model.RecordPrefix + fn
	if _, ok := c.model.Lookup(name); !ok {
		return NewInvalidArgumentError("unknown record function %q", fn)
	}
	return c.SendNamed(ctx, name)
}

// labelSequence validates a label and returns the commands that program it.
// Nothing is sent.
//
// Each character is reached by pressing char_next as many times as its index
// in the character map (the panel starts every position blank), then
// char_enter. A five character label leaves label change mode on its own; a
// shorter one needs a closing label_change.
func (c *Client) labelSequence(fn, label string) ([]string, error) {
	if n := len([]rune(label)); n > protocol.SegmentLen {
		return nil, NewInvalidArgumentError("label %q is %d characters long (maximum %d)", label, n, protocol.SegmentLen)
	}
	indices, err := c.chars.Indices(label)
	if err != nil {
		return nil, &Error{Type: ErrTypeInvalidArgument, Message: "label cannot be entered", Err: err}
	}

	source := model.SourcePrefix + fn
	if _, ok := c.model.Lookup(source); !ok {
		return nil, NewInvalidArgumentError("unknown source function %q", fn)
	}
	for _, name := range []string{model.LabelChange, model.CharNext, model.CharEnter} {
		if _, ok := c.model.Lookup(name); !ok {
			return nil, NewInvalidArgumentError("model %s cannot program labels: no %q command", c.model.Name, name)
		}
	}

	seq := []string{source, model.LabelChange}
	for _, idx := range indices {
		for i := 0; i < idx; i++ {
			seq = append(seq, model.CharNext)
		}
		seq = append(seq, model.CharEnter)
	}
	if len(indices) < protocol.SegmentLen {
		seq = append(seq, model.LabelChange)
	}
	return seq, nil
}

// SetLabel programs label as the display name of source fn. The label is
// validated before anything is sent.
func (c *Client) SetLabel(ctx context.Context, fn, label string) error {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	return c.setLabel(ctx, fn, label)
}

func (c *Client) setLabel(ctx context.Context, fn, label string) error {
	seq, err := c.labelSequence(fn, label)
	if err != nil {
		return err
	}

	logging.Info("Programming label",
		zap.String("function", fn),
		zap.String("label", label),
		zap.Int("commands", len(seq)),
	)

	if err := c.sendNamed(ctx, seq[0]); err != nil {
		return err
	}
	if err := c.sendNamed(ctx, seq[1]); err != nil {
		return err
	}
	c.display.SetLabelChange(true)
	defer c.display.SetLabelChange(false)

	return c.sendSequence(ctx, seq[2:])
}

// ApplyLabels programs several labels, in function name order. Every label is
// validated before the first one is sent.
func (c *Client) ApplyLabels(ctx context.Context, labels map[string]string) error {
	fns := make([]string, 0, len(labels))
	for fn := range labels {
		fns = append(fns, fn)
	}
	sort.Strings(fns)

	c.seqMu.Lock()
	defer c.seqMu.Unlock()

	for _, fn := range fns {
		if _, err := c.labelSequence(fn, labels[fn]); err != nil {
			return err
		}
	}
	for _, fn := range fns {
		if err := c.setLabel(ctx, fn, labels[fn]); err != nil {
			return err
		}
	}
	return nil
}

// ToggleLabelChange sends label_change and flips local label change mode
func (c *Client) ToggleLabelChange(ctx context.Context) error {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()

	if err := c.sendNamed(ctx, model.LabelChange); err != nil {
		return err
	}
	c.display.SetLabelChange(!c.display.LabelChange())
	return nil
}

// Restart power cycles the receiver: power_toggle, wait, power_toggle, wait.
// It puts the receiver into a known state after connecting.
func (c *Client) Restart(ctx context.Context) error {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()

	for i := 0; i < 2; i++ {
		if err := c.sendNamed(ctx, model.PowerToggle); err != nil {
			return err
		}
		if err := sleepCtx(ctx, c.restartDelay); err != nil {
			return err
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Read collects up to max responses. Without a running monitor loop the
// responses are also folded into the display state.
func (c *Client) Read(ctx context.Context, max int) ([]*protocol.Response, error) {
	monitoring := c.isMonitoring()
	if !monitoring {
		if err := c.transport.Open(ctx); err != nil {
			return nil, err
		}
	}
	resps, err := c.transport.Read(ctx, max)
	if !monitoring {
		for _, resp := range resps {
			c.handle(resp)
		}
	}
	return resps, err
}

// ConstantBackOff returns a reopen policy with a fixed interval. Tests and
// the CLI's one-shot commands use it.
func ConstantBackOff(d time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		return backoff.NewConstantBackOff(d)
	}
}
