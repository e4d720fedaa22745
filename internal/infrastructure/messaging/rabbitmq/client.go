package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/baechuer/content-platform/internal/contracts/event"
	"github.com/baechuer/content-platform/internal/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateBound        State = "bound"
	StateConsuming    State = "consuming"
	StateShuttingDown State = "shutting_down"
)

var allStates = []string{
	string(StateDisconnected), string(StateConnecting), string(StateBound),
	string(StateConsuming), string(StateShuttingDown),
}

// FailurePolicy decides what happens to a delivery whose handler failed
// with a transient error.
type FailurePolicy string

const (
	// FailureRetry republishes the message to its own queue with an attempt
	// counter and dead-letters it after MaxAttempts.
	FailureRetry FailurePolicy = "retry"
	// FailureUnacked leaves the delivery unacknowledged. The broker
	// redelivers it only after the channel closes.
	FailureUnacked FailurePolicy = "unacked"
)

const (
	headerRetryCount          = "x-retry-count"
	headerOriginalRoutingKey  = "x-original-routing-key"
	headerDeadLetterReason    = "x-dead-letter-reason"
	headerDeadLetterLastError = "x-last-error"
)

type Options struct {
	URL      string
	Exchange string
	// Service names the consumer tags and the dead-letter queue (<service>.dlq).
	Service string

	Prefetch    int
	DialTimeout time.Duration
	MaxAttempts int
	Failure     FailurePolicy
	RetryDelay  time.Duration // base delay before a retry republish, doubled per attempt
	BackoffMin  time.Duration
	BackoffMax  time.Duration

	Dial   Dialer
	Logger zerolog.Logger
}

func (o *Options) withDefaults() {
	if o.Exchange == "" {
		o.Exchange = "content.events"
	}
	if o.Service == "" {
		o.Service = "content"
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.Failure == "" {
		o.Failure = FailureRetry
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 200 * time.Millisecond
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = 1 * time.Second
	}
	if o.BackoffMax < o.BackoffMin {
		o.BackoffMax = 30 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.Dial == nil {
		o.Dial = NewDialer(o.DialTimeout)
	}
}

type binding struct {
	routingKey string
	handler    event.HandlerFunc

	queue string
	tag   string
}

// Client owns one broker connection and one channel shared by publishing
// and every subscription of the process.
type Client struct {
	opts Options
	lg   zerolog.Logger

	mu         sync.Mutex
	conn       Connection
	ch         Channel
	gen        uint64
	lost       chan struct{} // closed when the current connection or channel dies
	state      State
	closing    bool
	connecting bool
	bindings   []*binding

	consumers sync.WaitGroup
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewClient(opts Options) *Client {
	opts.withDefaults()
	c := &Client{
		opts:  opts,
		lg:    opts.Logger.With().Str("component", "rabbitmq").Str("exchange", opts.Exchange).Logger(),
		state: StateDisconnected,
		stop:  make(chan struct{}),
	}
	metrics.SetBrokerState(string(c.state), allStates)
	return c
}

// Connect establishes the connection and channel and declares the exchange.
// Failure here is fatal for the caller: services must not start serving
// without a broker.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.reconnect()
}

// EnsureExchange declares an exchange on the live channel.
func (c *Client) EnsureExchange(name, kind string, durable bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.healthyLocked() {
		return errChannelNotReady
	}
	return ensureExchange(c.ch, name, kind, durable)
}

func ensureExchange(ch Channel, name, kind string, durable bool) error {
	if err := ch.ExchangeDeclare(name, kind, durable, false, false, false, nil); err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("%w: exchange %q: %v", ErrTopologyConflict, name, err)
		}
		return fmt.Errorf("declare exchange %q: %w", name, err)
	}
	return nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether the client can publish right now.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthyLocked() && (c.state == StateBound || c.state == StateConsuming)
}

func (c *Client) dlxName() string { return c.opts.Exchange + ".dlx" }
func (c *Client) dlqName() string { return c.opts.Service + ".dlq" }

func (c *Client) declareTopology(ch Channel) error {
	if err := ensureExchange(ch, c.opts.Exchange, amqp.ExchangeTopic, true); err != nil {
		return err
	}
	if err := ensureExchange(ch, c.dlxName(), amqp.ExchangeTopic, true); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(c.dlqName(), true, false, false, false, nil); err != nil {
		if isPreconditionFailed(err) {
			return fmt.Errorf("%w: queue %q: %v", ErrTopologyConflict, c.dlqName(), err)
		}
		return fmt.Errorf("declare dlq: %w", err)
	}
	if err := ch.QueueBind(c.dlqName(), c.opts.Service+".#", c.dlxName(), false, nil); err != nil {
		return fmt.Errorf("bind dlq: %w", err)
	}
	return nil
}

func (c *Client) healthyLocked() bool {
	return c.conn != nil && c.ch != nil && !c.conn.IsClosed() && !c.ch.IsClosed()
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.lg.Info().Str("from", string(c.state)).Str("to", string(s)).Msg("broker state")
	c.state = s
	metrics.SetBrokerState(string(s), allStates)
}

// dropLocked releases the current connection without touching bindings.
func (c *Client) dropLocked() {
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// reconnect replaces the connection, re-declares the topology and every
// registered binding, then restarts consumption. Nothing is consumed until
// all bindings are back. The dial runs without holding c.mu, so publishers
// never queue behind it; at most one reconnect runs at a time and a second
// caller gets errReconnecting.
func (c *Client) reconnect() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.connecting {
		c.mu.Unlock()
		return errReconnecting
	}
	c.connecting = true
	c.setStateLocked(StateConnecting)
	c.dropLocked()
	c.mu.Unlock()

	conn, ch, err := c.open()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.connecting = false
	if c.closing {
		if err == nil {
			_ = ch.Close()
			closeConn(conn)
		}
		return ErrClosed
	}
	if err != nil {
		c.setStateLocked(StateDisconnected)
		return err
	}

	c.conn, c.ch = conn, ch
	c.gen++
	c.lost = watch(conn, ch)

	for _, b := range c.bindings {
		if err := c.bindLocked(b); err != nil {
			c.dropLocked()
			c.setStateLocked(StateDisconnected)
			return err
		}
	}
	c.setStateLocked(StateBound)

	for _, b := range c.bindings {
		if err := c.startConsumerLocked(b); err != nil {
			c.dropLocked()
			c.setStateLocked(StateDisconnected)
			return err
		}
	}
	if len(c.bindings) > 0 {
		c.setStateLocked(StateConsuming)
	}

	c.lg.Info().Uint64("generation", c.gen).Int("bindings", len(c.bindings)).Msg("rabbitmq connected")
	return nil
}

// open dials and prepares a channel with the shared topology declared.
func (c *Client) open() (Connection, Channel, error) {
	conn, err := c.opts.Dial(c.opts.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		closeConn(conn)
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if c.opts.Prefetch > 0 {
		if err := ch.Qos(c.opts.Prefetch, 0, false); err != nil {
			_ = ch.Close()
			closeConn(conn)
			return nil, nil, fmt.Errorf("rabbitmq qos: %w", err)
		}
	}
	if err := c.declareTopology(ch); err != nil {
		_ = ch.Close()
		closeConn(conn)
		return nil, nil, err
	}
	return conn, ch, nil
}

func watch(conn Connection, ch Channel) chan struct{} {
	lost := make(chan struct{})
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		select {
		case <-connClosed:
		case <-chClosed:
		}
		close(lost)
	}()
	return lost
}

// Close stops consuming, waits for in-flight handlers (bounded by ctx), then
// closes the channel and finally the connection.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.setStateLocked(StateShuttingDown)
	c.stopOnce.Do(func() { close(c.stop) })

	if c.ch != nil && !c.ch.IsClosed() {
		for _, b := range c.bindings {
			if b.tag == "" {
				continue
			}
			if err := c.ch.Cancel(b.tag, false); err != nil {
				c.lg.Warn().Err(err).Str("consumer", b.tag).Msg("cancel consumer")
			}
		}
		c.lg.Info().Int("consumers", len(c.bindings)).Msg("consumers cancelled")
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.consumers.Wait()
		close(done)
	}()
	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = ctx.Err()
		c.lg.Warn().Err(waitErr).Msg("in-flight handlers did not finish before shutdown deadline")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	if c.ch != nil {
		if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.lg.Warn().Err(err).Msg("close channel")
			errs = append(errs, err)
		} else {
			c.lg.Info().Msg("channel closed")
		}
		c.ch = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.lg.Warn().Err(err).Msg("close connection")
			errs = append(errs, err)
		}
		c.conn = nil
	}
	c.lg.Info().Msg("rabbitmq closed")

	if waitErr != nil {
		errs = append(errs, waitErr)
	}
	return errors.Join(errs...)
}

func closeConn(conn Connection) {
	if conn == nil {
		return
	}
	_ = conn.Close()
}
