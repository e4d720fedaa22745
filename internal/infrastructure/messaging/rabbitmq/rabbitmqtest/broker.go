// Package rabbitmqtest provides an in-memory broker that speaks the subset of
// AMQP 0-9-1 the rabbitmq client uses: topic and fanout exchanges, the
// default exchange, exclusive server-named queues, manual acks and
// connection loss.
package rabbitmqtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/baechuer/content-platform/internal/infrastructure/messaging/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is a publish the broker accepted.
type Message struct {
	Exchange   string
	RoutingKey string
	Publishing amqp.Publishing
}

type Broker struct {
	mu sync.Mutex

	exchanges map[string]string
	queues    map[string]*queue
	bindings  []bindingRow
	conns     []*Conn
	seq       int

	dialErr       error
	dials         int
	failPublishes int
	published     []Message
	acked         int
	nacked        int
}

type bindingRow struct {
	exchange, key, queue string
}

type queue struct {
	name     string
	owner    *Conn
	ready    []amqp.Delivery
	consumer *consumer
}

type consumer struct {
	tag string
	ch  *Channel
	out chan amqp.Delivery
}

func NewBroker() *Broker {
	return &Broker{
		exchanges: map[string]string{},
		queues:    map[string]*queue{},
	}
}

// Dial is a rabbitmq.Dialer.
func (b *Broker) Dial(string) (rabbitmq.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	c := &Conn{b: b}
	b.conns = append(b.conns, c)
	return c, nil
}

// SetDialError makes every following Dial fail with err (nil restores).
func (b *Broker) SetDialError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErr = err
}

// FailNextPublishes makes the next n publishes fail and close their channel,
// the way a broker-side channel error would.
func (b *Broker) FailNextPublishes(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failPublishes = n
}

// DeclareExchange pre-creates an exchange, e.g. to provoke a kind conflict.
func (b *Broker) DeclareExchange(name, kind string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exchanges[name] = kind
}

// Kill drops every open connection with CONNECTION_FORCED.
func (b *Broker) Kill() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		if !c.closed {
			b.closeConnLocked(c, &amqp.Error{Code: amqp.ConnectionForced, Reason: "CONNECTION_FORCED - broker forced connection closure", Server: true})
		}
	}
}

func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// Published returns accepted publishes to exchange ("" for the default exchange).
func (b *Broker) Published(exchange string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Message
	for _, m := range b.published {
		if m.Exchange == exchange {
			out = append(out, m)
		}
	}
	return out
}

func (b *Broker) Acked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acked
}

// Depth counts ready plus delivered-but-unacked messages on the named queue.
func (b *Broker) Depth(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return 0
	}
	n := len(q.ready)
	for _, c := range b.conns {
		for _, ch := range c.channels {
			for _, u := range ch.unacked {
				if u.queue == name {
					n++
				}
			}
		}
	}
	return n
}

// Bound lists the queues bound to exchange with key.
func (b *Broker) Bound(exchange, key string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, row := range b.bindings {
		if row.exchange == exchange && row.key == key {
			out = append(out, row.queue)
		}
	}
	return out
}

func (b *Broker) routeLocked(exchange, key string, msg amqp.Publishing) {
	b.published = append(b.published, Message{Exchange: exchange, RoutingKey: key, Publishing: msg})

	if exchange == "" {
		if q, ok := b.queues[key]; ok {
			b.enqueueLocked(q, exchange, key, msg)
		}
		return
	}
	kind := b.exchanges[exchange]
	seen := map[string]bool{}
	for _, row := range b.bindings {
		if row.exchange != exchange || seen[row.queue] {
			continue
		}
		if kind == amqp.ExchangeFanout || TopicMatch(row.key, key) {
			if q, ok := b.queues[row.queue]; ok {
				seen[row.queue] = true
				b.enqueueLocked(q, exchange, key, msg)
			}
		}
	}
}

func (b *Broker) enqueueLocked(q *queue, exchange, key string, msg amqp.Publishing) {
	q.ready = append(q.ready, amqp.Delivery{
		Headers:      msg.Headers,
		ContentType:  msg.ContentType,
		DeliveryMode: msg.DeliveryMode,
		MessageId:    msg.MessageId,
		Timestamp:    msg.Timestamp,
		Type:         msg.Type,
		Body:         msg.Body,
		Exchange:     exchange,
		RoutingKey:   key,
	})
	b.dispatchLocked(q)
}

func (b *Broker) requeueLocked(u unacked) {
	q, ok := b.queues[u.queue]
	if !ok {
		return
	}
	d := u.d
	d.Redelivered = true
	d.Acknowledger = nil
	q.ready = append(q.ready, d)
	b.dispatchLocked(q)
}

func (b *Broker) dispatchLocked(q *queue) {
	if q.consumer == nil {
		return
	}
	c := q.consumer
	for _, d := range q.ready {
		c.ch.nextTag++
		d.DeliveryTag = c.ch.nextTag
		d.ConsumerTag = c.tag
		d.Acknowledger = c.ch
		c.ch.unacked[d.DeliveryTag] = unacked{queue: q.name, d: d}
		c.out <- d
	}
	q.ready = nil
}

func (b *Broker) closeChannelLocked(ch *Channel, cause *amqp.Error) {
	if ch.closed {
		return
	}
	ch.closed = true
	for tag, c := range ch.consumers {
		if q := b.consumerQueue(c); q != nil {
			q.consumer = nil
		}
		close(c.out)
		delete(ch.consumers, tag)
	}
	for tag, u := range ch.unacked {
		delete(ch.unacked, tag)
		b.requeueLocked(u)
	}
	notify(ch.notify, cause)
	ch.notify = nil
}

func (b *Broker) closeConnLocked(c *Conn, cause *amqp.Error) {
	if c.closed {
		return
	}
	c.closed = true
	for _, ch := range c.channels {
		b.closeChannelLocked(ch, cause)
	}
	for name, q := range b.queues {
		if q.owner != c {
			continue
		}
		delete(b.queues, name)
		kept := b.bindings[:0]
		for _, row := range b.bindings {
			if row.queue != name {
				kept = append(kept, row)
			}
		}
		b.bindings = kept
	}
	notify(c.notify, cause)
	c.notify = nil
}

func (b *Broker) consumerQueue(c *consumer) *queue {
	for _, q := range b.queues {
		if q.consumer == c {
			return q
		}
	}
	return nil
}

func notify(chans []chan *amqp.Error, cause *amqp.Error) {
	for _, n := range chans {
		if cause != nil {
			select {
			case n <- cause:
			default:
			}
		}
		close(n)
	}
}

// Conn is a fake connection.
type Conn struct {
	b        *Broker
	closed   bool
	notify   []chan *amqp.Error
	channels []*Channel
}

func (c *Conn) Channel() (rabbitmq.Channel, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	ch := &Channel{b: c.b, conn: c, consumers: map[string]*consumer{}, unacked: map[uint64]unacked{}}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *Conn) NotifyClose(n chan *amqp.Error) chan *amqp.Error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		close(n)
		return n
	}
	c.notify = append(c.notify, n)
	return n
}

func (c *Conn) IsClosed() bool {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.closed
}

func (c *Conn) Close() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	c.b.closeConnLocked(c, nil)
	return nil
}

type unacked struct {
	queue string
	d     amqp.Delivery
}

// Channel is a fake channel; it is also the Acknowledger of its deliveries.
type Channel struct {
	b         *Broker
	conn      *Conn
	closed    bool
	notify    []chan *amqp.Error
	consumers map[string]*consumer
	unacked   map[uint64]unacked
	nextTag   uint64
}

func (ch *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	b := ch.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	if existing, ok := b.exchanges[name]; ok && existing != kind {
		err := &amqp.Error{
			Code:   amqp.PreconditionFailed,
			Reason: fmt.Sprintf("PRECONDITION_FAILED - inequivalent arg 'type' for exchange '%s': received '%s' but current is '%s'", name, kind, existing),
			Server: true,
		}
		b.closeChannelLocked(ch, err)
		return err
	}
	b.exchanges[name] = kind
	return nil
}

func (ch *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	b := ch.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch.closed {
		return amqp.Queue{}, amqp.ErrClosed
	}
	if name == "" {
		b.seq++
		name = fmt.Sprintf("amq.gen-%d", b.seq)
	}
	q, ok := b.queues[name]
	if !ok {
		q = &queue{name: name}
		if exclusive {
			q.owner = ch.conn
		}
		b.queues[name] = q
	}
	return amqp.Queue{Name: name, Messages: len(q.ready)}, nil
}

func (ch *Channel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	b := ch.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	if _, ok := b.queues[name]; !ok {
		return &amqp.Error{Code: amqp.NotFound, Reason: "NOT_FOUND - no queue '" + name + "'"}
	}
	if _, ok := b.exchanges[exchange]; !ok {
		return &amqp.Error{Code: amqp.NotFound, Reason: "NOT_FOUND - no exchange '" + exchange + "'"}
	}
	b.bindings = append(b.bindings, bindingRow{exchange: exchange, key: key, queue: name})
	return nil
}

func (ch *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	return nil
}

func (ch *Channel) Consume(queueName, tag string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	b := ch.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch.closed {
		return nil, amqp.ErrClosed
	}
	q, ok := b.queues[queueName]
	if !ok {
		return nil, &amqp.Error{Code: amqp.NotFound, Reason: "NOT_FOUND - no queue '" + queueName + "'"}
	}
	if q.consumer != nil {
		return nil, &amqp.Error{Code: amqp.AccessRefused, Reason: "ACCESS_REFUSED - queue already has an exclusive consumer"}
	}
	c := &consumer{tag: tag, ch: ch, out: make(chan amqp.Delivery, 1024)}
	q.consumer = c
	ch.consumers[tag] = c
	b.dispatchLocked(q)
	return c.out, nil
}

func (ch *Channel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := ch.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	if b.failPublishes > 0 {
		b.failPublishes--
		err := &amqp.Error{Code: amqp.ChannelError, Reason: "CHANNEL_ERROR - injected publish failure", Server: true}
		b.closeChannelLocked(ch, err)
		return err
	}
	if exchange != "" {
		if _, ok := b.exchanges[exchange]; !ok {
			err := &amqp.Error{Code: amqp.NotFound, Reason: "NOT_FOUND - no exchange '" + exchange + "'"}
			b.closeChannelLocked(ch, err)
			return err
		}
	}
	b.routeLocked(exchange, key, msg)
	return nil
}

func (ch *Channel) Cancel(tag string, noWait bool) error {
	b := ch.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	c, ok := ch.consumers[tag]
	if !ok {
		return errors.New("unknown consumer tag " + tag)
	}
	if q := b.consumerQueue(c); q != nil {
		q.consumer = nil
	}
	close(c.out)
	delete(ch.consumers, tag)
	return nil
}

func (ch *Channel) NotifyClose(n chan *amqp.Error) chan *amqp.Error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		close(n)
		return n
	}
	ch.notify = append(ch.notify, n)
	return n
}

func (ch *Channel) IsClosed() bool {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	return ch.closed
}

func (ch *Channel) Close() error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	ch.b.closeChannelLocked(ch, nil)
	return nil
}

func (ch *Channel) Ack(tag uint64, multiple bool) error {
	b := ch.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	if _, ok := ch.unacked[tag]; !ok {
		return fmt.Errorf("unknown delivery tag %d", tag)
	}
	delete(ch.unacked, tag)
	b.acked++
	return nil
}

func (ch *Channel) Nack(tag uint64, multiple, requeue bool) error {
	b := ch.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	u, ok := ch.unacked[tag]
	if !ok {
		return fmt.Errorf("unknown delivery tag %d", tag)
	}
	delete(ch.unacked, tag)
	b.nacked++
	if requeue {
		b.requeueLocked(u)
	}
	return nil
}

func (ch *Channel) Reject(tag uint64, requeue bool) error {
	return ch.Nack(tag, false, requeue)
}

// TopicMatch reports whether routing key matches a topic binding pattern.
func TopicMatch(pattern, key string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(key, "."))
}

func matchWords(p, k []string) bool {
	if len(p) == 0 {
		return len(k) == 0
	}
	switch p[0] {
	case "#":
		for i := 0; i <= len(k); i++ {
			if matchWords(p[1:], k[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(k) > 0 && matchWords(p[1:], k[1:])
	default:
		return len(k) > 0 && p[0] == k[0] && matchWords(p[1:], k[1:])
	}
}

var _ rabbitmq.Connection = (*Conn)(nil)
var _ rabbitmq.Channel = (*Channel)(nil)
var _ amqp.Acknowledger = (*Channel)(nil)
