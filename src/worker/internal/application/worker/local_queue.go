package worker

import (
	"sync"

	"github.com/apex/log"
	"github.com/cockroachdb/errors"
	"github.com/rabbitmq/amqp091-go"
)

const DefaultLocalQueueCapacity = 1024

var _ MessageChannel = &LocalQueue{}

// LocalQueue is an in-process stand-in for a RabbitMQ queue, used when the
// server runs its own worker.
type LocalQueue struct {
	lock       sync.Mutex
	deliveries chan amqp091.Delivery
	closed     bool
	nextTag    uint64
}

func NewLocalQueue(capacity int) *LocalQueue {
	if capacity < 1 {
		capacity = DefaultLocalQueueCapacity
	}

	return &LocalQueue{
		deliveries: make(chan amqp091.Delivery, capacity),
	}
}

func (l *LocalQueue) Publish(msg amqp091.Publishing) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.closed {
		return amqp091.ErrClosed
	}

	l.nextTag++
	delivery := amqp091.Delivery{
		Acknowledger:    localAcknowledger{queue: l, msg: msg},
		ContentType:     msg.ContentType,
		ContentEncoding: msg.ContentEncoding,
		DeliveryMode:    msg.DeliveryMode,
		Timestamp:       msg.Timestamp,
		Type:            msg.Type,
		Body:            msg.Body,
		DeliveryTag:     l.nextTag,
	}

	select {
	case l.deliveries <- delivery:
		return nil
	default:
		return errors.Newf("Local queue is full (%d messages)", cap(l.deliveries))
	}
}

func (l *LocalQueue) Consume(_ string, _ string, _ bool, _ bool, _ bool, _ bool, _ amqp091.Table) (<-chan amqp091.Delivery, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.closed {
		return nil, amqp091.ErrClosed
	}

	return l.deliveries, nil
}

func (l *LocalQueue) Close() error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if !l.closed {
		l.closed = true
		close(l.deliveries)
	}

	return nil
}

type localAcknowledger struct {
	queue *LocalQueue
	msg   amqp091.Publishing
}

func (a localAcknowledger) Ack(uint64, bool) error {
	return nil
}

func (a localAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	return a.Reject(tag, requeue)
}

func (a localAcknowledger) Reject(tag uint64, requeue bool) error {
	if !requeue {
		log.WithFields(log.Fields{"message_type": a.msg.Type, "delivery_tag": tag}).
			Warn("Dropping rejected message")
		return nil
	}

	return a.queue.Publish(a.msg)
}
