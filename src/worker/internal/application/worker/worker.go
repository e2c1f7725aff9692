package worker

import (
	"sync"

	"github.com/apex/log"
	"github.com/jasonlryan/demucs/src/shared/lib/cerr"
	"github.com/rabbitmq/amqp091-go"
)

type MessageChannel interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Close() error
}

type MessageHandler interface {
	HandleMessage(message amqp091.Delivery) error
}

type QueueWorker struct {
	channel     MessageChannel
	channelLock *sync.Mutex
	handler     MessageHandler
	queueName   string
	concurrency int
}

func NewQueueWorker(channel MessageChannel, queueName string, handler MessageHandler, concurrency int) QueueWorker {
	if concurrency < 1 {
		concurrency = 1
	}

	return QueueWorker{
		channel:     channel,
		channelLock: &sync.Mutex{},
		queueName:   queueName,
		handler:     handler,
		concurrency: concurrency,
	}
}

func NewQueueWorkerFromConnection(conn *amqp091.Connection, queueName string, handler MessageHandler, concurrency int) (QueueWorker, error) {
	rabbitChannel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return QueueWorker{}, cerr.Wrap(err).Error("Failed to get channel")
	}

	queue, err := rabbitChannel.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)

	if err != nil {
		_ = rabbitChannel.Close()
		return QueueWorker{}, cerr.Wrap(err).Error("Failed to declare queue")
	}

	// jobs are long, don't let the broker hand this worker more than it runs
	if err = rabbitChannel.Qos(concurrency, 0, false); err != nil {
		_ = rabbitChannel.Close()
		return QueueWorker{}, cerr.Field("concurrency", concurrency).
			Wrap(err).Error("Failed to set the prefetch count")
	}

	return NewQueueWorker(rabbitChannel, queue.Name, handler, concurrency), nil
}

// Start consumes until the channel closes, then waits for in-flight messages.
func (q *QueueWorker) Start() error {
	log.WithField("concurrency", q.concurrency).Info("Starting worker")

	q.channelLock.Lock()
	if q.channel == nil {
		q.channelLock.Unlock()
		return cerr.Error("Worker has been stopped")
	}

	defer q.channel.Close()

	messageStream, err := q.channel.Consume(
		q.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	q.channelLock.Unlock()

	if err != nil {
		return cerr.Field("queue_name", q.queueName).
			Wrap(err).Error("Failed to start consuming from channel")
	}

	wg := sync.WaitGroup{}
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for message := range messageStream {
				q.handle(message)
			}
		}()
	}

	wg.Wait()
	return nil
}

func (q *QueueWorker) handle(message amqp091.Delivery) {
	logger := log.WithField("message_type", message.Type)
	logger.Info("Handling message")

	err := q.handler.HandleMessage(message)
	if err != nil {
		err = cerr.Field("message_type", message.Type).
			Wrap(err).Error("Failed to process message")

		cerr.Log(err)

		if err = message.Nack(false, false); err != nil {
			logger.Error("Failed to nack message")
		}
	} else {
		logger.Info("Successfully processed message")
		if err = message.Ack(false); err != nil {
			logger.Error("Failed to ack message")
		}
	}
}

func (q *QueueWorker) Stop() {
	q.channelLock.Lock()
	defer q.channelLock.Unlock()
	if q.channel == nil {
		return
	}
	_ = q.channel.Close()
	q.channel = nil
}
