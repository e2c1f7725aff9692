package worker_test

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/jasonlryan/demucs/src/worker/internal/application/worker"
	"github.com/rabbitmq/amqp091-go"
)

type handlerFunc func(message amqp091.Delivery) error

func (h handlerFunc) HandleMessage(message amqp091.Delivery) error {
	return h(message)
}

var _ = Describe("QueueWorker", func() {
	var (
		queue   *worker.LocalQueue
		handled atomic.Int32
	)

	start := func(handler worker.MessageHandler, concurrency int) chan struct{} {
		queueWorker := worker.NewQueueWorker(queue, "local", handler, concurrency)
		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			Expect(queueWorker.Start()).To(Succeed())
		}()
		return done
	}

	BeforeEach(func() {
		queue = worker.NewLocalQueue(8)
		handled.Store(0)
	})

	It("handles messages concurrently", func() {
		release := make(chan struct{})
		running := atomic.Int32{}

		done := start(handlerFunc(func(amqp091.Delivery) error {
			running.Add(1)
			<-release
			handled.Add(1)
			return nil
		}), 3)

		for i := 0; i < 3; i++ {
			Expect(queue.Publish(amqp091.Publishing{Type: "separate_job"})).To(Succeed())
		}

		Eventually(running.Load).Should(BeEquivalentTo(3))
		close(release)
		Eventually(handled.Load).Should(BeEquivalentTo(3))

		Expect(queue.Close()).To(Succeed())
		Eventually(done).Should(BeClosed())
	})

	It("finishes in-flight messages before Start returns", func() {
		started := make(chan struct{})
		once := sync.Once{}

		done := start(handlerFunc(func(amqp091.Delivery) error {
			once.Do(func() { close(started) })
			time.Sleep(50 * time.Millisecond)
			handled.Add(1)
			return nil
		}), 1)

		Expect(queue.Publish(amqp091.Publishing{Type: "refine_job"})).To(Succeed())
		Eventually(started).Should(BeClosed())

		Expect(queue.Close()).To(Succeed())
		Eventually(done).Should(BeClosed())
		Expect(handled.Load()).To(BeEquivalentTo(1))
	})

	It("does not requeue failed messages", func() {
		done := start(handlerFunc(func(amqp091.Delivery) error {
			handled.Add(1)
			return errors.New("boom")
		}), 1)

		Expect(queue.Publish(amqp091.Publishing{Type: "separate_job"})).To(Succeed())
		Eventually(handled.Load).Should(BeEquivalentTo(1))
		Consistently(handled.Load).Should(BeEquivalentTo(1))

		Expect(queue.Close()).To(Succeed())
		Eventually(done).Should(BeClosed())
	})
})

var _ = Describe("LocalQueue", func() {
	It("redelivers a message that is nacked with requeue", func() {
		queue := worker.NewLocalQueue(2)
		deliveries, err := queue.Consume("", "", false, false, false, false, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(queue.Publish(amqp091.Publishing{Type: "separate_job", Body: []byte("{}")})).To(Succeed())

		first := <-deliveries
		Expect(first.Nack(false, true)).To(Succeed())

		second := <-deliveries
		Expect(second.Type).To(Equal("separate_job"))
		Expect(second.Body).To(Equal([]byte("{}")))
		Expect(second.DeliveryTag).To(BeNumerically(">", first.DeliveryTag))
		Expect(second.Ack(false)).To(Succeed())
	})

	It("refuses messages once full", func() {
		queue := worker.NewLocalQueue(1)
		Expect(queue.Publish(amqp091.Publishing{})).To(Succeed())
		Expect(queue.Publish(amqp091.Publishing{})).NotTo(Succeed())
	})

	It("refuses messages once closed", func() {
		queue := worker.NewLocalQueue(1)
		Expect(queue.Close()).To(Succeed())
		Expect(queue.Close()).To(Succeed())
		Expect(queue.Publish(amqp091.Publishing{})).To(MatchError(amqp091.ErrClosed))

		_, err := queue.Consume("", "", false, false, false, false, nil)
		Expect(err).To(MatchError(amqp091.ErrClosed))
	})
})
