package taskstorage_test

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors/markers"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/jasonlryan/demucs/src/shared/task/entity"
	"github.com/jasonlryan/demucs/src/shared/task/storage"
	. "github.com/jasonlryan/demucs/src/shared/testing"
)

func describeStore(name string, makeStore func() taskentity.Store) {
	Describe(name, func() {
		var (
			ctx   context.Context
			store taskentity.Store
			task  taskentity.Task
		)

		BeforeEach(func() {
			ctx = context.Background()
			store = makeStore()
			task = ExpectSuccess(taskentity.Create(ctx, store,
				taskentity.NewTask(taskentity.SeparateKind, "track01", time.Now().UTC())))
		})

		It("reads back a created task", func() {
			stored := ExpectSuccess(store.Get(ctx, task.ID))
			Expect(stored.ID).To(Equal(task.ID))
			Expect(stored.JobID).To(Equal("track01"))
			Expect(stored.Status).To(Equal(taskentity.RequestedStatus))
			Expect(stored.Revision).To(Equal(int64(1)))
		})

		It("reports unknown tasks", func() {
			_, err := store.Get(ctx, "no-such-task")
			Expect(markers.Is(err, taskentity.TaskNotFound)).To(BeTrue())
		})

		It("refuses to create the same task twice", func() {
			_, err := taskentity.Create(ctx, store, task)
			Expect(markers.Is(err, taskentity.RevisionConflict)).To(BeTrue())
		})

		It("bumps the revision on every update", func() {
			updated := ExpectSuccess(taskentity.Update(ctx, store, task.ID, func(t *taskentity.Task) error {
				t.Status = taskentity.ProcessingStatus
				t.Progress = 50
				return nil
			}))

			Expect(updated.Revision).To(Equal(int64(2)))
			stored := ExpectSuccess(store.Get(ctx, task.ID))
			Expect(stored.Status).To(Equal(taskentity.ProcessingStatus))
			Expect(stored.Progress).To(Equal(50))
		})

		It("rejects a stale write", func() {
			ExpectSuccess(taskentity.Update(ctx, store, task.ID, func(*taskentity.Task) error { return nil }))

			err := store.Put(ctx, task, task.Revision)
			Expect(markers.Is(err, taskentity.RevisionConflict)).To(BeTrue())
		})

		It("keeps every concurrent update", func() {
			wg := sync.WaitGroup{}
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()

					_, err := taskentity.Update(ctx, store, task.ID, func(t *taskentity.Task) error {
						t.Progress++
						return nil
					})
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			Expect(ExpectSuccess(store.Get(ctx, task.ID)).Progress).To(Equal(5))
		})

		Describe("cancellation", func() {
			It("cancels a queued task immediately", func() {
				cancelled := ExpectSuccess(taskentity.RequestCancel(ctx, store, task.ID))
				Expect(cancelled.Status).To(Equal(taskentity.CancelledStatus))
			})

			It("asks a running task to stop", func() {
				ExpectSuccess(taskentity.Update(ctx, store, task.ID, func(t *taskentity.Task) error {
					t.Status = taskentity.ProcessingStatus
					return nil
				}))

				cancelled := ExpectSuccess(taskentity.RequestCancel(ctx, store, task.ID))
				Expect(cancelled.Status).To(Equal(taskentity.CancelRequestedStatus))
			})

			It("leaves finished tasks alone", func() {
				ExpectSuccess(taskentity.Update(ctx, store, task.ID, func(t *taskentity.Task) error {
					t.Status = taskentity.SucceededStatus
					return nil
				}))

				_, err := taskentity.RequestCancel(ctx, store, task.ID)
				Expect(markers.Is(err, taskentity.TaskFinished)).To(BeTrue())
			})
		})
	})
}

var _ = Describe("Task stores", func() {
	describeStore("Memory", func() taskentity.Store {
		return taskstorage.NewMemory()
	})

	describeStore("Redis", func() taskentity.Store {
		url := os.Getenv("REDIS_URL")
		if url == "" {
			Skip("set REDIS_URL to run against redis")
		}

		client := ExpectSuccess(taskstorage.ConnectRedis(context.Background(), url))
		DeferCleanup(client.Close)
		return taskstorage.NewRedis(client, "stem:test:"+time.Now().Format("150405.000000")+":")
	})

	describeStore("DynamoDB", func() taskentity.Store {
		SkipWithoutDynamo()

		db := MakeTestDB()
		ResetDB(db)
		return taskstorage.NewDB(db, taskstorage.DefaultTasksTable)
	})
})
