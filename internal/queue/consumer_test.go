package queue_test

import (
	"basegraph.app/harmony/internal/queue"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
)

var _ = Describe("ParseMessage", func() {
	It("parses a run job as Redis returns it", func() {
		msg, err := queue.ParseMessage(redis.XMessage{
			ID: "1700000000000-0",
			Values: map[string]any{
				"task_type": "plan",
				"run_id":    "123456789",
				"goal":      "build a rate limiter",
				"attempt":   "2",
				"trace_id":  "4bf92f3577b34da6a3ce929d0e0e4736",
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.ID).To(Equal("1700000000000-0"))
		Expect(msg.TaskType).To(Equal(queue.TaskTypePlan))
		Expect(msg.RunID).To(Equal(int64(123456789)))
		Expect(msg.Goal).To(Equal("build a rate limiter"))
		Expect(msg.Attempt).To(Equal(2))
		Expect(msg.TraceID).To(Equal("4bf92f3577b34da6a3ce929d0e0e4736"))
	})

	It("defaults the task type and attempt", func() {
		msg, err := queue.ParseMessage(redis.XMessage{Values: map[string]any{
			"run_id": "7",
			"goal":   "g",
		}})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.TaskType).To(Equal(queue.TaskTypeRun))
		Expect(msg.Attempt).To(Equal(1))
	})

	DescribeTable("rejects malformed jobs",
		func(values map[string]any, want string) {
			_, err := queue.ParseMessage(redis.XMessage{Values: values})
			Expect(err).To(MatchError(ContainSubstring(want)))
		},
		Entry("missing run id", map[string]any{"goal": "g"}, "missing run_id"),
		Entry("bad run id", map[string]any{"run_id": "abc", "goal": "g"}, "parsing run_id"),
		Entry("missing goal", map[string]any{"run_id": "1"}, "missing goal"),
		Entry("empty goal", map[string]any{"run_id": "1", "goal": ""}, "empty goal"),
		Entry("bad attempt", map[string]any{"run_id": "1", "goal": "g", "attempt": "x"}, "parsing attempt"),
		Entry("unknown task", map[string]any{"run_id": "1", "goal": "g", "task_type": "sync"}, "unknown task_type"),
	)
})
