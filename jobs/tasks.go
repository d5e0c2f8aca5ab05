package jobs

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskLowStockScan refreshes the low-stock gauge and logs affected products.
	TaskLowStockScan = "stock:low_scan"
	// TaskOverdueScan reports pending incoming orders past their expected date.
	TaskOverdueScan = "incoming:overdue_scan"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskDashboardWarmup rebuilds the cached dashboard summary.
	TaskDashboardWarmup = "dashboard:warmup"
)

// LowStockScanPayload configures a low-stock scan.
type LowStockScanPayload struct {
	RequestedAt time.Time `json:"requested_at"`
}

// OverdueScanPayload configures an overdue scan. A zero AsOf means now.
type OverdueScanPayload struct {
	AsOf time.Time `json:"as_of"`
}

// IdempotencyCleanupPayload configures key retention. Zero uses the worker default.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// DashboardWarmupPayload carries scheduling metadata.
type DashboardWarmupPayload struct {
	RequestedAt time.Time `json:"requested_at"`
}

func newTask(name string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(name, body, asynq.Queue(QueueDefault)), nil
}

// NewLowStockScanTask constructs the low-stock scan task.
func NewLowStockScanTask() (*asynq.Task, error) {
	return newTask(TaskLowStockScan, LowStockScanPayload{})
}

// NewOverdueScanTask constructs the overdue orders scan task.
func NewOverdueScanTask(asOf time.Time) (*asynq.Task, error) {
	return newTask(TaskOverdueScan, OverdueScanPayload{AsOf: asOf})
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
}

// NewDashboardWarmupTask constructs the dashboard warmup task.
func NewDashboardWarmupTask() (*asynq.Task, error) {
	return newTask(TaskDashboardWarmup, DashboardWarmupPayload{})
}

var defaultTasks = map[string]func() (*asynq.Task, error){
	TaskLowStockScan:       NewLowStockScanTask,
	TaskOverdueScan:        func() (*asynq.Task, error) { return NewOverdueScanTask(time.Time{}) },
	TaskIdempotencyCleanup: func() (*asynq.Task, error) { return NewIdempotencyCleanupTask(0) },
	TaskDashboardWarmup:    NewDashboardWarmupTask,
}

// NewTaskByName builds a task with its default payload.
func NewTaskByName(name string) (*asynq.Task, error) {
	build, ok := defaultTasks[name]
	if !ok {
		return nil, fmt.Errorf("jobs: unsupported job %s", name)
	}
	return build()
}

// TaskNames lists the jobs that can be triggered manually.
func TaskNames() []string {
	names := make([]string, 0, len(defaultTasks))
	for name := range defaultTasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schedule returns the cron registrations of the worker.
func Schedule() ([]CronRegistration, error) {
	specs := []struct {
		spec string
		name string
	}{
		{"0 * * * *", TaskLowStockScan},
		{"0 7 * * *", TaskOverdueScan},
		{"30 3 * * *", TaskIdempotencyCleanup},
		{"*/15 * * * *", TaskDashboardWarmup},
	}
	out := make([]CronRegistration, 0, len(specs))
	for _, s := range specs {
		task, err := NewTaskByName(s.name)
		if err != nil {
			return nil, err
		}
		out = append(out, CronRegistration{Spec: s.spec, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}
	return out, nil
}
