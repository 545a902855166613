// tasks.go - Task completion crediting. One completion per user per task
// per day, keyed on (user, task, date).
package earning

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/points-engine/ledger"
)

// Task is a completable activity with a fixed reward.
type Task struct {
	ID     string
	Name   string
	Points ledger.Points
}

// DefaultTasks is the built-in catalog; deployments replace it via
// NewTaskService.
var DefaultTasks = []Task{
	{ID: "profile-complete", Name: "Complete your profile", Points: 50},
	{ID: "first-share", Name: "Share the app", Points: 75},
	{ID: "survey", Name: "Complete the daily survey", Points: 120},
}

type TaskService struct {
	Ledger *ledger.Service
	tasks  map[string]Task
}

func NewTaskService(svc *ledger.Service, tasks []Task) *TaskService {
	if tasks == nil {
		tasks = DefaultTasks
	}
	m := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t
	}
	return &TaskService{Ledger: svc, tasks: m}
}

type TaskResult struct {
	Task   Task
	Change ledger.Change
}

// Complete credits the task reward. A repeat completion of the same task
// on the same day fails with ledger.ErrDuplicateSubmission.
func (s *TaskService) Complete(ctx context.Context, user ledger.UserID, taskID string, today time.Time) (TaskResult, error) {
	task, ok := s.tasks[taskID]
	if !ok {
		return TaskResult{}, fmt.Errorf("%w: %q", ErrTaskNotFound, taskID)
	}

	day := truncateDay(today)
	key := fmt.Sprintf("task_completion:%s:%s:%s", user, task.ID, day.Format("2006-01-02"))

	change, err := s.Ledger.Credit(ctx, user, task.Points, ledger.CauseTaskCompletion, task.Name, key)
	if err != nil {
		return TaskResult{}, err
	}
	return TaskResult{Task: task, Change: change}, nil
}

// Tasks returns the catalog.
func (s *TaskService) Tasks() []Task {
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}
