package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// TaskCallLogTask retries a CRM call Task that could not be written in-call.
const TaskCallLogTask = "calls.log_task"

// CallTaskLogPayload carries everything needed to write the Task without the
// session, which may have expired by the time the job runs.
type CallTaskLogPayload struct {
	SessionID       string    `json:"sessionId"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email,omitempty"`
	WhoID           string    `json:"whoId,omitempty"`
	CreateAttempted bool      `json:"createAttempted"`
	Subject         string    `json:"subject"`
	Body            string    `json:"body"`
	ActivityDate    time.Time `json:"activityDate"`
}

func NewCallTaskLogTask(payload CallTaskLogPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCallLogTask, data), nil
}

func ParseCallTaskLogPayload(task *asynq.Task) (CallTaskLogPayload, error) {
	var payload CallTaskLogPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CallTaskLogPayload{}, err
	}
	return payload, nil
}
