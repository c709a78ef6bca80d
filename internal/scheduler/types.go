package scheduler

import "time"

// Task is a persistent, cron-triggered message injection. When its
// schedule next fires, the scheduler injects Message onto the bus as if
// it had arrived from UserID over Channel.
type Task struct {
	ID          string    `json:"id"`
	CronExpr    string    `json:"cronExpr"`
	Message     string    `json:"message"`
	Description string    `json:"description"`
	ChatID      string    `json:"chatId"`
	UserID      string    `json:"userId"`
	Channel     string    `json:"channel"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AddTaskSpec is the caller-supplied fields needed to create a Task; ID
// and CreatedAt are assigned by the scheduler.
type AddTaskSpec struct {
	CronExpr    string
	Message     string
	Description string
	ChatID      string
	UserID      string
	Channel     string
}

// Execution is one recorded fire of a Task: the INCOMING_MESSAGE injection
// it caused, and whether the bus delivered it (false when a middleware
// inhibited the signal). Executions are an in-memory fire history,
// not part of the task journal — they do not survive a restart.
type Execution struct {
	TaskID  string    `json:"taskId"`
	FiredAt time.Time `json:"firedAt"`
	ChatID  string    `json:"chatId"`
	Channel string    `json:"channel"`
	OK      bool      `json:"ok"`
}
