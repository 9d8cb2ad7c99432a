package main

import (
	"log/slog"

	"github.com/phrazzld/taskrelay/internal/callback"
	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/phrazzld/taskrelay/internal/redact"
)

// workLog writes one structured record per callback of a builtin unit.
type workLog struct {
	_ callback.On `kind:"start" tasks:"echo,sleep" call:"Started(work_id, group_id)"`
	_ callback.On `kind:"progress" tasks:"sleep" call:"Progressed(work_id, progress)"`
	_ callback.On `kind:"named" tasks:"echo" name:"echo" call:"Echoed(work_id, msg)"`
	_ callback.On `kind:"success" tasks:"echo,sleep" call:"Succeeded(work_id)"`
	_ callback.On `kind:"failure" tasks:"echo,sleep" call:"Failed(work_id, crash_message)"`
	_ callback.On `kind:"cancel" tasks:"echo,sleep" call:"Cancelled(work_id, cancel_reason, not_executed, redeliverable)"`

	logger *slog.Logger
}

func (l *workLog) Started(workID string, groupID int64) {
	l.logger.Info("work started", "work_id", workID, "group_id", groupID)
}

func (l *workLog) Progressed(workID string, percent int) {
	l.logger.Debug("work progressed", "work_id", workID, "progress", percent)
}

func (l *workLog) Echoed(workID string, msg any) {
	l.logger.Info("work echoed", "work_id", workID, "echo", msg)
}

func (l *workLog) Succeeded(workID string) {
	l.logger.Info("work succeeded", "work_id", workID)
}

func (l *workLog) Failed(workID, crash string) {
	l.logger.Warn("work failed", "work_id", workID, "error", redact.String(crash))
}

func (l *workLog) Cancelled(workID string, reason int, notExecuted, redeliverable bool) {
	l.logger.Info("work cancelled",
		"work_id", workID,
		"cancel_reason", reason,
		"not_executed", notExecuted,
		"redeliverable", redeliverable)
}

// handlers is the handler factory of the request pipeline: the API event
// log plus a workLog per unit.
func (app *application) handlers(event *events.WorkRequestEvent) []any {
	return append(app.eventLog.Handlers(event), &workLog{logger: app.logger})
}
