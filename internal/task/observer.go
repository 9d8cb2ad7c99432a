package task

import "time"

// Observer receives runner instrumentation. The metrics package provides the
// Prometheus implementation.
type Observer interface {
	WorkSubmitted(verb, taskType string)
	WorkStarted(taskType string)
	WorkFinished(taskType, kind string, elapsed time.Duration)
	WorkCancelled(op string, result CancelResult, n int)
	RegistrySize(n int)
	CallbackFailed(kind string)
}

type nopObserver struct{}

func (nopObserver) WorkSubmitted(string, string)               {}
func (nopObserver) WorkStarted(string)                         {}
func (nopObserver) WorkFinished(string, string, time.Duration) {}
func (nopObserver) WorkCancelled(string, CancelResult, int)    {}
func (nopObserver) RegistrySize(int)                           {}
func (nopObserver) CallbackFailed(string)                      {}
