// Package events decouples request producers from the task runner.
//
// Producers such as the HTTP API describe the work they want as a
// WorkRequestEvent and publish it through an EventEmitter. Handlers
// registered on the emitter turn the event into a submission. The
// producer never imports the runner.
//
// The primary components are:
//   - WorkRequestEvent: a request to queue or execute a unit of work
//   - EventHandler: interface for components that handle events
//   - EventEmitter: interface for components that emit events
package events
