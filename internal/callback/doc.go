// Package callback resolves and delivers work-unit events to callback handlers.
//
// A handler declares the events it wants with blank marker fields of type On,
// carrying struct tags that name the callback kind, the task types it applies
// to and the method to invoke:
//
//	type downloadHandler struct {
//		_ callback.On `kind:"success" tasks:"download" call:"Done(path, bytes)"`
//		_ callback.On `kind:"named" tasks:"download" name:"kick" call:"Kick(power)"`
//	}
//
// Each (task type, handler type) pair resolves to a Table, either from a
// generated table registered with RegisterGenerated or by introspecting the
// marker fields. A Router owns the handlers of one unit of work and fans every
// routed event out to them through their tables.
package callback
