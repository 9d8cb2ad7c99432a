// Package api exposes the dispatcher over HTTP. Clients submit units of
// work, inspect the live registry, read the callback events a unit produced
// and cancel work by id, by group or wholesale.
package api
