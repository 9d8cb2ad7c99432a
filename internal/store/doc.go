// Package store holds the persistence primitives shared by storage backends:
// the DBTX abstraction, common errors and transaction handling.
package store
