// Package testdb connects integration tests to a real Postgres database.
//
// Tests call Open, which skips the test when no database is configured,
// migrates the journal schema and closes the pool on cleanup. WithTx runs a
// test body in a transaction that is always rolled back, so tests sharing a
// database do not see each other's rows:
//
//	func TestJournal(t *testing.T) {
//	    db := testdb.Open(t)
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        journal := postgres.NewPostgresJournal(tx)
//	        // ...
//	    })
//	}
//
// The database is read from TASKRELAY_TEST_DATABASE_URL, falling back to
// DATABASE_URL.
package testdb
