// Package firebolt provides a Go client library for the Firebolt analytical
// database.
//
// A Client authenticates with a service account through the OAuth2 client
// credentials flow, looks up the engine endpoint of its account and runs SQL
// statements against it. The server steers the session through response
// headers (engine endpoint changes, parameter updates, resets); the client
// applies them after every query so later statements run in the right
// context.
//
// # Getting Started
//
// Build a client and execute a query:
//
//	client, err := firebolt.NewBuilder().
//	    Credentials(clientID, clientSecret).
//	    Account("my_account").
//	    Database("my_db").
//	    Engine("my_engine").
//	    Build(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	rs, err := client.Query(ctx, "SELECT id, name FROM users")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Reading Values
//
// Cells stay undecoded until read. The generic accessors convert a cell to the
// requested Go type according to its column type:
//
//	for _, row := range rs.Rows {
//	    id, err := firebolt.Get[int64](row, "id")
//	    name, err := firebolt.GetNullable[string](row, "name") // nil for NULL
//	}
//
// # Errors
//
// Every error carries an ErrorKind and matches the sentinel of that kind:
//
//	if errors.Is(err, firebolt.ErrAuthentication) { ... }
//
// # Concurrency
//
// A Client is not safe for concurrent use. Create one client per goroutine,
// or use the database/sql driver, which gives every pooled connection its own
// client:
//
//	db, err := sql.Open("firebolt", "firebolt:///my_db?account_name=...&client_id=...&client_secret=...&engine=my_engine")
package firebolt
