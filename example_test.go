package firebolt_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/ethanyzhang/firebolt-go"
	"github.com/shopspring/decimal"
)

// =============================================================================
// Getting Started Examples
//
// These tests serve as executable documentation showing how to use
// firebolt-go. They are skipped by default because they require a Firebolt
// service account.
//
// To run against a real account, remove the t.Skip call and export
//   FIREBOLT_CLIENT_ID, FIREBOLT_CLIENT_SECRET and FIREBOLT_ACCOUNT.
// =============================================================================

func exampleBuilder() *firebolt.Builder {
	return firebolt.NewBuilder().
		Credentials(os.Getenv("FIREBOLT_CLIENT_ID"), os.Getenv("FIREBOLT_CLIENT_SECRET")).
		Account(os.Getenv("FIREBOLT_ACCOUNT"))
}

// --- database/sql Interface ---

func TestExample_DatabaseSQL_BasicQuery(t *testing.T) {
	t.Skip("requires a Firebolt service account")

	dsn := fmt.Sprintf("firebolt:///my_db?account_name=%s&client_id=%s&client_secret=%s&engine=my_engine",
		os.Getenv("FIREBOLT_ACCOUNT"), os.Getenv("FIREBOLT_CLIENT_ID"), os.Getenv("FIREBOLT_CLIENT_SECRET"))

	db, err := sql.Open("firebolt", dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	rows, err := db.QueryContext(context.Background(), "SELECT 1 AS id, 'hello' AS greeting")
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var greeting string
		if err := rows.Scan(&id, &greeting); err != nil {
			log.Fatal(err)
		}
		fmt.Println(id, greeting)
	}
}

func TestExample_DatabaseSQL_Connector(t *testing.T) {
	t.Skip("requires a Firebolt service account")

	// NewConnector accepts settings a DSN cannot carry, such as an HTTP client.
	cfg, err := exampleBuilder().
		Database("my_db").
		Engine("my_engine").
		HTTPClient(&http.Client{Timeout: 5 * time.Minute}).
		Config()
	if err != nil {
		log.Fatal(err)
	}

	db := sql.OpenDB(firebolt.NewConnector(cfg))
	defer db.Close()

	// ARRAY columns arrive as JSON text and scan into NullSlice.
	var ids firebolt.NullSlice[int64]
	if err := db.QueryRow("SELECT [1, 2, 3]").Scan(&ids); err != nil {
		log.Fatal(err)
	}
	fmt.Println(ids.Slice)
}

func TestExample_DatabaseSQL_RawClient(t *testing.T) {
	t.Skip("requires a Firebolt service account")

	db, err := sql.Open("firebolt", os.Getenv("FIREBOLT_DSN"))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	conn, err := db.Conn(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	// Reach the client behind a pooled connection to inspect its session.
	err = conn.Raw(func(dc any) error {
		client := dc.(interface{ Client() *firebolt.Client }).Client()
		fmt.Println(client.Endpoint(), client.Parameters())
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
}

// --- Low-Level API ---

func TestExample_LowLevel_BasicQuery(t *testing.T) {
	t.Skip("requires a Firebolt service account")

	ctx := context.Background()
	client, err := exampleBuilder().Database("my_db").Engine("my_engine").Build(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	rs, err := client.Query(ctx, "SELECT id, name, price FROM products")
	if err != nil {
		log.Fatal(err)
	}

	for _, row := range rs.Rows {
		id, err := firebolt.Get[int64](row, "id")
		if err != nil {
			log.Fatal(err)
		}
		name, err := firebolt.GetNullable[string](row, "name")
		if err != nil {
			log.Fatal(err)
		}
		price, err := firebolt.Get[decimal.Decimal](row, "price")
		if err != nil {
			log.Fatal(err)
		}
		if name == nil {
			fmt.Println(id, "<unnamed>", price)
			continue
		}
		fmt.Println(id, *name, price)
	}
}

func TestExample_LowLevel_StructuredValues(t *testing.T) {
	t.Skip("requires a Firebolt service account")

	ctx := context.Background()
	client, err := exampleBuilder().Build(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	rs, err := client.Query(ctx, "SELECT CURRENT_DATE AS today, [1, 2] AS pair")
	if err != nil {
		log.Fatal(err)
	}

	// Dates, timestamps, arrays and geography values are handed over as JSON.
	today, err := firebolt.Get[firebolt.Structured](rs.Rows[0], "today")
	if err != nil {
		log.Fatal(err)
	}
	var day string
	_ = today.Unmarshal(&day)

	pair, err := firebolt.Get[firebolt.Structured](rs.Rows[0], "pair")
	if err != nil {
		log.Fatal(err)
	}
	var ints []int
	_ = pair.Unmarshal(&ints)

	fmt.Println(day, ints)
}

func TestExample_LowLevel_SessionParameters(t *testing.T) {
	t.Skip("requires a Firebolt service account")

	ctx := context.Background()
	client, err := exampleBuilder().Database("my_db").Build(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	// SET statements come back as session headers; the client keeps the
	// resulting parameters and sends them with every later query.
	if _, err := client.Query(ctx, "SET time_zone = 'UTC'"); err != nil {
		log.Fatal(err)
	}
	fmt.Println(client.Parameters())

	// USE ENGINE moves the session to another endpoint.
	if _, err := client.Query(ctx, `USE ENGINE "reporting"`); err != nil {
		log.Fatal(err)
	}
	fmt.Println(client.Endpoint())
}

func TestExample_LowLevel_Cancellation(t *testing.T) {
	t.Skip("requires a Firebolt service account")

	client, err := exampleBuilder().Build(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err = client.Query(ctx, "SELECT checksum(*) FROM huge_table")
	if errors.Is(err, context.DeadlineExceeded) {
		fmt.Println("query timed out; the session is unchanged")
	}
}

func TestExample_LowLevel_ErrorKinds(t *testing.T) {
	t.Skip("requires a Firebolt service account")

	ctx := context.Background()
	client, err := exampleBuilder().Build(ctx)
	switch {
	case errors.Is(err, firebolt.ErrAuthentication):
		log.Fatal("check the service account credentials: ", err)
	case errors.Is(err, firebolt.ErrConfiguration):
		log.Fatal("check the account name and API endpoint: ", err)
	case err != nil:
		log.Fatal(err)
	}
	defer client.Close()

	_, err = client.Query(ctx, "SELEC 1")
	var serverErr *firebolt.ServerError
	if errors.As(err, &serverErr) {
		fmt.Printf("%s error, status %d: %s\n", firebolt.KindOf(err), serverErr.StatusCode, serverErr.Message)
	}
}

func TestExample_LowLevel_Render(t *testing.T) {
	t.Skip("requires a Firebolt service account")

	ctx := context.Background()
	client, err := exampleBuilder().Build(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	rs, err := client.Query(ctx, "SELECT table_name, table_type FROM information_schema.tables")
	if err != nil {
		log.Fatal(err)
	}
	if err := rs.Render(os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func TestExample_LowLevel_RequestOptions(t *testing.T) {
	t.Skip("requires a Firebolt service account")

	cfg, err := exampleBuilder().Config()
	if err != nil {
		log.Fatal(err)
	}

	// RequestOptions run on every request the client sends.
	client, err := firebolt.NewClient(context.Background(), cfg, func(req *http.Request) {
		req.Header.Set("X-Request-Source", "nightly-report")
	})
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()
}
