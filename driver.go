package firebolt

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

func init() {
	sql.Register("firebolt", &fireboltDriver{})
}

// ErrArgsNotSupported is returned for statements executed with arguments.
// The driver sends SQL verbatim and never rewrites it.
var ErrArgsNotSupported = errors.New("firebolt: query arguments are not supported")

// --- Type Conversion ---

var (
	scanTypeInt64  = reflect.TypeOf(int64(0))
	scanTypeFloat  = reflect.TypeOf(float64(0))
	scanTypeBool   = reflect.TypeOf(false)
	scanTypeString = reflect.TypeOf("")
	scanTypeBytes  = reflect.TypeOf([]byte(nil))
	scanTypeTime   = reflect.TypeOf(time.Time{})
)

// scanTypeForFamily returns the reflect.Type Scan should use for a column.
func scanTypeForFamily(f TypeFamily) reflect.Type {
	switch f {
	case FamilyInt, FamilyLong:
		return scanTypeInt64
	case FamilyFloat, FamilyDouble:
		return scanTypeFloat
	case FamilyBoolean:
		return scanTypeBool
	case FamilyBytea:
		return scanTypeBytes
	case FamilyDate, FamilyTimestamp, FamilyTimestampTZ:
		return scanTypeTime
	default:
		// decimal, text, array, geography and unknown types → string
		return scanTypeString
	}
}

// driverValue converts cell i of r into a driver.Value using the typed
// decoders. Decimals stay strings to keep their precision and declared scale.
func driverValue(r *Row, i int) (driver.Value, error) {
	if r.values[i].IsNull() {
		return nil, nil
	}
	col := r.columns[i]

	switch col.Family() {
	case FamilyInt, FamilyLong:
		return GetIndex[int64](r, i)
	case FamilyFloat, FamilyDouble:
		// float4 literals are read at double precision so 0.1 stays 0.1.
		f, err := decodeFloat64(r.values[i])
		if err != nil {
			return nil, newError(KindSerialization, err, "cannot decode column %q of type %s", col.Name, col.Type)
		}
		return f, nil
	case FamilyDecimal:
		d, err := GetIndex[decimal.Decimal](r, i)
		if err != nil {
			return nil, err
		}
		if s, ok := col.Scale(); ok {
			return d.StringFixed(int32(s)), nil
		}
		return d.String(), nil
	case FamilyText:
		return GetIndex[string](r, i)
	case FamilyBoolean:
		return GetIndex[bool](r, i)
	case FamilyBytea:
		return GetIndex[[]byte](r, i)
	case FamilyDate, FamilyTimestamp, FamilyTimestampTZ:
		var s string
		if err := json.Unmarshal(r.values[i].raw, &s); err != nil {
			return nil, newError(KindSerialization, err, "column %q of type %s is not a string", col.Name, col.Type)
		}
		t, err := parseTemporal(col.Family(), s)
		if err != nil {
			return nil, newError(KindSerialization, err, "cannot decode column %q of type %s", col.Name, col.Type)
		}
		return t, nil
	default:
		// array, geography and unknown types → JSON text
		return r.values[i].String(), nil
	}
}

// parseTemporal parses the text form of date and timestamp values. The
// fractional second part is optional for every timestamp layout.
func parseTemporal(f TypeFamily, s string) (time.Time, error) {
	var layouts []string
	switch f {
	case FamilyDate:
		layouts = []string{"2006-01-02"}
	case FamilyTimestamp:
		layouts = []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05"}
	case FamilyTimestampTZ:
		layouts = []string{
			"2006-01-02 15:04:05-07",
			"2006-01-02 15:04:05-07:00",
			"2006-01-02 15:04:05Z07:00",
			time.RFC3339Nano,
		}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %s value %q", f, s)
}

// --- Driver Types ---

// fireboltDriver implements driver.Driver and driver.DriverContext.
type fireboltDriver struct{}

var _ driver.Driver = (*fireboltDriver)(nil)
var _ driver.DriverContext = (*fireboltDriver)(nil)

// Open implements driver.Driver. It parses the DSN and returns a new connection.
func (d *fireboltDriver) Open(dsn string) (driver.Conn, error) {
	connector, err := d.OpenConnector(dsn)
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.Background())
}

// OpenConnector implements driver.DriverContext.
func (d *fireboltDriver) OpenConnector(dsn string) (driver.Connector, error) {
	cfg, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	return NewConnector(cfg), nil
}

// --- Connector ---

// connector implements driver.Connector. Every connection gets a Client of
// its own, so the pool never shares session state between goroutines.
type connector struct {
	cfg Config
}

var _ driver.Connector = (*connector)(nil)

// NewConnector returns a driver.Connector for cfg. Use it with sql.OpenDB
// when the configuration cannot be expressed as a DSN, e.g. with a custom
// HTTP client.
func NewConnector(cfg Config) driver.Connector {
	return &connector{cfg: cfg}
}

// Connect implements driver.Connector.
func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	client, err := NewClient(ctx, c.cfg)
	if err != nil {
		return nil, err
	}
	return &conn{client: client}, nil
}

// Driver implements driver.Connector.
func (c *connector) Driver() driver.Driver {
	return &fireboltDriver{}
}

// --- Connection ---

// conn implements driver.Conn, driver.QueryerContext and driver.ExecerContext.
type conn struct {
	client *Client
	closed bool
}

var _ driver.Conn = (*conn)(nil)
var _ driver.QueryerContext = (*conn)(nil)
var _ driver.ExecerContext = (*conn)(nil)
var _ driver.Validator = (*conn)(nil)

// Client exposes the underlying client through sql.Conn.Raw:
//
//	err := sqlConn.Raw(func(dc any) error {
//		client := dc.(interface{ Client() *firebolt.Client }).Client()
//		...
//	})
func (c *conn) Client() *Client {
	return c.client
}

// Prepare implements driver.Conn.
func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return &stmt{conn: c, query: query}, nil
}

// Close implements driver.Conn.
func (c *conn) Close() error {
	c.closed = true
	return c.client.Close()
}

// IsValid implements driver.Validator. A connection that failed to
// authenticate is dropped from the pool.
func (c *conn) IsValid() bool {
	return !c.closed
}

// Begin implements driver.Conn.
func (c *conn) Begin() (driver.Tx, error) {
	return nil, errors.New("firebolt: transactions are not supported")
}

// QueryContext implements driver.QueryerContext.
func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	rs, err := c.run(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return &rows{rs: rs}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if _, err := c.run(ctx, query, args); err != nil {
		return nil, err
	}
	return driver.ResultNoRows, nil
}

func (c *conn) run(ctx context.Context, query string, args []driver.NamedValue) (*ResultSet, error) {
	if len(args) > 0 {
		return nil, ErrArgsNotSupported
	}
	rs, err := c.client.Query(ctx, query)
	switch {
	case err == nil:
		return rs, nil
	case errors.Is(err, ErrHeaderParsing) && rs != nil:
		log.Debug().Err(err).Msg("keeping result despite malformed session headers")
		return rs, nil
	case errors.Is(err, ErrAuthentication):
		c.closed = true
	}
	return nil, err
}

// --- Rows ---

// rows implements driver.Rows along with the optional column type interfaces.
type rows struct {
	rs     *ResultSet
	pos    int
	closed bool
}

var _ driver.Rows = (*rows)(nil)
var _ driver.RowsColumnTypeDatabaseTypeName = (*rows)(nil)
var _ driver.RowsColumnTypeScanType = (*rows)(nil)
var _ driver.RowsColumnTypeNullable = (*rows)(nil)

// Columns implements driver.Rows.
func (r *rows) Columns() []string {
	names := make([]string, len(r.rs.Columns))
	for i, col := range r.rs.Columns {
		names[i] = col.Name
	}
	return names
}

// Close implements driver.Rows.
func (r *rows) Close() error {
	r.closed = true
	return nil
}

// Next implements driver.Rows.
func (r *rows) Next(dest []driver.Value) error {
	if r.closed || r.pos >= len(r.rs.Rows) {
		return io.EOF
	}
	row := r.rs.Rows[r.pos]
	r.pos++

	for i := range dest {
		val, err := driverValue(row, i)
		if err != nil {
			return err
		}
		dest[i] = val
	}
	return nil
}

// ColumnTypeDatabaseTypeName implements driver.RowsColumnTypeDatabaseTypeName.
func (r *rows) ColumnTypeDatabaseTypeName(index int) string {
	if index < 0 || index >= len(r.rs.Columns) {
		return ""
	}
	return strings.ToUpper(normalizeType(r.rs.Columns[index].Type))
}

// ColumnTypeScanType implements driver.RowsColumnTypeScanType.
func (r *rows) ColumnTypeScanType(index int) reflect.Type {
	if index < 0 || index >= len(r.rs.Columns) {
		return scanTypeString
	}
	return scanTypeForFamily(r.rs.Columns[index].Family())
}

// ColumnTypeNullable implements driver.RowsColumnTypeNullable.
func (r *rows) ColumnTypeNullable(index int) (nullable, ok bool) {
	if index < 0 || index >= len(r.rs.Columns) {
		return false, false
	}
	return r.rs.Columns[index].Nullable(), true
}

// --- Statement ---

// stmt implements driver.Stmt, driver.StmtQueryContext and driver.StmtExecContext.
type stmt struct {
	conn  *conn
	query string
}

var _ driver.Stmt = (*stmt)(nil)
var _ driver.StmtQueryContext = (*stmt)(nil)
var _ driver.StmtExecContext = (*stmt)(nil)

// Close implements driver.Stmt.
func (s *stmt) Close() error {
	return nil
}

// NumInput implements driver.Stmt. Returns -1 to disable driver-side validation.
func (s *stmt) NumInput() int {
	return -1
}

// Exec implements driver.Stmt.
func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), namedValues(args))
}

// Query implements driver.Stmt.
func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), namedValues(args))
}

// ExecContext implements driver.StmtExecContext.
func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.conn.ExecContext(ctx, s.query, args)
}

// QueryContext implements driver.StmtQueryContext.
func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.conn.QueryContext(ctx, s.query, args)
}

// namedValues converts positional args to NamedValue slice.
func namedValues(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}
