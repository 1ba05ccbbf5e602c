// Package duckdb loads generated tables into a DuckDB database through the ADBC driver
// manager.
package duckdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-adbc/go/adbc/drivermgr"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/TFMV/rawlayer/integrations"
)

var (
	_ integrations.Database   = (*DuckDB)(nil)
	_ integrations.Connection = (*conn)(nil)
)

// entrypoint is the ADBC init symbol exported by libduckdb.
const entrypoint = "duckdb_adbc_init"

var errClosed = errors.New("duckdb: database is closed")

// Options configure how a database is opened.
type Options struct {
	// Path of the database file. Empty opens an in-memory database.
	Path string
	// DriverPath locates the DuckDB shared library. Empty uses DefaultDriverPath.
	DriverPath string
	// Context is used to open connections.
	Context context.Context
}

// Option sets one field of Options.
type Option func(*Options)

// WithPath sets the database file.
func WithPath(p string) Option {
	return func(o *Options) { o.Path = p }
}

// WithDriverPath sets the location of the DuckDB shared library.
func WithDriverPath(p string) Option {
	return func(o *Options) { o.DriverPath = p }
}

// WithContext sets the context connections are opened with.
func WithContext(ctx context.Context) Option {
	return func(o *Options) { o.Context = ctx }
}

// DefaultDriverPath returns $DUCKDB_DRIVER or the conventional install location of the
// DuckDB shared library.
func DefaultDriverPath() string {
	if p := os.Getenv("DUCKDB_DRIVER"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "darwin":
		return "/usr/local/lib/libduckdb.dylib"
	case "windows":
		return "duckdb.dll"
	default:
		return "/usr/local/lib/libduckdb.so"
	}
}

// DuckDB is an open database and the connections handed out from it.
type DuckDB struct {
	mu    sync.Mutex
	db    adbc.Database
	opts  Options
	conns map[*conn]struct{}
}

// NewDuckDB opens the database described by options. The driver library is loaded
// lazily, so a missing library surfaces on the first connection at the latest.
func NewDuckDB(options ...Option) (*DuckDB, error) {
	opts := Options{Context: context.Background()}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.DriverPath == "" {
		opts.DriverPath = DefaultDriverPath()
	}

	params := map[string]string{
		"driver":     opts.DriverPath,
		"entrypoint": entrypoint,
	}
	if opts.Path != "" {
		params["path"] = opts.Path
	}
	var drv drivermgr.Driver
	db, err := drv.NewDatabase(params)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %q: %w", opts.Path, err)
	}
	return &DuckDB{db: db, opts: opts, conns: map[*conn]struct{}{}}, nil
}

// OpenConnection opens a new connection. It stays tracked until closed.
func (d *DuckDB) OpenConnection() (integrations.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil, errClosed
	}
	cn, err := d.db.Open(d.opts.Context)
	if err != nil {
		return nil, fmt.Errorf("duckdb connection: %w", err)
	}
	c := &conn{owner: d, cn: cn}
	d.conns[c] = struct{}{}
	return c, nil
}

// Close closes every tracked connection and then the database. It is safe to call
// more than once.
func (d *DuckDB) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for c := range d.conns {
		c.cn.Close()
		c.owner = nil
	}
	clear(d.conns)
	if d.db != nil {
		d.db.Close()
		d.db = nil
	}
}

// ConnCount returns the number of open connections.
func (d *DuckDB) ConnCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Path returns the database file, empty for an in-memory database.
func (d *DuckDB) Path() string {
	return d.opts.Path
}

// conn is one ADBC connection of a DuckDB.
type conn struct {
	owner *DuckDB
	cn    adbc.Connection
}

// statement prepares a statement with the given options and an optional SQL text.
func (c *conn) statement(sql string, options map[string]string) (adbc.Statement, error) {
	stmt, err := c.cn.NewStatement()
	if err != nil {
		return nil, fmt.Errorf("new statement: %w", err)
	}
	for k, v := range options {
		if err := stmt.SetOption(k, v); err != nil {
			stmt.Close()
			return nil, fmt.Errorf("set %s: %w", k, err)
		}
	}
	if sql != "" {
		if err := stmt.SetSqlQuery(sql); err != nil {
			stmt.Close()
			return nil, fmt.Errorf("set query: %w", err)
		}
	}
	return stmt, nil
}

// Exec runs a statement that returns no rows.
func (c *conn) Exec(ctx context.Context, sql string) (int64, error) {
	stmt, err := c.statement(sql, nil)
	if err != nil {
		return -1, err
	}
	defer stmt.Close()
	return stmt.ExecuteUpdate(ctx)
}

// Query runs sql. Releasing the returned reader also closes its statement.
func (c *conn) Query(ctx context.Context, sql string) (array.RecordReader, error) {
	stmt, err := c.statement(sql, nil)
	if err != nil {
		return nil, err
	}
	rr, _, err := stmt.ExecuteQuery(ctx)
	if err != nil {
		stmt.Close()
		return nil, err
	}
	return &stmtReader{RecordReader: rr, stmt: stmt}, nil
}

// Ingest bulk loads rec into table.
func (c *conn) Ingest(ctx context.Context, table string, rec arrow.Record, mode integrations.IngestMode) (int64, error) {
	ingestMode := adbc.OptionValueIngestModeCreate
	if mode == integrations.IngestAppend {
		ingestMode = adbc.OptionValueIngestModeAppend
	}
	stmt, err := c.statement("", map[string]string{
		adbc.OptionKeyIngestTargetTable: table,
		adbc.OptionKeyIngestMode:        ingestMode,
	})
	if err != nil {
		return -1, fmt.Errorf("ingest %s: %w", table, err)
	}
	defer stmt.Close()
	if err := stmt.Bind(ctx, rec); err != nil {
		return -1, fmt.Errorf("ingest %s: bind: %w", table, err)
	}
	return stmt.ExecuteUpdate(ctx)
}

// GetTableSchema returns the Arrow schema of a table.
func (c *conn) GetTableSchema(ctx context.Context, catalog, schema *string, table string) (*arrow.Schema, error) {
	return c.cn.GetTableSchema(ctx, catalog, schema, table)
}

// Close closes the connection. Connections already closed by DuckDB.Close are skipped.
func (c *conn) Close() {
	d := c.owner
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.conns[c]; !ok {
		return
	}
	delete(d.conns, c)
	c.cn.Close()
	c.owner = nil
}

// stmtReader ties a statement's lifetime to the reader of its result.
type stmtReader struct {
	array.RecordReader
	stmt adbc.Statement
	once sync.Once
}

func (r *stmtReader) Release() {
	r.RecordReader.Release()
	r.once.Do(func() { r.stmt.Close() })
}
