// Package datarecording persists diagnostics, such as block dumps and frame
// traces, into a SQLite database.
package datarecording

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// DataRecorder records rows of flat structs into tables.
type DataRecorder interface {
	// CreateTable creates a table whose columns are the fields of
	// sampleEntry.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers an entry for a table that already exists.
	InsertData(tableName string, entry any)

	// ListTables returns the names of the tables created so far.
	ListTables() []string

	// Flush writes every buffered entry to the database.
	Flush()

	// Close flushes and closes the database.
	Close() error
}

// DefaultBatchSize is the number of buffered entries that triggers a flush.
const DefaultBatchSize = 10000

// New creates a recorder that writes to path.sqlite3. An empty path picks a
// unique name. The recorder is flushed at exit.
func New(path string) DataRecorder {
	if path == "" {
		path = "isp_recording_" + xid.New().String()
	}

	w := newWriter(openNew(path + ".sqlite3"))

	atexit.Register(func() { w.Flush() })

	return w
}

// NewWithDB creates a recorder that writes to an open database.
func NewWithDB(db *sql.DB) DataRecorder {
	w := newWriter(db)

	atexit.Register(func() { w.Flush() })

	return w
}

// openNew creates the database file. Recordings are never appended to.
func openNew(filename string) *sql.DB {
	if _, err := os.Stat(filename); err == nil {
		log.Panicf("recording %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		panic(err)
	}

	fmt.Fprintf(os.Stderr, "Recording to %s\n", filename)

	return db
}

// table is a created table and the rows waiting for the next flush.
type table struct {
	rowType   reflect.Type
	insertSQL string
	pending   [][]any
}

// sqliteWriter buffers rows in memory and writes them in one transaction.
// Rows come from interrupt handlers of many blocks, so every method locks.
type sqliteWriter struct {
	lock sync.Mutex

	db        *sql.DB
	tables    map[string]*table
	batchSize int
	pending   int
	closed    bool
}

func newWriter(db *sql.DB) *sqliteWriter {
	return &sqliteWriter{
		db:        db,
		tables:    make(map[string]*table),
		batchSize: DefaultBatchSize,
	}
}

// columnType maps a field kind to its SQLite column affinity. Kinds without
// one cannot be recorded.
func columnType(kind reflect.Kind) (string, bool) {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64:
		return "INTEGER", true
	case reflect.Float32, reflect.Float64:
		return "REAL", true
	case reflect.String:
		return "TEXT", true
	default:
		return "", false
	}
}

// columns describes the columns of a flat struct.
func columns(entry any) ([]string, error) {
	if reflect.TypeOf(entry).Kind() != reflect.Struct {
		return nil, fmt.Errorf("%T is not a struct", entry)
	}

	var defs []string

	for _, f := range structs.Fields(entry) {
		if !f.IsExported() {
			return nil, fmt.Errorf("field %s is not exported", f.Name())
		}

		typ, ok := columnType(f.Kind())
		if !ok {
			return nil, fmt.Errorf("field %s of kind %s cannot be recorded",
				f.Name(), f.Kind())
		}

		defs = append(defs, f.Name()+" "+typ)
	}

	return defs, nil
}

func (w *sqliteWriter) CreateTable(tableName string, sampleEntry any) {
	defs, err := columns(sampleEntry)
	if err != nil {
		panic(err)
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	if _, exists := w.tables[tableName]; exists {
		log.Panicf("table %s already exists", tableName)
	}

	w.mustExecute("CREATE TABLE " + tableName +
		" (\n\t" + strings.Join(defs, ",\n\t") + "\n)")

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(defs)), ", ")

	w.tables[tableName] = &table{
		rowType: reflect.TypeOf(sampleEntry),
		insertSQL: "INSERT INTO " + tableName +
			" (" + strings.Join(structs.Names(sampleEntry), ", ") + ")" +
			" VALUES (" + marks + ")",
	}
}

func (w *sqliteWriter) InsertData(tableName string, entry any) {
	w.lock.Lock()
	defer w.lock.Unlock()

	t, exists := w.tables[tableName]
	if !exists {
		log.Panicf("table %s does not exist", tableName)
	}

	if reflect.TypeOf(entry) != t.rowType {
		log.Panicf("entry of type %T does not match table %s",
			entry, tableName)
	}

	t.pending = append(t.pending, structs.Values(entry))

	w.pending++
	if w.pending >= w.batchSize {
		w.flush()
	}
}

func (w *sqliteWriter) ListTables() []string {
	w.lock.Lock()
	defer w.lock.Unlock()

	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}

	return names
}

func (w *sqliteWriter) Flush() {
	w.lock.Lock()
	defer w.lock.Unlock()

	w.flush()
}

func (w *sqliteWriter) flush() {
	if w.pending == 0 || w.closed {
		return
	}

	tx, err := w.db.Begin()
	if err != nil {
		panic(err)
	}

	for name, t := range w.tables {
		if len(t.pending) == 0 {
			continue
		}

		if err := insertAll(tx, t); err != nil {
			tx.Rollback()
			log.Panicf("flush table %s: %v", name, err)
		}

		t.pending = t.pending[:0]
	}

	if err := tx.Commit(); err != nil {
		panic(err)
	}

	w.pending = 0
}

func insertAll(tx *sql.Tx, t *table) error {
	stmt, err := tx.Prepare(t.insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range t.pending {
		if _, err := stmt.Exec(row...); err != nil {
			return err
		}
	}

	return nil
}

func (w *sqliteWriter) Close() error {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.closed {
		return nil
	}

	w.flush()
	w.closed = true

	return w.db.Close()
}

func (w *sqliteWriter) mustExecute(query string) {
	if _, err := w.db.Exec(query); err != nil {
		log.Printf("Failed to execute: %s", query)
		panic(err)
	}
}
