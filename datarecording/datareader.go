package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

// QueryParams narrows and orders a query. Where and OrderBy are raw SQL
// fragments without their keywords, for example "Block = ? AND Fcount > ?"
// and "Time DESC".
type QueryParams struct {
	Where   string
	Args    []any
	OrderBy string

	// Limit caps the rows returned. Zero means all rows. Offset only applies
	// together with a limit.
	Limit  int
	Offset int
}

// tail renders the clauses that follow the table name. Counting ignores
// ordering and paging.
func (p QueryParams) tail(forCount bool) string {
	var b strings.Builder

	if p.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(p.Where)
	}

	if forCount {
		return b.String()
	}

	if p.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(p.OrderBy)
	}

	if p.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", p.Limit)

		if p.Offset > 0 {
			fmt.Fprintf(&b, " OFFSET %d", p.Offset)
		}
	}

	return b.String()
}

// DataReader reads back what a DataRecorder wrote.
type DataReader interface {
	// MapTable binds a table to the struct type its rows decode into. A
	// table must be mapped before it is queried.
	MapTable(tableName string, sampleEntry any)

	// ListTables returns the tables present in the database.
	ListTables(ctx context.Context) ([]string, error)

	// Query returns pointers to structs of the mapped type and the number of
	// rows matching Where, regardless of paging.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any,
		totalCount int,
		err error,
	)

	Close() error
}

// QueryAs runs a query and returns typed rows. It maps the table to T
// first.
func QueryAs[T any](
	ctx context.Context,
	reader DataReader,
	tableName string,
	params QueryParams,
) ([]*T, int, error) {
	var sample T

	reader.MapTable(tableName, sample)

	rows, total, err := reader.Query(ctx, tableName, params)
	if err != nil {
		return nil, 0, err
	}

	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.(*T))
	}

	return out, total, nil
}

type sqliteReader struct {
	db *sql.DB

	tables map[string]reflect.Type
}

// NewReader opens a recording database read-only.
func NewReader(dbFilename string) (DataReader, error) {
	db, err := sql.Open("sqlite3", "file:"+dbFilename+"?mode=ro")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open recording %s: %w", dbFilename, err)
	}

	return NewReaderWithDB(db), nil
}

// NewReaderWithDB creates a reader over an open database.
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{
		db:     db,
		tables: make(map[string]reflect.Type),
	}
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	r.tables[tableName] = reflect.TypeOf(sampleEntry)
}

func (r *sqliteReader) ListTables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		names = append(names, name)
	}

	return names, rows.Err()
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, int, error) {
	rowType, ok := r.tables[tableName]
	if !ok {
		return nil, 0, fmt.Errorf("table %s is not mapped", tableName)
	}

	var total int

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+tableName+params.tail(true),
		params.Args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT * FROM "+tableName+params.tail(false),
		params.Args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results, err := decodeRows(rows, rowType)
	if err != nil {
		return nil, 0, err
	}

	return results, total, nil
}

// decodeRows fills one new struct per row. Columns bind to fields of the
// same name. Columns without a field are read and dropped.
func decodeRows(rows *sql.Rows, rowType reflect.Type) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	fieldOf := make([]int, len(columns))
	for i, col := range columns {
		fieldOf[i] = -1

		if f, ok := rowType.FieldByName(col); ok && len(f.Index) == 1 {
			fieldOf[i] = f.Index[0]
		}
	}

	var (
		results []any
		discard any
	)

	targets := make([]any, len(columns))

	for rows.Next() {
		ptr := reflect.New(rowType)
		elem := ptr.Elem()

		for i, idx := range fieldOf {
			if idx < 0 {
				targets[i] = &discard
				continue
			}

			targets[i] = elem.Field(idx).Addr().Interface()
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}

		results = append(results, ptr.Interface())
	}

	return results, rows.Err()
}

func (r *sqliteReader) Close() error {
	return r.db.Close()
}
