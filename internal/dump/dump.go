// Package dump implements the dump-to-SQL exporter referenced by spec §7
// and §9: walk the schema table, recover CREATE TABLE/INDEX statements, then
// walk each table's B-tree emitting INSERT statements. It deliberately
// skips the SAVEPOINT/PRAGMA writable_schema bracketing and the
// reshuffled-ORDER-BY retry-on-Corrupt the reference implementation does
// (spec §9 Open Questions name both as accepted simplifications) and leaves
// rowid-vs-INTEGER-PRIMARY-KEY reconciliation to a higher layer, emitting
// the rowid as a trailing comment instead.
package dump

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/xwb1989/sqlparser"

	"github.com/mpeterson-oss/sqlitefmt/internal/corrupt"
	"github.com/mpeterson-oss/sqlitefmt/internal/logx"
	"github.com/mpeterson-oss/sqlitefmt/internal/page"
	"github.com/mpeterson-oss/sqlitefmt/internal/record"
	"github.com/mpeterson-oss/sqlitefmt/internal/serialtype"
)

// SchemaEntry is one row of sqlite_schema (type, name, tbl_name, rootpage, sql).
type SchemaEntry struct {
	Type     string
	Name     string
	TblName  string
	RootPage uint32
	SQL      string
}

// Row is one decoded table-leaf row: its rowid and column values.
type Row struct {
	RowID  int64
	Values []serialtype.Value
}

// Exporter walks a database's pages to recover schema and row data. Read
// fetches a page's raw bytes by 1-based page number; callers own the
// buffer-pool/pager that backs it (spec §1 Out of scope).
type Exporter struct {
	Read     page.PageReader
	Encoding serialtype.TextEncoding
	Overflow page.Thresholds
}

// Schema walks the table B-tree rooted at page 1 (sqlite_schema) and
// returns every row that carries the five schema columns; a shorter row is
// logged via logx.CorruptMarker and skipped.
func (e *Exporter) Schema() ([]SchemaEntry, error) {
	rows, err := e.walkTable(1)
	if err != nil {
		return nil, errors.Wrap(err, "walking sqlite_schema")
	}
	entries := make([]SchemaEntry, 0, len(rows))
	for _, r := range rows {
		if len(r.Values) < 5 {
			logx.CorruptMarker("schema row", corrupt.New("expected 5 columns, got %d", len(r.Values)))
			continue
		}
		entries = append(entries, SchemaEntry{
			Type:     textOf(r.Values[0]),
			Name:     textOf(r.Values[1]),
			TblName:  textOf(r.Values[2]),
			RootPage: uint32(r.Values[3].Integer),
			SQL:      textOf(r.Values[4]),
		})
	}
	return entries, nil
}

func textOf(v serialtype.Value) string {
	if v.Kind != serialtype.KindText || v.Data == nil {
		return ""
	}
	return string(v.Data)
}

// Dump writes `CREATE ...` and `INSERT ...` statements for every table in
// the schema to w, in schema order, restricted by where (nil or empty means
// every row). Corrupt errors encountered while walking a table are logged
// via logx.CorruptMarker and printed as a `-- CORRUPT: ...` marker line in
// the output; the dump continues with the next table rather than aborting
// (spec §7, §9).
func (e *Exporter) Dump(w io.Writer, where map[string]string) error {
	entries, err := e.Schema()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Type != "table" {
			continue
		}
		if entry.SQL != "" {
			fmt.Fprintf(w, "%s;\n", strings.TrimSuffix(strings.TrimSpace(entry.SQL), ";"))
		}
		if err := e.dumpTableRows(w, entry, where); err != nil {
			if corrupt.Is(err) {
				logx.CorruptMarker("dump table "+entry.Name, err)
				fmt.Fprintf(w, "-- CORRUPT: %s: %v\n", entry.Name, err)
				continue
			}
			return errors.Wrapf(err, "dumping table %s", entry.Name)
		}
	}
	return nil
}

func (e *Exporter) dumpTableRows(w io.Writer, entry SchemaEntry, where map[string]string) error {
	columns := columnNames(entry.SQL)
	rows, err := e.walkTable(entry.RootPage)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if len(where) > 0 && !matchesConstraint(columns, r, where) {
			continue
		}
		var vals []string
		for _, v := range r.Values {
			vals = append(vals, sqlLiteral(v))
		}
		stmt := fmt.Sprintf("INSERT INTO %s VALUES(%s); -- rowid:%d", quoteIdent(entry.TblName), strings.Join(vals, ","), r.RowID)
		fmt.Fprintln(w, stmt)
	}
	return nil
}

// matchesConstraint reports whether row r satisfies every column=value
// equality in where, using columns to map column name to position. A
// constraint naming rowid (or a column absent from the recovered column
// list) matches against r.RowID instead, the way the teacher's query
// evaluator falls back to the rowid for unresolved "id"-like columns.
func matchesConstraint(columns []string, r Row, where map[string]string) bool {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[strings.ToLower(c)] = i
	}
	for col, want := range where {
		col = strings.ToLower(col)
		idx, ok := index[col]
		if !ok {
			if fmt.Sprintf("%d", r.RowID) != want {
				return false
			}
			continue
		}
		if idx >= len(r.Values) || strings.ToLower(plainValue(r.Values[idx])) != want {
			return false
		}
	}
	return true
}

func plainValue(v serialtype.Value) string {
	switch v.Kind {
	case serialtype.KindInteger:
		return fmt.Sprintf("%d", v.Integer)
	case serialtype.KindFloat:
		return fmt.Sprintf("%v", v.Float)
	case serialtype.KindText:
		return string(v.Data)
	case serialtype.KindBlob:
		return string(v.Data)
	}
	return ""
}

// ParseWhere extracts a column=value equality map from a standalone WHERE
// clause body (e.g. "id=5 and name=bolt"), the way the teacher's
// sqlWhereToConstraint walks a parsed *sqlparser.Where. sqlparser only
// parses full statements, so expr is wrapped into a throwaway SELECT first.
func ParseWhere(expr string) (map[string]string, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	stmt, err := sqlparser.Parse("select * from t where " + expr)
	if err != nil {
		return nil, errors.Wrap(err, "parsing --where")
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok || sel.Where == nil {
		return nil, nil
	}
	buf := sqlparser.NewTrackedBuffer(nil)
	sel.Where.Expr.Format(buf)
	r := map[string]string{}
	for _, clause := range strings.Split(strings.ToLower(buf.String()), " and ") {
		kv := strings.SplitN(clause, "=", 2)
		if len(kv) != 2 {
			continue
		}
		r[strings.TrimSpace(kv[0])] = strings.Trim(strings.TrimSpace(kv[1]), "'\"")
	}
	return r, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqlLiteral(v serialtype.Value) string {
	switch v.Kind {
	case serialtype.KindNull:
		return "NULL"
	case serialtype.KindInteger:
		return fmt.Sprintf("%d", v.Integer)
	case serialtype.KindFloat:
		return fmt.Sprintf("%v", v.Float)
	case serialtype.KindText:
		return "'" + strings.ReplaceAll(string(v.Data), "'", "''") + "'"
	case serialtype.KindBlob:
		return "X'" + fmt.Sprintf("%X", v.Data) + "'"
	}
	return "NULL"
}

// columnNames recovers the column list from a CREATE TABLE statement using
// sqlparser (the teacher's own dependency), tolerating parse failures (a
// dump target may have been edited into an unparseable dialect extension)
// by falling back to an empty list.
func columnNames(createSQL string) []string {
	if createSQL == "" {
		return nil
	}
	stmt, err := sqlparser.Parse(createSQL)
	if err != nil {
		return nil
	}
	ddl, ok := stmt.(*sqlparser.DDL)
	if !ok || ddl.TableSpec == nil {
		return nil
	}
	names := make([]string, 0, len(ddl.TableSpec.Columns))
	for _, c := range ddl.TableSpec.Columns {
		names = append(names, c.Name.String())
	}
	return names
}

// walkTable recursively descends a table B-tree rooted at rootPage,
// collecting every leaf row in key order.
func (e *Exporter) walkTable(rootPage uint32) ([]Row, error) {
	buf, err := e.Read(rootPage)
	if err != nil {
		return nil, err
	}
	base := 0
	if rootPage == 1 {
		base = page.DatabaseHeaderSize
	}
	p, err := page.DecodePage(buf, base)
	if err != nil {
		return nil, err
	}
	if !p.Header.PageType.IsTable() {
		return nil, corrupt.New("page %d is not a table b-tree page", rootPage)
	}

	var rows []Row
	if p.Header.PageType == page.TypeTableLeaf {
		for i := 0; i < int(p.Header.CellCount); i++ {
			off, err := p.CellOffset(i)
			if err != nil {
				return nil, err
			}
			cell, _, err := page.DecodeTableLeafCell(p.Buf, off, e.Overflow)
			if err != nil {
				return nil, err
			}
			payload := cell.InlinePayload
			if cell.OverflowPage != 0 {
				rest, err := page.ReadOverflowChain(e.Read, cell.OverflowPage, int(cell.PayloadSize)-len(cell.InlinePayload))
				if err != nil {
					return nil, err
				}
				payload = append(append([]byte{}, cell.InlinePayload...), rest...)
			}
			rec := record.New()
			rec.Reset(payload)
			if err := rec.Decode(e.Encoding); err != nil {
				return nil, err
			}
			vals := make([]serialtype.Value, rec.Len())
			for j := range vals {
				vals[j] = rec.Value(j)
			}
			rows = append(rows, Row{RowID: cell.RowID, Values: vals})
		}
		return rows, nil
	}

	for i := 0; i < int(p.Header.CellCount); i++ {
		off, err := p.CellOffset(i)
		if err != nil {
			return nil, err
		}
		cell, _, err := page.DecodeTableInteriorCell(p.Buf, off)
		if err != nil {
			return nil, err
		}
		sub, err := e.walkTable(cell.LeftChild)
		if err != nil {
			return nil, err
		}
		rows = append(rows, sub...)
	}
	if p.Header.RightmostChild != 0 {
		sub, err := e.walkTable(p.Header.RightmostChild)
		if err != nil {
			return nil, err
		}
		rows = append(rows, sub...)
	}
	return rows, nil
}
