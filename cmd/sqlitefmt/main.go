// Command sqlitefmt inspects and dumps SQLite-compatible database files
// directly off disk, without going through the reference engine. It mirrors
// the shell-style `.dbinfo`/`.tables` commands of the exploration tool this
// module grew out of, rebuilt as a proper kong CLI with a dump subcommand.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/mpeterson-oss/sqlitefmt/internal/dump"
	"github.com/mpeterson-oss/sqlitefmt/internal/logx"
	"github.com/mpeterson-oss/sqlitefmt/internal/page"
	"github.com/mpeterson-oss/sqlitefmt/internal/wal"
)

var cli struct {
	DBInfo  dbInfoCmd  `cmd:"" help:"Print the database header summary."`
	Tables  tablesCmd  `cmd:"" help:"List the tables recorded in sqlite_schema."`
	Dump    dumpCmd    `cmd:"" help:"Dump schema and row data as SQL statements."`
	WALInfo walInfoCmd `cmd:"" name:"wal-info" help:"Print a WAL file's header."`
}

type dbInfoCmd struct {
	File string `arg:"" type:"existingfile" help:"Path to the database file."`
}

func (c *dbInfoCmd) Run() error {
	f, hdr, err := openDatabase(c.File)
	if err != nil {
		return err
	}
	defer f.Close()
	fmt.Printf("database page size: %d\n", hdr.PageSize)
	fmt.Printf("write format:       %d\n", hdr.WriteVersion)
	fmt.Printf("read format:        %d\n", hdr.ReadVersion)
	fmt.Printf("reserved bytes:     %d\n", hdr.ReservedSpace)
	fmt.Printf("text encoding:      %d\n", hdr.TextEncoding)
	fmt.Printf("schema cookie:      %d\n", hdr.SchemaCookie)
	fmt.Printf("database pages:     %d\n", hdr.DatabaseSizeInPages)
	return nil
}

type tablesCmd struct {
	File string `arg:"" type:"existingfile" help:"Path to the database file."`
}

func (c *tablesCmd) Run() error {
	f, hdr, err := openDatabase(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	exp := exporterFor(f, hdr)
	entries, err := exp.Schema()
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if e.Type == "table" {
			names = append(names, e.Name)
		}
	}
	fmt.Println(strings.Join(names, " "))
	return nil
}

type dumpCmd struct {
	File  string `arg:"" type:"existingfile" help:"Path to the database file."`
	Where string `help:"Restrict dumped rows to a WHERE-clause-style column=value predicate."`
}

func (c *dumpCmd) Run() error {
	f, hdr, err := openDatabase(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	where, err := dump.ParseWhere(c.Where)
	if err != nil {
		return err
	}

	exp := exporterFor(f, hdr)
	return exp.Dump(os.Stdout, where)
}

type walInfoCmd struct {
	File string `arg:"" type:"existingfile" help:"Path to the -wal file."`
}

func (c *walInfoCmd) Run() error {
	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, wal.HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return err
	}
	h, err := wal.DecodeHeader(buf)
	if err != nil {
		return err
	}
	fmt.Printf("magic:           %#x\n", h.Magic)
	fmt.Printf("file format:     %d\n", h.FileFormat)
	fmt.Printf("page size:       %d\n", h.PageSize)
	fmt.Printf("checkpoint seq:  %d\n", h.CheckpointSeq)
	fmt.Printf("native endian:   %v\n", h.NativeEndian())
	return nil
}

func openDatabase(path string) (*os.File, *page.DatabaseHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	buf := make([]byte, page.DatabaseHeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		f.Close()
		return nil, nil, err
	}
	hdr, err := page.DecodeDatabaseHeader(buf)
	if err != nil {
		f.Close()
		logx.CorruptMarker("database header", err)
		return nil, nil, err
	}
	return f, hdr, nil
}

func exporterFor(f *os.File, hdr *page.DatabaseHeader) *dump.Exporter {
	pageSize := int64(hdr.PageSize)
	return &dump.Exporter{
		Read: func(n uint32) ([]byte, error) {
			buf := make([]byte, pageSize)
			if _, err := f.ReadAt(buf, int64(n-1)*pageSize); err != nil {
				return nil, err
			}
			return buf, nil
		},
		Encoding: hdr.TextEncoding,
		Overflow: page.NewThresholds(int(hdr.PageSize), int(hdr.ReservedSpace), true),
	}
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("sqlitefmt"),
		kong.Description("Inspect and dump SQLite-compatible database files."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(); err != nil {
		logx.Logger().Error("command failed", zap.Error(err))
		ctx.FatalIfErrorf(err)
	}
}
