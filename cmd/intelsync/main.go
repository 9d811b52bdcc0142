// Command intelsync is the operator CLI for working with a local record
// database without running the daemon: listing records and moving archives
// between devices.
//
//	intelsync -data ./data list [-status pending]
//	intelsync -data ./data export backup.json.gz
//	intelsync -data ./data import backup.json.gz
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jcarville/intelsync/internal/export"
	"github.com/jcarville/intelsync/internal/kv"
	"github.com/jcarville/intelsync/internal/logging"
	"github.com/jcarville/intelsync/internal/models"
	"github.com/jcarville/intelsync/internal/store"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: intelsync [-data dir] <list|export|import> [args]")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	logging.Init(os.Stderr, logging.LevelWarn)

	dataDir := flag.String("data", "./data", "record database directory")
	status := flag.String("status", "", "filter list output by record status")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	kvStore, err := kv.OpenSQLite(*dataDir)
	if err != nil {
		fatalf("open %s: %v", *dataDir, err)
	}
	defer kvStore.Close()
	records := store.New(kvStore)

	switch cmd := flag.Arg(0); cmd {
	case "list":
		listRecords(records, *status)
	case "export":
		if flag.NArg() < 2 {
			fatalf("export requires an output file")
		}
		exportRecords(records, flag.Arg(1))
	case "import":
		if flag.NArg() < 2 {
			fatalf("import requires an input file")
		}
		importRecords(records, flag.Arg(1))
	default:
		fatalf("unknown command %q", cmd)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "intelsync: "+format+"\n", args...)
	os.Exit(1)
}

func listRecords(records *store.RecordStore, status string) {
	var statuses []models.RecordStatus
	if status != "" {
		s := models.RecordStatus(status)
		if !s.IsValid() {
			fatalf("unknown status %q", status)
		}
		statuses = append(statuses, s)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tATTEMPTS\tMODIFIED\tTITLE")
	for _, rec := range records.List(statuses...) {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			rec.LocalID, rec.Status, rec.SyncAttempts,
			rec.LastModifiedTime().Format(time.RFC3339), rec.Title)
	}
	tw.Flush()
}

func exportRecords(records *store.RecordStore, path string) {
	f, err := os.Create(path)
	if err != nil {
		fatalf("create archive: %v", err)
	}

	res, err := export.NewService(records).Export(f)
	if err != nil {
		f.Close()
		os.Remove(path)
		fatalf("export: %v", err)
	}
	if err := f.Close(); err != nil {
		fatalf("write archive: %v", err)
	}
	fmt.Printf("exported %d records to %s (sha256 %s)\n", res.RecordCount, path, res.Checksum)
}

func importRecords(records *store.RecordStore, path string) {
	f, err := os.Open(path)
	if err != nil {
		fatalf("open archive: %v", err)
	}
	defer f.Close()

	res, err := export.NewService(records).Import(f)
	if err != nil {
		fatalf("import: %v", err)
	}
	fmt.Printf("imported %d records, skipped %d already present\n", res.Imported, res.Skipped)
}
