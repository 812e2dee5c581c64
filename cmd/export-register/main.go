// export-register dumps the inspection register for a date range to an xlsx
// file.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/export-register -from 2026-01-01 -to 2026-12-31 -out register.xlsx
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/habitaflow/rentals_backend/config"
	"github.com/habitaflow/rentals_backend/models/reports"
)

func main() {
	fromFlag := flag.String("from", "", "start date (inclusive), YYYY-MM-DD")
	toFlag := flag.String("to", "", "end date (exclusive), YYYY-MM-DD")
	outFlag := flag.String("out", "register.xlsx", "output file")
	flag.Parse()

	from, err := time.Parse("2006-01-02", *fromFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "-from must be YYYY-MM-DD")
		os.Exit(2)
	}
	to, err := time.Parse("2006-01-02", *toFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, "-to must be YYYY-MM-DD")
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	ctx := context.Background()
	rows, err := reports.GetInspectionRegister(ctx, from, to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build register: %v\n", err)
		os.Exit(1)
	}
	if err := reports.ExportRegisterExcel(rows, *outFlag); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", *outFlag, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d rows to %s\n", len(rows), *outFlag)
}
