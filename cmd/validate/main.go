// Command validate checks an exported rainfall CSV against the output
// contract: header order, field formats, per-point coordinate consistency
// and, when the input points file is given, that every row falls inside its
// point's window.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -csv landslide_rainfall.csv \
//	  -points data/magelang_2018.csv \
//	  -date-format 24h
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/landslide-rainfall-etl/internal/adapter/pointfile"
	"github.com/couchcryptid/landslide-rainfall-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// options are the parsed command-line flags.
type options struct {
	csvPath    string
	pointsPath string
	layout     domain.DateLayout
	lookback   int
	lookahead  int
}

func main() {
	csvPath := flag.String("csv", "", "path to the exported CSV")
	pointsPath := flag.String("points", "", "optional points file (.csv or .geojson) for the window check")
	dateFormat := flag.String("date-format", "24h", "date layout of the export: 24h or legacy")
	lookback := flag.Int("lookback", domain.DefaultLookbackDays, "window days before the event date")
	lookahead := flag.Int("lookahead", domain.DefaultLookaheadDays, "window days after the event date")
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		os.Exit(1)
	}
	layout, err := domain.ParseDateLayout(*dateFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(os.Stdout, options{
		csvPath:    *csvPath,
		pointsPath: *pointsPath,
		layout:     layout,
		lookback:   *lookback,
		lookahead:  *lookahead,
	}))
}

func run(out io.Writer, opts options) int {
	fmt.Fprintln(out, "=== Landslide Rainfall Export Validation ===")
	fmt.Fprintln(out)

	header, rows, err := loadCSV(opts.csvPath)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load export: %v\n", err)
		return 1
	}

	phases := []*phase{validateHeader(header)}
	parsed, fields := validateFields(rows, opts.layout)
	phases = append(phases, fields, validateConsistency(parsed, opts.layout))

	if opts.pointsPath != "" {
		points, err := pointfile.NewLoader(opts.pointsPath).LoadPoints(context.Background())
		if err != nil {
			fmt.Fprintf(out, "FATAL: load points: %v\n", err)
			return 1
		}
		phases = append(phases, validateWindows(parsed, points, opts))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Rows: %d, points: %d\n", len(rows), countPoints(parsed))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

func loadCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("empty file %s", path)
	}
	return all[0], all[1:], nil
}
