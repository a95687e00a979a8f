// Command report-export writes order reports as gzip-compressed CSV files,
// one file per requested order status, exported concurrently.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-checkout/internal/report"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		outDir      string
		fromStr     string
		untilStr    string
		statuses    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&outDir, "out-dir", "reports", "directory for generated report files")
	flag.StringVar(&fromStr, "from", "", "start of the reporting period, inclusive (RFC3339 or YYYY-MM-DD)")
	flag.StringVar(&untilStr, "until", "", "end of the reporting period, exclusive (RFC3339 or YYYY-MM-DD, default now)")
	flag.StringVar(&statuses, "statuses", "", "comma-separated order statuses, one report per status (empty: single report of all orders)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	from, err := parseTime(fromStr)
	if err != nil {
		slog.Error("invalid --from", slog.String("error", err.Error()))
		os.Exit(1)
	}
	until := time.Now().UTC()
	if untilStr != "" {
		until, err = parseTime(untilStr)
		if err != nil {
			slog.Error("invalid --until", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, outDir, from, until, splitStatuses(statuses)); err != nil {
		slog.Error("report export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("report export completed successfully")
}

func run(ctx context.Context, databaseURL, outDir string, from, until time.Time, statuses []string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	gen := report.NewGenerator(postgres.NewOrderRepository(pool))

	g, ctx := errgroup.WithContext(ctx)
	for _, status := range statuses {
		g.Go(exportStatus(ctx, gen, outDir, report.Params{
			From:   from,
			Until:  until,
			Status: status,
		}))
	}
	return g.Wait()
}

// exportStatus writes one report file for the given parameters.
func exportStatus(ctx context.Context, gen *report.Generator, outDir string, p report.Params) func() error {
	return func() error {
		name := "orders.csv.gz"
		if p.Status != "" {
			name = "orders-" + p.Status + ".csv.gz"
		}
		path := filepath.Join(outDir, name)

		f, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "create %s", path)
		}

		rows, err := gen.WriteCSV(ctx, f, p)
		if err != nil {
			_ = f.Close()
			return errors.Wrapf(err, "write report %s", path)
		}
		if err := f.Close(); err != nil {
			return errors.Wrapf(err, "close %s", path)
		}

		slog.Info("report written",
			slog.String("path", path),
			slog.String("status", p.Status),
			slog.Int("orders", rows),
		)

		return nil
	}
}

// splitStatuses parses the --statuses flag. An empty flag yields a single
// unfiltered report.
func splitStatuses(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{""}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{""}
	}
	return out
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.Errorf("parse %q: want RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
}
