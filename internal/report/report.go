// Package report generates order reports as gzip-compressed CSV.
package report

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// Params selects the orders included in a report. The time bounds are
// half-open: CreatedAt in [From, Until). An empty Status includes all orders.
type Params struct {
	From   time.Time
	Until  time.Time
	Status string
}

// OrderSource streams the orders matching the report parameters in
// placement order.
type OrderSource interface {
	OrdersPlacedBetween(ctx context.Context, p Params) ([]order.Order, error)
}

var header = []string{
	"order_number",
	"user_id",
	"guest_email",
	"total_incl_tax",
	"total_excl_tax",
	"num_items",
	"status",
	"created_at",
}

// Generator writes order reports from a source.
type Generator struct {
	source OrderSource
}

// NewGenerator creates a Generator backed by the given source.
func NewGenerator(source OrderSource) *Generator {
	return &Generator{source: source}
}

// WriteCSV writes the matching orders as a gzip-compressed CSV document,
// header row first. Returns the number of order rows written.
func (g *Generator) WriteCSV(ctx context.Context, w io.Writer, p Params) (int, error) {
	orders, err := g.source.OrdersPlacedBetween(ctx, p)
	if err != nil {
		return 0, errors.Wrap(err, "load orders")
	}

	gz := pgzip.NewWriter(w)
	cw := csv.NewWriter(gz)

	if err := cw.Write(header); err != nil {
		return 0, errors.Wrap(err, "write header")
	}
	for i := range orders {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := cw.Write(row(&orders[i])); err != nil {
			return 0, errors.Wrapf(err, "write order %s", orders[i].Number)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, errors.Wrap(err, "flush csv")
	}
	if err := gz.Close(); err != nil {
		return 0, errors.Wrap(err, "close gzip stream")
	}
	return len(orders), nil
}

func row(o *order.Order) []string {
	items := 0
	for _, l := range o.Lines {
		items += l.Quantity
	}
	return []string{
		o.Number,
		o.UserID,
		o.GuestEmail,
		o.TotalInclTax.StringFixed(2),
		o.TotalExclTax.StringFixed(2),
		strconv.Itoa(items),
		o.Status,
		o.CreatedAt.UTC().Format(time.RFC3339),
	}
}
