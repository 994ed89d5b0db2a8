// Command ledger-backfill seeds the coupon usage ledger from historical
// orders. Run it when enhanced usage restrictions are enabled on a coupon
// that already has redemptions, so the caps count past usage too.
//
// Orders come either from the host store's orders table (default) or from
// a gzip-compressed CSV dump with columns
// order_id,coupon_code,email,ip,ship_line1,ship_line2,ship_city,ship_postcode.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/coupon-restrictions/internal/domain/ledger"
	"github.com/xenking/coupon-restrictions/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
	dumpColumns   = 8
)

// redemption is one historical coupon use to record.
type redemption struct {
	orderID string
	code    string
	email   string
	ip      string
	addr    ledger.ShippingAddress
}

func main() {
	var (
		databaseURL   string
		couponCode    string
		canonicalCode string
		ordersDump    string
		workers       int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&couponCode, "coupon-code", "", "coupon code to backfill")
	flag.StringVar(&canonicalCode, "canonical-code", "", "record variant codes under this canonical code")
	flag.StringVar(&ordersDump, "orders-dump", "", "gzip-compressed CSV order dump (default: read the orders table)")
	flag.IntVar(&workers, "workers", 4, "concurrent ledger writers")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if couponCode == "" {
		slog.Error("--coupon-code is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, couponCode, canonicalCode, ordersDump, workers); err != nil {
		slog.Error("ledger backfill failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("ledger backfill completed successfully")
}

func run(ctx context.Context, databaseURL, couponCode, canonicalCode, ordersDump string, workers int) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	var opts []ledger.Option
	if canonicalCode != "" {
		opts = append(opts, ledger.WithCodeMapper(func(string) string {
			return canonicalCode
		}))
		slog.Info("recording under canonical code", slog.String("code", canonicalCode))
	}
	usageLedger := ledger.New(postgres.NewLedgerRepository(pool), opts...)

	redemptions := make(chan redemption, workers*4)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(redemptions)
		if ordersDump != "" {
			return streamDump(ctx, ordersDump, couponCode, redemptions)
		}
		return streamOrders(ctx, pool, couponCode, redemptions)
	})

	for range workers {
		g.Go(recorder(ctx, usageLedger, redemptions))
	}

	return g.Wait()
}

// streamOrders queues every paying order that redeemed the coupon,
// straight from the host store's orders table.
func streamOrders(ctx context.Context, pool *pgxpool.Pool, couponCode string, out chan<- redemption) error {
	orders, err := postgres.NewCustomerRepository(pool).FindOrdersWithCoupon(ctx, couponCode)
	if err != nil {
		return errors.Wrap(err, "load redeemed orders")
	}
	slog.Info("orders loaded", slog.Int("count", len(orders)))

	for _, o := range orders {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- redemption{
			orderID: o.OrderID,
			code:    couponCode,
			email:   o.BillingEmail,
			ip:      o.IP,
			addr: ledger.ShippingAddress{
				Line1:    o.ShipLine1,
				Line2:    o.ShipLine2,
				City:     o.ShipCity,
				Postcode: o.ShipPostcode,
			},
		}:
		}
	}
	return nil
}

func recorder(ctx context.Context, usageLedger *ledger.Ledger, in <-chan redemption) func() error {
	return func() error {
		var recorded uint64
		for r := range in {
			if err := usageLedger.Record(ctx, r.orderID, r.code, r.email, r.ip, r.addr); err != nil {
				return errors.Wrapf(err, "record order %s", r.orderID)
			}
			recorded++
			if recorded%progressEvery == 0 {
				slog.Info("backfill progress", slog.Uint64("recorded", recorded))
			}
		}
		return nil
	}
}

// streamDump reads a gzipped CSV order dump, filters by coupon code, and
// deduplicates (order, coupon) pairs with a bloom filter before queueing.
// The ledger's unique index drops the rare false-negative duplicates.
func streamDump(ctx context.Context, path, couponCode string, out chan<- redemption) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	reader := csv.NewReader(gz)
	reader.FieldsPerRecord = dumpColumns

	var scanned, queued uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}

		scanned++
		if scanned%progressEvery == 0 {
			slog.Info("dump scan progress",
				slog.Uint64("rows", scanned),
				slog.Uint64("queued", queued),
			)
		}

		if !strings.EqualFold(row[1], couponCode) {
			continue
		}
		key := row[0] + "|" + strings.ToUpper(row[1])
		if seen.TestAndAddString(key) {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- redemption{
			orderID: row[0],
			code:    row[1],
			email:   row[2],
			ip:      row[3],
			addr: ledger.ShippingAddress{
				Line1:    row[4],
				Line2:    row[5],
				City:     row[6],
				Postcode: row[7],
			},
		}:
			queued++
		}
	}

	slog.Info("dump scan complete",
		slog.Uint64("rows", scanned),
		slog.Uint64("queued", queued),
	)
	return nil
}
