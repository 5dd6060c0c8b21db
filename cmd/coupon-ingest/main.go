package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/stockorder/internal/domain/coupon"
	"github.com/xenking/stockorder/internal/domain/pricing"
	"github.com/xenking/stockorder/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	maxCodeLen    = 64
)

// couponWriter is the part of the coupon repository the ingester needs.
type couponWriter interface {
	InsertBatch(ctx context.Context, coupons []coupon.Coupon) (int64, error)
	ExistingCodes(ctx context.Context, codes []string) (map[string]struct{}, error)
}

var _ couponWriter = (*postgres.CouponRepository)(nil)

// stats summarises one ingest run.
type stats struct {
	lines      uint64
	malformed  uint64
	duplicates uint64
	inserted   int64
}

func main() {
	_ = godotenv.Load()

	var (
		dataDir     string
		pattern     string
		databaseURL string
		batchSize   int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing coupon feeds")
	flag.StringVar(&pattern, "pattern", "coupons*.gz", "glob of gzip feeds inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 1000, "coupons per insert batch")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, filepath.Join(dataDir, pattern), databaseURL, batchSize); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, glob, databaseURL string, batchSize int) error {
	files, err := filepath.Glob(glob)
	if err != nil {
		return errors.Wrapf(err, "glob %s", glob)
	}
	if len(files) == 0 {
		slog.Info("no coupon feeds found", slog.String("glob", glob))
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	st, err := ingest(ctx, files, postgres.NewCouponRepository(pool, postgres.DefaultRetryPolicy()), batchSize)
	if err != nil {
		return err
	}

	slog.Info("ingest summary",
		slog.Int("files", len(files)),
		slog.Uint64("lines", st.lines),
		slog.Uint64("malformed", st.malformed),
		slog.Uint64("duplicates", st.duplicates),
		slog.Int64("inserted", st.inserted),
	)
	return nil
}

// ingest reads every feed concurrently and writes the coupons in batches.
// Codes already seen in this run or already stored are skipped.
func ingest(ctx context.Context, files []string, w couponWriter, batchSize int) (stats, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	var st stats
	g, gctx := errgroup.WithContext(ctx)
	out := make(chan coupon.Coupon, batchSize)
	malformed := make([]uint64, len(files))

	readers, rctx := errgroup.WithContext(gctx)
	for i, f := range files {
		readers.Go(func() error {
			return streamGzFile(rctx, f, func(line string) error {
				c, err := parseLine(line)
				if err != nil {
					malformed[i]++
					return nil
				}
				select {
				case out <- c:
					return nil
				case <-rctx.Done():
					return rctx.Err()
				}
			})
		})
	}
	g.Go(func() error {
		defer close(out)
		return readers.Wait()
	})

	g.Go(func() error {
		d := newDeduper(w, batchSize)
		for c := range out {
			st.lines++
			if st.lines%progressEvery == 0 {
				slog.Info("ingest progress", slog.Uint64("coupons", st.lines))
			}
			if err := d.add(gctx, c); err != nil {
				return err
			}
		}
		if err := d.flush(gctx); err != nil {
			return err
		}
		st.duplicates = d.duplicates
		st.inserted = d.inserted
		return nil
	})

	if err := g.Wait(); err != nil {
		return st, err
	}
	for _, n := range malformed {
		st.malformed += n
		st.lines += n
	}
	return st, nil
}

// deduper batches coupons for insertion. A bloom filter answers "definitely
// new" for most codes; codes it flags are checked exactly against the
// database after the pending batch is written.
type deduper struct {
	w         couponWriter
	filter    *bloom.BloomFilter
	batchSize int

	batch    []coupon.Coupon
	suspects []coupon.Coupon

	duplicates uint64
	inserted   int64
}

func newDeduper(w couponWriter, batchSize int) *deduper {
	return &deduper{
		w:         w,
		filter:    bloom.NewWithEstimates(bloomCapacity, bloomFPR),
		batchSize: batchSize,
	}
}

func (d *deduper) add(ctx context.Context, c coupon.Coupon) error {
	if !d.filter.TestOrAddString(c.Code) {
		d.batch = append(d.batch, c)
		if len(d.batch) >= d.batchSize {
			return d.writeBatch(ctx)
		}
		return nil
	}
	d.suspects = append(d.suspects, c)
	if len(d.suspects) >= d.batchSize {
		return d.resolveSuspects(ctx)
	}
	return nil
}

func (d *deduper) flush(ctx context.Context) error {
	if err := d.writeBatch(ctx); err != nil {
		return err
	}
	return d.resolveSuspects(ctx)
}

func (d *deduper) writeBatch(ctx context.Context) error {
	if len(d.batch) == 0 {
		return nil
	}
	n, err := d.w.InsertBatch(ctx, d.batch)
	if err != nil {
		return errors.Wrap(err, "insert batch")
	}
	d.inserted += n
	d.duplicates += uint64(int64(len(d.batch)) - n)
	d.batch = d.batch[:0]
	return nil
}

// resolveSuspects writes the pending batch so earlier occurrences are
// visible, then inserts only suspects whose code is not stored yet.
func (d *deduper) resolveSuspects(ctx context.Context) error {
	if len(d.suspects) == 0 {
		return nil
	}
	if err := d.writeBatch(ctx); err != nil {
		return err
	}

	codes := make([]string, len(d.suspects))
	for i, c := range d.suspects {
		codes[i] = c.Code
	}
	existing, err := d.w.ExistingCodes(ctx, codes)
	if err != nil {
		return errors.Wrap(err, "check suspects")
	}

	for _, c := range d.suspects {
		if _, ok := existing[c.Code]; ok {
			d.duplicates++
			continue
		}
		existing[c.Code] = struct{}{}
		d.batch = append(d.batch, c)
	}
	d.suspects = d.suspects[:0]
	return d.writeBatch(ctx)
}

// parseLine parses "CODE,RATE[,MEMBER_ID]".
func parseLine(line string) (coupon.Coupon, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) < 2 || len(parts) > 3 {
		return coupon.Coupon{}, errors.Errorf("expected 2 or 3 fields, got %d", len(parts))
	}

	code := strings.ToUpper(strings.TrimSpace(parts[0]))
	if code == "" || len(code) > maxCodeLen {
		return coupon.Coupon{}, errors.Errorf("invalid code %q", parts[0])
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil {
		return coupon.Coupon{}, errors.Wrapf(err, "parse rate for %s", code)
	}
	if !pricing.ValidRate(rate) {
		return coupon.Coupon{}, errors.Errorf("rate %s out of range for %s", rate, code)
	}

	c := coupon.Coupon{
		ID:           uuid.NewString(),
		Code:         code,
		DiscountRate: rate,
	}
	if len(parts) == 3 {
		c.OwnerID = strings.TrimSpace(parts[2])
	}
	return c, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-empty line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
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

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
