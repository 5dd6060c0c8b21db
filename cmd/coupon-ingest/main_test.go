package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/stockorder/internal/domain/coupon"
)

// --- Mock implementations ---

type fakeWriter struct {
	mu      sync.Mutex
	stored  map[string]coupon.Coupon
	batches int
	checks  int
}

func newFakeWriter(existing ...string) *fakeWriter {
	w := &fakeWriter{stored: make(map[string]coupon.Coupon)}
	for _, code := range existing {
		w.stored[code] = coupon.Coupon{Code: code}
	}
	return w
}

func (w *fakeWriter) InsertBatch(_ context.Context, coupons []coupon.Coupon) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches++
	var n int64
	for _, c := range coupons {
		if _, ok := w.stored[c.Code]; ok {
			continue
		}
		w.stored[c.Code] = c
		n++
	}
	return n, nil
}

func (w *fakeWriter) ExistingCodes(_ context.Context, codes []string) (map[string]struct{}, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.checks++
	out := make(map[string]struct{})
	for _, code := range codes {
		if _, ok := w.stored[code]; ok {
			out[code] = struct{}{}
		}
	}
	return out, nil
}

// --- Helpers ---

func writeFeed(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

// --- Tests ---

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		code    string
		rate    string
		owner   string
		wantErr bool
	}{
		{"code and rate", "WELCOME10,10", "WELCOME10", "10", "", false},
		{"with owner", "vip5, 5 ,m1", "VIP5", "5", "m1", false},
		{"fractional", "HALF,12.5", "HALF", "12.5", "", false},
		{"missing rate", "ONLY", "", "", "", true},
		{"too many fields", "A,1,m1,x", "", "", "", true},
		{"empty code", ",10", "", "", "", true},
		{"bad rate", "X,ten", "", "", "", true},
		{"rate over 100", "X,150", "", "", "", true},
		{"negative rate", "X,-1", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := parseLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.code, c.Code)
			assert.True(t, decimal.RequireFromString(tt.rate).Equal(c.DiscountRate))
			assert.Equal(t, tt.owner, c.OwnerID)
			assert.NotEmpty(t, c.ID)
		})
	}
}

func TestIngest(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFeed(t, dir, "coupons1.gz", "AAA,10", "BBB,20", "broken", "CCC,5,m1"),
		writeFeed(t, dir, "coupons2.gz", "aaa,10", "DDD,15", "", "EEE,200"),
		writeFeed(t, dir, "coupons3.gz", "BBB,20", "FFF,30", "OLD,10"),
	}
	w := newFakeWriter("OLD")

	st, err := ingest(context.Background(), files, w, 2)
	require.NoError(t, err)

	assert.Equal(t, uint64(10), st.lines)
	assert.Equal(t, uint64(2), st.malformed)
	assert.Equal(t, int64(5), st.inserted)
	assert.Equal(t, uint64(3), st.duplicates)

	for _, code := range []string{"AAA", "BBB", "CCC", "DDD", "FFF", "OLD"} {
		assert.Contains(t, w.stored, code)
	}
	assert.Equal(t, "m1", w.stored["CCC"].OwnerID)
	assert.NotContains(t, w.stored, "EEE")
}

func TestIngest_MissingFile(t *testing.T) {
	_, err := ingest(context.Background(), []string{filepath.Join(t.TempDir(), "nope.gz")}, newFakeWriter(), 10)
	assert.Error(t, err)
}

func TestDeduper_SuspectsWithinOneBatch(t *testing.T) {
	w := newFakeWriter()
	d := newDeduper(w, 100)
	ctx := context.Background()

	for _, code := range []string{"X", "Y", "X", "X", "Z"} {
		require.NoError(t, d.add(ctx, coupon.Coupon{Code: code, DiscountRate: decimal.NewFromInt(1)}))
	}
	require.NoError(t, d.flush(ctx))

	assert.Equal(t, int64(3), d.inserted)
	assert.Equal(t, uint64(2), d.duplicates)
	assert.Equal(t, 1, w.checks)
}
