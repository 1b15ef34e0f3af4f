package cache

import (
	"context"
	"testing"
	"time"

	"market-engine/src/logger"
	"market-engine/src/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func newTestCache(t *testing.T) (*RedisPriceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisPriceCache(client, "test", logger.NewDiscardLogger("RedisPriceCache")), mr
}

func samplePoint(t *testing.T) models.MPricePoint {
	t.Helper()
	d := decimal.RequireFromString
	p, err := models.NewPricePoint("ACME", models.MPrice{Amount: d("150.00"), Currency: "USD"},
		time.Date(2024, 1, 5, 21, 0, 0, 0, time.UTC), models.SourceCache, models.IntervalRealTime,
		&models.MOHLCV{Open: d("149.5"), High: d("151"), Low: d("149"), Close: d("150"), Volume: 1200})
	if err != nil {
		t.Fatalf("NewPricePoint: %v", err)
	}
	return p
}

func TestSetGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	p := samplePoint(t)

	if err := c.Set(ctx, "acme", models.IntervalRealTime, p, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, found, err := c.Get(ctx, "ACME", models.IntervalRealTime)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if !got.Equal(p) {
		t.Fatalf("got %s, want %s", got, p)
	}
	if got.OHLCV == nil || got.OHLCV.Volume != 1200 || !got.OHLCV.High.Equal(p.OHLCV.High) {
		t.Fatalf("OHLCV lost: %+v", got.OHLCV)
	}
}

func TestMissIsAbsence(t *testing.T) {
	c, mr := newTestCache(t)

	_, found, err := c.Get(context.Background(), "NOPE", models.IntervalDaily)
	if err != nil || found {
		t.Fatalf("Get on empty cache: found=%v err=%v", found, err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("a miss must not write anything, keys: %v", mr.Keys())
	}
}

func TestEntriesExpire(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "ACME", models.IntervalRealTime, samplePoint(t), 15*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL("test:price:ACME:realtime"); ttl != 15*time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}

	mr.FastForward(16 * time.Minute)
	if _, found, _ := c.Get(ctx, "ACME", models.IntervalRealTime); found {
		t.Fatalf("entry survived its TTL")
	}
}

func TestIntervalsAreSeparateKeys(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "ACME", models.IntervalRealTime, samplePoint(t), time.Minute)
	if _, found, _ := c.Get(ctx, "ACME", models.IntervalDaily); found {
		t.Fatalf("daily lookup hit the realtime entry")
	}
}

func TestInvalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "ACME", models.IntervalRealTime, samplePoint(t), time.Minute)
	if err := c.Invalidate(ctx, "ACME", models.IntervalRealTime); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, found, _ := c.Get(ctx, "ACME", models.IntervalRealTime); found {
		t.Fatalf("entry survived invalidation")
	}
	if err := c.Invalidate(ctx, "ACME", models.IntervalRealTime); err != nil {
		t.Fatalf("second Invalidate: %v", err)
	}
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Set("test:price:ACME:realtime", "{not json")

	_, found, err := c.Get(context.Background(), "ACME", models.IntervalRealTime)
	if err != nil || found {
		t.Fatalf("corrupt entry: found=%v err=%v", found, err)
	}
	if mr.Exists("test:price:ACME:realtime") {
		t.Fatalf("corrupt entry was not dropped")
	}
}

func TestSetRejectsNonPositiveTTL(t *testing.T) {
	c, _ := newTestCache(t)
	if err := c.Set(context.Background(), "ACME", models.IntervalRealTime, samplePoint(t), 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
