package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubGenerator struct {
	err error
}

func (g *stubGenerator) Generate(context.Context, int) ([]string, error) {
	if g.err != nil {
		return nil, g.err
	}
	return []string{"Fortune text long enough."}, nil
}

func TestDomainCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.IncView()
	m.IncView()
	m.IncShare()
	m.IncCacheHit()
	m.IncCacheMiss()

	if got := testutil.ToFloat64(m.viewsTotal); got != 2 {
		t.Fatalf("expected 2 views, got %v", got)
	}
	if got := testutil.ToFloat64(m.sharesTotal); got != 1 {
		t.Fatalf("expected 1 share, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheHits); got != 1 {
		t.Fatalf("expected 1 cache hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheMisses); got != 1 {
		t.Fatalf("expected 1 cache miss, got %v", got)
	}
}

func TestInstrumentGeneratorCountsCallsAndFailures(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	ok := m.InstrumentGenerator(&stubGenerator{})
	if _, err := ok.Generate(context.Background(), 1); err != nil {
		t.Fatalf("unexpected generate error: %v", err)
	}

	failing := m.InstrumentGenerator(&stubGenerator{err: errors.New("provider down")})
	if _, err := failing.Generate(context.Background(), 1); err == nil {
		t.Fatalf("expected failure to propagate")
	}

	if got := testutil.ToFloat64(m.generationsTotal); got != 2 {
		t.Fatalf("expected 2 generation calls, got %v", got)
	}
	if got := testutil.ToFloat64(m.generationFailures); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}
