package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"NewsDigest/internal/domain"
)

var testNow = time.Date(2025, time.November, 8, 12, 0, 0, 0, time.UTC)

type namedScanner string

func (n namedScanner) Name() string { return string(n) }

func (n namedScanner) Scan(ctx context.Context, req Request) ([]domain.CandidateItem, error) {
	return nil, nil
}

type fixedScanner struct {
	items []domain.CandidateItem
	err   error
}

func (f fixedScanner) Name() string { return "fixed" }

func (f fixedScanner) Scan(ctx context.Context, req Request) ([]domain.CandidateItem, error) {
	return append([]domain.CandidateItem(nil), f.items...), f.err
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(namedScanner("rss"))

	got, err := reg.Resolve("rss")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got.Name() != "rss" {
		t.Fatalf("unexpected scanner: %s", got.Name())
	}

	if _, err := reg.Resolve("atom"); err == nil {
		t.Fatalf("expected error for unknown scanner")
	}

	var zero Registry
	zero.Register(namedScanner("late"))
	if _, err := zero.Resolve("late"); err != nil {
		t.Fatalf("zero registry should accept registrations: %v", err)
	}

	reg.Register(namedScanner("atom"))
	if names := reg.Names(); len(names) != 2 || names[0] != "atom" || names[1] != "rss" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestRequestLimits(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		req       Request
		wantAge   time.Duration
		wantItems int
	}{
		{name: "defaults", req: Request{}, wantAge: 24 * time.Hour, wantItems: 50},
		{name: "options", req: Request{Options: map[string]string{OptionMaxAge: "6h", OptionMaxItems: "5"}}, wantAge: 6 * time.Hour, wantItems: 5},
		{name: "bad options", req: Request{Options: map[string]string{OptionMaxAge: "soon", OptionMaxItems: "-1"}}, wantAge: 24 * time.Hour, wantItems: 50},
		{name: "fields win", req: Request{MaxAge: time.Hour, MaxItems: 3, Options: map[string]string{OptionMaxAge: "6h"}}, wantAge: time.Hour, wantItems: 3},
	}
	for _, tc := range cases {
		age, items := tc.req.Limits(24*time.Hour, 50)
		if age != tc.wantAge || items != tc.wantItems {
			t.Fatalf("%s: got (%v, %d), want (%v, %d)", tc.name, age, items, tc.wantAge, tc.wantItems)
		}
	}
}

func TestFresh(t *testing.T) {
	t.Parallel()

	if !Fresh(time.Time{}, testNow, time.Hour) {
		t.Fatalf("undated items must be kept")
	}
	if !Fresh(testNow.Add(-time.Hour), testNow, time.Hour) {
		t.Fatalf("window boundary must be inclusive")
	}
	if Fresh(testNow.Add(-time.Hour-time.Second), testNow, time.Hour) {
		t.Fatalf("expected stale item rejected")
	}
	if !Fresh(testNow.Add(-100*time.Hour), testNow, 0) {
		t.Fatalf("zero window keeps everything")
	}
}

func TestRegistryScanNormalizes(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(fixedScanner{items: []domain.CandidateItem{
		{Title: " Budget passed ", URL: "https://a/1", PublishedAt: testNow.Add(-time.Hour)},
		{Title: "Budget passed again", URL: "https://a/1"},
		{Title: "", URL: "https://a/2"},
		{Title: "Old news", URL: "https://a/3", PublishedAt: testNow.Add(-48 * time.Hour)},
		{Title: "Wire copy", URL: "https://a/4", SourceID: "reuters"},
	}})

	items, err := reg.Scan(context.Background(), "fixed", Request{Now: testNow, SiteName: "site", MaxAge: 24 * time.Hour})
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %+v", items)
	}
	if items[0].Title != "Budget passed" || items[0].SourceID != "site" {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[1].SourceID != "reuters" {
		t.Fatalf("explicit source id must be kept, got %q", items[1].SourceID)
	}

	if _, err := reg.Scan(context.Background(), "missing", Request{}); err == nil {
		t.Fatalf("expected error for unknown scanner")
	}

	failing := NewRegistry()
	failing.Register(fixedScanner{err: errors.New("feed down")})
	if _, err := failing.Scan(context.Background(), "fixed", Request{}); err == nil {
		t.Fatalf("expected strategy error")
	}
}
