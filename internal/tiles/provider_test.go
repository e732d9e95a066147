package tiles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func openTestArchive(t *testing.T, bounds string, tiles []testTile) *Archive {
	t.Helper()
	path := buildTestArchive(t, t.TempDir(), bounds, tiles)
	a, err := OpenFile(path, discardLogger())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestProvideTile_RowFlip(t *testing.T) {
	// Widget row 1 at zoom 2 maps to archive row 2^2-1-1 = 2.
	want := []byte("stored-tile")
	a := openTestArchive(t, "", []testTile{{2, 1, 2, want}})

	p := NewProvider(discardLogger())
	p.SetArchive(a)

	got := p.ProvideTile(2, 1, 1)
	if string(got) != string(want) {
		t.Errorf("row flip lookup failed: got %q want %q", got, want)
	}

	// The widget row equal to the archive row must NOT hit.
	if got := p.ProvideTile(2, 1, 2); string(got) == string(want) {
		t.Error("unflipped row must not resolve to the stored tile")
	}
}

func TestProvideTile_NoArchive(t *testing.T) {
	p := NewProvider(discardLogger())
	if got := p.ProvideTile(5, 1, 1); string(got) != string(FallbackTile) {
		t.Error("unset archive must serve the fallback tile")
	}
}

func TestProvideTile_MissServesFallback(t *testing.T) {
	a := openTestArchive(t, "", []testTile{{3, 0, 0, []byte("x")}})
	p := NewProvider(discardLogger())
	p.SetArchive(a)

	if got := p.ProvideTile(3, 7, 7); string(got) != string(FallbackTile) {
		t.Error("miss must serve the fallback tile")
	}
}

func TestProvideTile_NegativeCoordinates(t *testing.T) {
	a := openTestArchive(t, "", []testTile{{3, 0, 0, []byte("x")}})
	p := NewProvider(discardLogger())
	p.SetArchive(a)

	if got := p.ProvideTile(-1, 0, 0); string(got) != string(FallbackTile) {
		t.Error("negative zoom must serve the fallback tile")
	}
}

func TestSetArchive_ReplacesAndUnloads(t *testing.T) {
	a := openTestArchive(t, "", []testTile{{3, 0, 0, []byte("first")}})
	p := NewProvider(discardLogger())
	p.SetArchive(a)
	if !p.Loaded() {
		t.Fatal("expected loaded archive")
	}

	p.SetArchive(nil)
	if p.Loaded() {
		t.Fatal("expected unloaded provider")
	}
	if got := p.ProvideTile(3, 0, 7); string(got) != string(FallbackTile) {
		t.Error("unloaded provider must serve fallback")
	}
}

func TestFitView_ClampsToDataZooms(t *testing.T) {
	// Tiny bounds would fit at a very high zoom; data stops at 15, so the
	// view must use 14 (max-1).
	a := openTestArchive(t, "77.190,28.546,77.191,28.547", []testTile{
		{12, 0, 0, []byte("a")},
		{15, 0, 0, []byte("b")},
	})
	p := NewProvider(discardLogger())
	p.SetArchive(a)

	v, ok := p.FitView(1024, 768)
	if !ok {
		t.Fatal("expected a view")
	}
	if v.Zoom != 14 {
		t.Errorf("expected zoom clamped to 14, got %d", v.Zoom)
	}
	if v.Center.Latitude < 28.546 || v.Center.Latitude > 28.547 {
		t.Errorf("center latitude outside bounds: %+v", v.Center)
	}
}

func TestFitView_FloorsAtMinZoom(t *testing.T) {
	// A huge extent computes a tiny ideal zoom; the floor is the archive's
	// minimum data zoom.
	a := openTestArchive(t, "-170,-80,170,80", []testTile{
		{8, 0, 0, []byte("a")},
		{10, 0, 0, []byte("b")},
	})
	p := NewProvider(discardLogger())
	p.SetArchive(a)

	v, ok := p.FitView(1024, 768)
	if !ok {
		t.Fatal("expected a view")
	}
	if v.Zoom != 8 {
		t.Errorf("expected zoom floored at 8, got %d", v.Zoom)
	}
}

func TestFitView_NoBounds(t *testing.T) {
	a := openTestArchive(t, "", []testTile{{8, 0, 0, []byte("a")}})
	p := NewProvider(discardLogger())
	p.SetArchive(a)

	if _, ok := p.FitView(1024, 768); ok {
		t.Error("no bounds means no fit view")
	}
}

func TestFetchArchive_Success(t *testing.T) {
	path := buildTestArchive(t, t.TempDir(), "0,0,1,1", []testTile{{10, 1, 1, []byte("t")}})
	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf)
	}))
	defer srv.Close()

	progressCh, resultCh := FetchArchive(context.Background(), srv.Client(), srv.URL, discardLogger())

	// Drain progress; the channel closes when the fetch finishes.
	for range progressCh {
	}

	select {
	case res := <-resultCh:
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		defer res.Archive.Close()
		if res.Archive.Info().TileCount != 1 {
			t.Errorf("expected 1 tile, got %d", res.Archive.Info().TileCount)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("fetch did not complete")
	}
}

func TestFetchArchive_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	progressCh, resultCh := FetchArchive(context.Background(), srv.Client(), srv.URL, discardLogger())
	for range progressCh {
	}

	res := <-resultCh
	if res.Err == nil {
		t.Fatal("expected error for HTTP 404")
	}
}

func TestFetchArchive_CorruptBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a database"))
	}))
	defer srv.Close()

	progressCh, resultCh := FetchArchive(context.Background(), srv.Client(), srv.URL, discardLogger())
	for range progressCh {
	}

	res := <-resultCh
	if res.Err == nil {
		t.Fatal("expected ErrCorruptArchive")
	}
}
