package geo

import (
	"errors"
	"math"
	"testing"

	"tacmap/pkg/core"
)

func TestHaversine_KnownDistance(t *testing.T) {
	// Paris to London, roughly 344 km.
	paris := core.Position{Latitude: 48.8566, Longitude: 2.3522}
	london := core.Position{Latitude: 51.5074, Longitude: -0.1278}

	d := Haversine(paris, london)
	if d < 330_000 || d > 350_000 {
		t.Errorf("expected ~344km, got %f m", d)
	}
}

func TestHaversine_ZeroDistance(t *testing.T) {
	p := core.Position{Latitude: 28.5471, Longitude: 77.1945}
	if d := Haversine(p, p); d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
}

func TestHaversine_Symmetric(t *testing.T) {
	a := core.Position{Latitude: 10, Longitude: 20}
	b := core.Position{Latitude: 11, Longitude: 21}
	if d1, d2 := Haversine(a, b), Haversine(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Errorf("haversine not symmetric: %f vs %f", d1, d2)
	}
}

func TestFormatDistance(t *testing.T) {
	cases := []struct {
		meters float64
		want   string
	}{
		{950, "950 m"},
		{0, "0 m"},
		{999.4, "999 m"},
		{1000, "1.00 km"},
		{1530, "1.53 km"},
		{12345, "12.35 km"},
	}
	for _, c := range cases {
		if got := FormatDistance(c.meters); got != c.want {
			t.Errorf("FormatDistance(%f) = %q, want %q", c.meters, got, c.want)
		}
	}
}

func TestParseBounds_Valid(t *testing.T) {
	b, err := ParseBounds("77.18,28.54,77.21,28.56")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.West != 77.18 || b.South != 28.54 || b.East != 77.21 || b.North != 28.56 {
		t.Errorf("unexpected bounds: %+v", b)
	}
}

func TestParseBounds_Invalid(t *testing.T) {
	for _, s := range []string{"", "1,2,3", "a,b,c,d", "1,2,3,4,5"} {
		if _, err := ParseBounds(s); !errors.Is(err, ErrInvalidBounds) {
			t.Errorf("ParseBounds(%q): expected ErrInvalidBounds, got %v", s, err)
		}
	}
}

func TestBoundingBox_Contains(t *testing.T) {
	b := core.BoundingBox{West: 0, South: 0, East: 1, North: 1}

	if !b.Contains(core.Position{Latitude: 0.5, Longitude: 0.5}) {
		t.Error("(0.5,0.5) should be inside")
	}
	if b.Contains(core.Position{Latitude: 2, Longitude: 2}) {
		t.Error("(2,2) should be outside")
	}
	// Edges are inclusive.
	if !b.Contains(core.Position{Latitude: 0, Longitude: 0}) {
		t.Error("(0,0) should be inside")
	}
	if !b.Contains(core.Position{Latitude: 1, Longitude: 1}) {
		t.Error("(1,1) should be inside")
	}
}

func TestMidpoint(t *testing.T) {
	m := Midpoint(core.Position{Latitude: 0, Longitude: 0}, core.Position{Latitude: 2, Longitude: 4})
	if m.Latitude != 1 || m.Longitude != 2 {
		t.Errorf("unexpected midpoint: %+v", m)
	}
}

func TestBoundsZoom_LargerBoxLowerZoom(t *testing.T) {
	small := core.BoundingBox{West: 77.18, South: 28.54, East: 77.21, North: 28.56}
	large := core.BoundingBox{West: 70, South: 20, East: 90, North: 35}

	zSmall := BoundsZoom(small, 1024, 768)
	zLarge := BoundsZoom(large, 1024, 768)
	if zSmall <= zLarge {
		t.Errorf("smaller extent should fit at higher zoom: small=%d large=%d", zSmall, zLarge)
	}
}

func TestBoundsZoom_DegenerateInput(t *testing.T) {
	b := core.BoundingBox{West: 1, South: 1, East: 1, North: 1}
	if z := BoundsZoom(b, 1024, 768); z != 0 {
		t.Errorf("degenerate box should yield 0, got %d", z)
	}
	if z := BoundsZoom(core.BoundingBox{West: 0, South: 0, East: 1, North: 1}, 0, 0); z != 0 {
		t.Errorf("empty viewport should yield 0, got %d", z)
	}
}

func TestTrailLineString(t *testing.T) {
	pts := []core.Position{
		{Latitude: 28.54, Longitude: 77.18},
		{Latitude: 28.55, Longitude: 77.19},
		{Latitude: 28.56, Longitude: 77.20},
	}
	ls, err := TrailLineString(pts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seq := ls.Coordinates()
	if seq.Length() != 3 {
		t.Fatalf("expected 3 points, got %d", seq.Length())
	}
	first := seq.GetXY(0)
	if first.X != 77.18 || first.Y != 28.54 {
		t.Errorf("unexpected first coordinate: %+v", first)
	}
}

func TestTrailLineString_TooShort(t *testing.T) {
	if _, err := TrailLineString([]core.Position{{Latitude: 1, Longitude: 1}}); err == nil {
		t.Fatal("expected error for single-point trail")
	}
}
