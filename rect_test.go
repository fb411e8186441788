package grim

import "testing"

func TestParseRect(t *testing.T) {
	tests := []struct {
		in      string
		want    Rect
		wantErr bool
	}{
		{in: "10,20 300x400", want: Rect{X: 10, Y: 20, Width: 300, Height: 400}},
		{in: "10,20,300x400", wantErr: true},
		{in: "10 20 300x400", wantErr: true},
		{in: "-5,-5 10x10", want: Rect{X: -5, Y: -5, Width: 10, Height: 10}},
	}
	for _, tt := range tests {
		got, err := ParseRect(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRect(%q): expected error, got %v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRect(%q): unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseRect(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestRectRoundTrip(t *testing.T) {
	r := Rect{X: 10, Y: 20, Width: 300, Height: 400}
	got, err := ParseRect(r.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != r {
		t.Errorf("round trip = %+v, want %+v", got, r)
	}
}

func TestIntersection(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 100, Height: 100}
	b := Rect{X: 50, Y: 50, Width: 100, Height: 100}
	got, ok := a.Intersection(b)
	if !ok {
		t.Fatal("expected intersection")
	}
	want := Rect{X: 50, Y: 50, Width: 50, Height: 50}
	if got != want {
		t.Errorf("Intersection = %+v, want %+v", got, want)
	}
}

func TestIntersectionDisjoint(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 10, Height: 10}
	b := Rect{X: 100, Y: 100, Width: 10, Height: 10}
	if _, ok := a.Intersection(b); ok {
		t.Error("expected no intersection for disjoint boxes")
	}
}

func TestIntersectionEmptyOperand(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 0, Height: 10}
	b := Rect{X: 0, Y: 0, Width: 10, Height: 10}
	if _, ok := a.Intersection(b); ok {
		t.Error("expected no intersection when an operand is empty")
	}
}

func TestScenarioS1(t *testing.T) {
	got, err := ParseRect("10,20 300x400")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := (Rect{X: 10, Y: 20, Width: 300, Height: 400}); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if _, err := ParseRect("10 20 300x400"); err == nil {
		t.Error("expected rejection of space-delimited geometry")
	}
}

func TestScenarioS2(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 4, Height: 4}
	b := Rect{X: 2, Y: 2, Width: 4, Height: 4}
	got, ok := a.Intersection(b)
	if !ok {
		t.Fatal("expected intersection")
	}
	if want := (Rect{X: 2, Y: 2, Width: 2, Height: 2}); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
