package vecstore_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/haivivi/zoocari/pkg/vecstore"
)

func TestMemorySearch(t *testing.T) {
	m := vecstore.NewMemory()
	m.Insert("lion", []float32{1, 0, 0})
	m.Insert("tiger", []float32{0.9, 0.1, 0})
	m.Insert("owl", []float32{0, 0, 1})

	matches, err := m.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 || matches[0].ID != "lion" || matches[1].ID != "tiger" {
		t.Fatalf("Search = %+v", matches)
	}
	if matches[0].Distance != 0 {
		t.Fatalf("self distance = %v", matches[0].Distance)
	}

	if got, _ := m.Search([]float32{1, 0, 0}, 0); got != nil {
		t.Fatalf("topK=0 = %+v", got)
	}
	if got, _ := vecstore.NewMemory().Search([]float32{1}, 3); got != nil {
		t.Fatalf("empty index = %+v", got)
	}
}

func TestMemoryTiesAreStable(t *testing.T) {
	m := vecstore.NewMemory()
	m.BatchInsert([]string{"c", "a", "b"}, [][]float32{{1, 0}, {1, 0}, {1, 0}})
	matches, _ := m.Search([]float32{1, 0}, 3)
	if matches[0].ID != "a" || matches[1].ID != "b" || matches[2].ID != "c" {
		t.Fatalf("tie order = %+v", matches)
	}
}

func TestMemoryDimension(t *testing.T) {
	m := vecstore.NewMemory()
	if err := m.Insert("a", []float32{1, 0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := m.Insert("b", []float32{1, 0, 0}); !errors.Is(err, vecstore.ErrDimension) {
		t.Fatalf("Insert wrong dim = %v", err)
	}
	if _, err := m.Search([]float32{1}, 1); !errors.Is(err, vecstore.ErrDimension) {
		t.Fatalf("Search wrong dim = %v", err)
	}
	if err := m.BatchInsert([]string{"x"}, nil); err == nil {
		t.Fatal("BatchInsert length mismatch accepted")
	}
	m.Delete("a")
	m.Delete("missing")
	if m.Len() != 0 || m.Dim() != 2 {
		t.Fatalf("Len=%d Dim=%d", m.Len(), m.Dim())
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		a, b []float32
		want float32
	}{
		{[]float32{1, 0}, []float32{1, 0}, 0},
		{[]float32{1, 0}, []float32{0, 1}, 1},
		{[]float32{1, 0}, []float32{-1, 0}, 2},
		{[]float32{0, 0}, []float32{1, 0}, 2},
		{[]float32{1}, []float32{1, 0}, 2},
	}
	for _, tt := range tests {
		got := vecstore.CosineDistance(tt.a, tt.b)
		if math.Abs(float64(got-tt.want)) > 1e-6 {
			t.Fatalf("CosineDistance(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	m := vecstore.NewMemory()
	m.BatchInsert([]string{"lion", "owl"}, [][]float32{{1, 0, 0}, {0, 0, 1}})

	var buf bytes.Buffer
	if err := m.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := vecstore.LoadMemory(&buf)
	if err != nil {
		t.Fatalf("LoadMemory: %v", err)
	}
	if loaded.Len() != 2 || loaded.Dim() != 3 {
		t.Fatalf("loaded Len=%d Dim=%d", loaded.Len(), loaded.Dim())
	}
	matches, _ := loaded.Search([]float32{0, 0, 1}, 1)
	if len(matches) != 1 || matches[0].ID != "owl" {
		t.Fatalf("Search after load = %+v", matches)
	}

	if _, err := vecstore.LoadMemory(bytes.NewReader([]byte("not msgpack"))); err == nil {
		t.Fatal("LoadMemory accepted garbage")
	}
}
