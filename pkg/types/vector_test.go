// pkg/types/vector_test.go
package types

import "testing"

func TestVectorCreate(t *testing.T) {
	data := []float32{0.1, 0.2, 0.3}
	v := NewVector(data)
	if v.Dimension() != 3 {
		t.Errorf("expected dimension 3, got %d", v.Dimension())
	}
	if v.Data()[0] != 0.1 {
		t.Errorf("expected 0.1, got %f", v.Data()[0])
	}
}

func TestVectorCreateCopiesBackingArray(t *testing.T) {
	data := []float32{1, 2, 3}
	v := NewVector(data)
	data[0] = 99
	if v.Data()[0] != 1 {
		t.Errorf("vector aliased caller's slice, got %f", v.Data()[0])
	}
}

func TestVectorEqual(t *testing.T) {
	a := NewVector([]float32{1, 2, 3})
	b := NewVector([]float32{1, 2, 3})
	c := NewVector([]float32{1, 2, 4})
	d := NewVector([]float32{1, 2})
	if !a.Equal(b) {
		t.Errorf("expected equal vectors")
	}
	if a.Equal(c) {
		t.Errorf("expected unequal vectors")
	}
	if a.Equal(d) {
		t.Errorf("expected dimension mismatch to be unequal")
	}
}

func TestVectorToFromBytes(t *testing.T) {
	original := NewVector([]float32{1.5, 2.5, 3.5})
	bytes := original.ToBytes()
	restored, err := VectorFromBytes(bytes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !original.Equal(restored) {
		t.Errorf("round-trip mismatch: %v vs %v", original.Data(), restored.Data())
	}
}

func TestVectorFromBytesTruncated(t *testing.T) {
	if _, err := VectorFromBytes([]byte{1, 2}); err == nil {
		t.Errorf("expected error for truncated header")
	}
	original := NewVector([]float32{1, 2, 3})
	full := original.ToBytes()
	if _, err := VectorFromBytes(full[:len(full)-2]); err == nil {
		t.Errorf("expected error for truncated body")
	}
}

func TestEncodeDecodeInto(t *testing.T) {
	src := []float32{-1.5, 0, 42.25}
	buf := make([]byte, len(src)*4)
	EncodeInto(buf, src)
	dst := make([]float32, len(src))
	DecodeInto(dst, buf)
	for i := range src {
		if src[i] != dst[i] {
			t.Errorf("index %d: expected %f, got %f", i, src[i], dst[i])
		}
	}
}
