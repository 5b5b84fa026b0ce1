package protocol

import (
	"math"
	"testing"
)

func TestEncodeChunkOwnsBuffer(t *testing.T) {
	slot := Chunk{StartIndex: 10, StopIndex: 20}
	data, err := EncodeChunk(slot)
	if err != nil {
		t.Fatalf("EncodeChunk: %v", err)
	}

	// Reusing the slot must not affect bytes already handed to the transport.
	slot.StartIndex, slot.StopIndex = 90, 100

	got, err := DecodeChunk(data)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if got.StartIndex != 10 || got.StopIndex != 20 {
		t.Errorf("got %s, want [10,20)", got)
	}
}

func TestDecodeValueSpecials(t *testing.T) {
	for _, v := range []float64{0, -1.5, math.Inf(1)} {
		data, err := EncodeValue(v)
		if err != nil {
			t.Fatalf("EncodeValue(%v): %v", v, err)
		}
		got, err := DecodeValue(data)
		if err != nil {
			t.Fatalf("DecodeValue: %v", err)
		}
		if got != v {
			t.Errorf("got %v, want %v", got, v)
		}
	}

	data, _ := EncodeValue(math.NaN())
	got, err := DecodeValue(data)
	if err != nil {
		t.Fatalf("DecodeValue: %v", err)
	}
	if !math.IsNaN(got) {
		t.Errorf("NaN did not survive the codec, got %v", got)
	}
}

func TestDecodeChunkGarbage(t *testing.T) {
	if _, err := DecodeChunk([]byte{0xc1}); err == nil {
		t.Error("expected error for reserved msgpack byte")
	}
}

func TestChunkLen(t *testing.T) {
	cases := []struct {
		c    Chunk
		want int64
	}{
		{Chunk{0, 10}, 10},
		{Chunk{995, 1000}, 5},
		{Chunk{1000, 1000}, 0},
	}
	for _, tc := range cases {
		if got := tc.c.Len(); got != tc.want {
			t.Errorf("%s.Len() = %d, want %d", tc.c, got, tc.want)
		}
	}
}

func TestTagName(t *testing.T) {
	if got := TagName(TagQuit); got != "quit" {
		t.Errorf("TagName(TagQuit) = %q", got)
	}
	if got := TagName(7); got != "tag(7)" {
		t.Errorf("TagName(7) = %q", got)
	}
}
