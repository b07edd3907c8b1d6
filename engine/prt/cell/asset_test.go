package cell

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestAsset_EncodeDecode(t *testing.T) {
	src := &Asset{
		HasValidData:   true,
		Cell:           twoBrickCell(),
		VirtualOffsets: []mgl32.Vec3{{0, 0.5, 0}, {}, {-1, 0, 0}},
	}

	var buf bytes.Buffer
	if err := src.Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := 32 + 3*SurfelRecordSize + 2*BrickRecordSize + 3*FactorRecordSize + 3*ProbeRecordSize +
		3*ValidityRecordSize + 3*VirtualOffsetRecordSize
	if buf.Len() != want {
		t.Fatalf("Expected %d encoded bytes, got %d", want, buf.Len())
	}

	got, err := Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !got.HasValidData {
		t.Fatal("Expected decoded asset to be valid")
	}
	if got.Cell.BrickSize != 4 || got.Cell.ProbeCount() != 3 || got.Cell.BrickCount() != 2 {
		t.Errorf("Unexpected decoded shape: %+v", got.Cell)
	}
	if got.Cell.Surfels[2].SkyMask != 1 || got.Cell.Factors[1].Weight != 0.75 {
		t.Error("Decoded payload does not match encoded payload")
	}
	if !got.Cell.Probes[1].Empty() || got.Cell.Probes[1].Start != 2 {
		t.Errorf("Expected empty range {2,1} for probe 1, got %+v", got.Cell.Probes[1])
	}
	if len(got.VirtualOffsets) != 3 || got.VirtualOffsets[2] != (mgl32.Vec3{-1, 0, 0}) {
		t.Errorf("Unexpected virtual offsets: %v", got.VirtualOffsets)
	}
}

func TestAsset_EncodeWithoutVirtualOffsets(t *testing.T) {
	src := &Asset{HasValidData: true, Cell: twoBrickCell()}
	var buf bytes.Buffer
	if err := src.Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.VirtualOffsets != nil {
		t.Errorf("Expected no virtual offsets, got %v", got.VirtualOffsets)
	}
}

func TestAsset_InvalidDataRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := (&Asset{}).Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if buf.Len() != 32 {
		t.Fatalf("Expected header-only asset, got %d bytes", buf.Len())
	}
	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.HasValidData || got.Cell != nil {
		t.Errorf("Expected asset without data, got %+v", got)
	}
}

func TestDecode_RejectsOutOfRangeProbeRange(t *testing.T) {
	var buf bytes.Buffer
	if err := (&Asset{HasValidData: true, Cell: twoBrickCell()}).Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	raw := buf.Bytes()

	// last probe record End field, just before the validity block
	probeEnd := 32 + 3*SurfelRecordSize + 2*BrickRecordSize + 3*FactorRecordSize + 2*ProbeRecordSize + 4
	binary.LittleEndian.PutUint32(raw[probeEnd:probeEnd+4], 40)

	got, err := Decode(bytes.NewReader(raw))
	if !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("Expected ErrInvalidAsset, got %v", err)
	}
	if got == nil || got.HasValidData || got.Cell != nil {
		t.Errorf("Expected rejected asset with HasValidData false, got %+v", got)
	}
}

func TestDecode_RejectsWrappingBrickRanges(t *testing.T) {
	d := twoBrickCell()
	d.Bricks = []SurfelRange{{Start: 0, Count: math.MaxInt32}, {Start: math.MaxInt32, Count: math.MaxInt32}, {Start: -2, Count: 5}}

	var buf bytes.Buffer
	if err := (&Asset{HasValidData: true, Cell: d}).Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	got, err := Decode(&buf)
	if !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("Expected ErrInvalidAsset, got %v", err)
	}
	if got == nil || got.HasValidData || got.Cell != nil {
		t.Errorf("Expected rejected asset with HasValidData false, got %+v", got)
	}
}

func TestDecode_RejectsBrokenStreams(t *testing.T) {
	var good bytes.Buffer
	if err := (&Asset{HasValidData: true, Cell: twoBrickCell()}).Encode(&good); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	badMagic := append([]byte(nil), good.Bytes()...)
	copy(badMagic, "NOPE")

	badVersion := append([]byte(nil), good.Bytes()...)
	binary.LittleEndian.PutUint32(badVersion[4:8], 99)

	hugeCount := append([]byte(nil), good.Bytes()...)
	binary.LittleEndian.PutUint32(hugeCount[16:20], 1<<30)

	tests := []struct {
		name string
		data []byte
	}{
		{"short header", good.Bytes()[:10]},
		{"bad magic", badMagic},
		{"bad version", badVersion},
		{"huge count", hugeCount},
		{"truncated body", good.Bytes()[:good.Len()-3]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(bytes.NewReader(tt.data))
			if !errors.Is(err, ErrInvalidAsset) {
				t.Errorf("Expected ErrInvalidAsset, got %v", err)
			}
			if got != nil {
				t.Errorf("Expected nil asset, got %+v", got)
			}
		})
	}
}
