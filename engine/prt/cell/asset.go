package cell

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrInvalidAsset is returned (wrapped) when a persisted asset cannot be trusted: bad magic, unsupported version,
// truncated arrays, or a cell that fails Validate.
var ErrInvalidAsset = errors.New("invalid probe volume asset")

const (
	assetMagic   = "PRTC"
	assetVersion = 1

	flagHasValidData      = 1 << 0
	flagHasVirtualOffsets = 1 << 1

	// maxAssetRecords bounds every array count read from disk so a corrupt header cannot trigger a huge allocation.
	maxAssetRecords = 1 << 26
)

// Record sizes of the persisted layout, in bytes.
const (
	SurfelRecordSize        = 40 // 3 x float3 + float
	BrickRecordSize         = 8  // 2 x int32
	FactorRecordSize        = 8  // int32 + float32
	ProbeRecordSize         = 8  // 2 x int32
	ValidityRecordSize      = 4  // float32
	VirtualOffsetRecordSize = 12 // float3
)

// Asset is the persisted form of a baked probe volume. HasValidData gates whether Cell may be trusted; a decoded
// asset whose arrays fail validation is returned with HasValidData == false.
type Asset struct {
	HasValidData bool
	Cell         *Data

	// VirtualOffsets holds one bake-time placement offset per probe, or nil when virtual offset was disabled.
	VirtualOffsets []mgl32.Vec3
}

// Encode writes the asset in the little-endian layout:
//
//	magic "PRTC" | version u32 | flags u32 | brickSize f32 | surfels u32 | bricks u32 | factors u32 | probes u32
//	surfels  40 B each (position, normal, albedo float3, sky f32)
//	bricks    8 B each (start, count i32)
//	factors   8 B each (brick i32, weight f32)
//	probes    8 B each (start, end i32)
//	validity  4 B per probe
//	offsets  12 B per probe (only when flag bit 1 is set)
//
// Parameters:
//   - w: destination writer
//
// Returns:
//   - error: any write error
func (a *Asset) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)

	var flags uint32
	d := a.Cell
	valid := a.HasValidData && d != nil
	if valid {
		flags |= flagHasValidData
		if len(a.VirtualOffsets) == len(d.Probes) && len(a.VirtualOffsets) > 0 {
			flags |= flagHasVirtualOffsets
		}
	}

	header := make([]byte, 32)
	copy(header[0:4], assetMagic)
	binary.LittleEndian.PutUint32(header[4:8], assetVersion)
	binary.LittleEndian.PutUint32(header[8:12], flags)
	if valid {
		binary.LittleEndian.PutUint32(header[12:16], math.Float32bits(d.BrickSize))
		binary.LittleEndian.PutUint32(header[16:20], uint32(len(d.Surfels)))
		binary.LittleEndian.PutUint32(header[20:24], uint32(len(d.Bricks)))
		binary.LittleEndian.PutUint32(header[24:28], uint32(len(d.Factors)))
		binary.LittleEndian.PutUint32(header[28:32], uint32(len(d.Probes)))
	}
	if _, err := bw.Write(header); err != nil {
		return fmt.Errorf("failed to write asset header: %w", err)
	}
	if !valid {
		return bw.Flush()
	}

	buf := make([]byte, SurfelRecordSize)
	for _, s := range d.Surfels {
		putVec3(buf[0:12], s.Position)
		putVec3(buf[12:24], s.Normal)
		putVec3(buf[24:36], s.Albedo)
		binary.LittleEndian.PutUint32(buf[36:40], math.Float32bits(s.SkyMask))
		if _, err := bw.Write(buf[:SurfelRecordSize]); err != nil {
			return fmt.Errorf("failed to write surfels: %w", err)
		}
	}
	for _, b := range d.Bricks {
		binary.LittleEndian.PutUint32(buf[0:4], uint32(b.Start))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(b.Count))
		if _, err := bw.Write(buf[:BrickRecordSize]); err != nil {
			return fmt.Errorf("failed to write bricks: %w", err)
		}
	}
	for _, f := range d.Factors {
		binary.LittleEndian.PutUint32(buf[0:4], uint32(f.BrickIndex))
		binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(f.Weight))
		if _, err := bw.Write(buf[:FactorRecordSize]); err != nil {
			return fmt.Errorf("failed to write factors: %w", err)
		}
	}
	for _, p := range d.Probes {
		binary.LittleEndian.PutUint32(buf[0:4], uint32(p.Start))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(p.End))
		if _, err := bw.Write(buf[:ProbeRecordSize]); err != nil {
			return fmt.Errorf("failed to write probes: %w", err)
		}
	}
	for i := range d.Probes {
		var v float32
		if i < len(d.Validity) {
			v = d.Validity[i]
		}
		binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(v))
		if _, err := bw.Write(buf[:ValidityRecordSize]); err != nil {
			return fmt.Errorf("failed to write validity: %w", err)
		}
	}
	if flags&flagHasVirtualOffsets != 0 {
		for _, o := range a.VirtualOffsets {
			putVec3(buf[0:12], o)
			if _, err := bw.Write(buf[:VirtualOffsetRecordSize]); err != nil {
				return fmt.Errorf("failed to write virtual offsets: %w", err)
			}
		}
	}

	return bw.Flush()
}

// Decode reads an asset written by Encode. Structural problems inside otherwise readable arrays (ranges pointing
// outside their arrays, a short validity mask) do not fail the read: the asset is returned with HasValidData set
// to false and Cell cleared, together with an error wrapping ErrInvalidAsset so callers can log the reason.
//
// Parameters:
//   - r: source reader
//
// Returns:
//   - *Asset: the decoded asset, nil only when the stream itself is unreadable
//   - error: read or validation error
func Decode(r io.Reader) (*Asset, error) {
	br := bufio.NewReader(r)

	header := make([]byte, 32)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidAsset, err)
	}
	if string(header[0:4]) != assetMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrInvalidAsset, header[0:4])
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != assetVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidAsset, v)
	}
	flags := binary.LittleEndian.Uint32(header[8:12])
	if flags&flagHasValidData == 0 {
		return &Asset{}, nil
	}

	counts := [4]uint32{
		binary.LittleEndian.Uint32(header[16:20]),
		binary.LittleEndian.Uint32(header[20:24]),
		binary.LittleEndian.Uint32(header[24:28]),
		binary.LittleEndian.Uint32(header[28:32]),
	}
	for _, c := range counts {
		if c > maxAssetRecords {
			return nil, fmt.Errorf("%w: record count %d exceeds limit", ErrInvalidAsset, c)
		}
	}

	d := &Data{
		BrickSize: math.Float32frombits(binary.LittleEndian.Uint32(header[12:16])),
		Surfels:   make([]Surfel, counts[0]),
		Bricks:    make([]SurfelRange, counts[1]),
		Factors:   make([]BrickFactor, counts[2]),
		Probes:    make([]FactorRange, counts[3]),
		Validity:  make([]float32, counts[3]),
	}

	buf := make([]byte, SurfelRecordSize)
	for i := range d.Surfels {
		if _, err := io.ReadFull(br, buf[:SurfelRecordSize]); err != nil {
			return nil, fmt.Errorf("%w: surfel %d: %v", ErrInvalidAsset, i, err)
		}
		d.Surfels[i] = Surfel{
			Position: getVec3(buf[0:12]),
			Normal:   getVec3(buf[12:24]),
			Albedo:   getVec3(buf[24:36]),
			SkyMask:  math.Float32frombits(binary.LittleEndian.Uint32(buf[36:40])),
		}
	}
	for i := range d.Bricks {
		if _, err := io.ReadFull(br, buf[:BrickRecordSize]); err != nil {
			return nil, fmt.Errorf("%w: brick %d: %v", ErrInvalidAsset, i, err)
		}
		d.Bricks[i] = SurfelRange{
			Start: int32(binary.LittleEndian.Uint32(buf[0:4])),
			Count: int32(binary.LittleEndian.Uint32(buf[4:8])),
		}
	}
	for i := range d.Factors {
		if _, err := io.ReadFull(br, buf[:FactorRecordSize]); err != nil {
			return nil, fmt.Errorf("%w: factor %d: %v", ErrInvalidAsset, i, err)
		}
		d.Factors[i] = BrickFactor{
			BrickIndex: int32(binary.LittleEndian.Uint32(buf[0:4])),
			Weight:     math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
		}
	}
	for i := range d.Probes {
		if _, err := io.ReadFull(br, buf[:ProbeRecordSize]); err != nil {
			return nil, fmt.Errorf("%w: probe %d: %v", ErrInvalidAsset, i, err)
		}
		d.Probes[i] = FactorRange{
			Start: int32(binary.LittleEndian.Uint32(buf[0:4])),
			End:   int32(binary.LittleEndian.Uint32(buf[4:8])),
		}
	}
	for i := range d.Validity {
		if _, err := io.ReadFull(br, buf[:ValidityRecordSize]); err != nil {
			return nil, fmt.Errorf("%w: validity %d: %v", ErrInvalidAsset, i, err)
		}
		d.Validity[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4]))
	}

	a := &Asset{HasValidData: true, Cell: d}
	if flags&flagHasVirtualOffsets != 0 {
		a.VirtualOffsets = make([]mgl32.Vec3, counts[3])
		for i := range a.VirtualOffsets {
			if _, err := io.ReadFull(br, buf[:VirtualOffsetRecordSize]); err != nil {
				return nil, fmt.Errorf("%w: virtual offset %d: %v", ErrInvalidAsset, i, err)
			}
			a.VirtualOffsets[i] = getVec3(buf[0:12])
		}
	}

	if err := d.Validate(); err != nil {
		return &Asset{}, fmt.Errorf("%w: %v", ErrInvalidAsset, err)
	}
	return a, nil
}

func putVec3(dst []byte, v mgl32.Vec3) {
	binary.LittleEndian.PutUint32(dst[0:4], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(dst[4:8], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(dst[8:12], math.Float32bits(v[2]))
}

func getVec3(src []byte) mgl32.Vec3 {
	return mgl32.Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(src[0:4])),
		math.Float32frombits(binary.LittleEndian.Uint32(src[4:8])),
		math.Float32frombits(binary.LittleEndian.Uint32(src[8:12])),
	}
}
