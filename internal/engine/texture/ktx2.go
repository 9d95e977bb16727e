package texture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// KTX2 errors.
var (
	ErrNotKTX2       = errors.New("not a KTX2 container")
	ErrKTX2Truncated = errors.New("truncated KTX2 data")
)

var ktx2Identifier = []byte{0xAB, 'K', 'T', 'X', ' ', '2', '0', 0xBB, '\r', '\n', 0x1A, '\n'}

// Supercompression schemes.
const (
	SupercompressionNone      = 0
	SupercompressionBasisLZ   = 1
	SupercompressionZstandard = 2
	SupercompressionZLIB      = 3
)

const (
	ktx2HeaderSize = 12 + 9*4
	ktx2IndexSize  = 4*4 + 2*8
)

// KTX2 is a parsed KTX2 container. Level payloads stay in their
// supercompressed form; transcoding happens on the GPU side.
type KTX2 struct {
	VkFormat               uint32
	TypeSize               uint32
	Width                  uint32
	Height                 uint32
	Depth                  uint32
	Layers                 uint32
	Faces                  uint32
	Supercompression       uint32
	Levels                 []KTX2Level
	DataFormatDescriptor   []byte
	KeyValueData           []byte
	SupercompressionGlobal []byte
}

// KTX2Level is one mip level.
type KTX2Level struct {
	Data                   []byte
	UncompressedByteLength uint64
}

type ktx2Header struct {
	VkFormat               uint32
	TypeSize               uint32
	PixelWidth             uint32
	PixelHeight            uint32
	PixelDepth             uint32
	LayerCount             uint32
	FaceCount              uint32
	LevelCount             uint32
	SupercompressionScheme uint32
	DFDByteOffset          uint32
	DFDByteLength          uint32
	KVDByteOffset          uint32
	KVDByteLength          uint32
	SGDByteOffset          uint64
	SGDByteLength          uint64
}

type ktx2LevelIndex struct {
	ByteOffset             uint64
	ByteLength             uint64
	UncompressedByteLength uint64
}

// IsKTX2 reports whether data starts with the KTX2 identifier.
func IsKTX2(data []byte) bool {
	return bytes.HasPrefix(data, ktx2Identifier)
}

// ParseKTX2 reads the container header, level index and metadata blocks.
func ParseKTX2(data []byte) (*KTX2, error) {
	if !IsKTX2(data) {
		return nil, ErrNotKTX2
	}
	if len(data) < ktx2HeaderSize+ktx2IndexSize {
		return nil, ErrKTX2Truncated
	}

	r := bytes.NewReader(data[len(ktx2Identifier):])
	var h ktx2Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrKTX2Truncated, err)
	}

	levels := h.LevelCount
	if levels == 0 {
		levels = 1
	}
	index := make([]ktx2LevelIndex, levels)
	if err := binary.Read(r, binary.LittleEndian, index); err != nil {
		return nil, fmt.Errorf("%w: level index: %v", ErrKTX2Truncated, err)
	}

	k := &KTX2{
		VkFormat:         h.VkFormat,
		TypeSize:         h.TypeSize,
		Width:            h.PixelWidth,
		Height:           h.PixelHeight,
		Depth:            h.PixelDepth,
		Layers:           h.LayerCount,
		Faces:            h.FaceCount,
		Supercompression: h.SupercompressionScheme,
	}

	var err error
	if k.DataFormatDescriptor, err = span(data, uint64(h.DFDByteOffset), uint64(h.DFDByteLength)); err != nil {
		return nil, fmt.Errorf("data format descriptor: %w", err)
	}
	if k.KeyValueData, err = span(data, uint64(h.KVDByteOffset), uint64(h.KVDByteLength)); err != nil {
		return nil, fmt.Errorf("key/value data: %w", err)
	}
	if k.SupercompressionGlobal, err = span(data, h.SGDByteOffset, h.SGDByteLength); err != nil {
		return nil, fmt.Errorf("supercompression data: %w", err)
	}

	for i, lvl := range index {
		payload, err := span(data, lvl.ByteOffset, lvl.ByteLength)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		k.Levels = append(k.Levels, KTX2Level{Data: payload, UncompressedByteLength: lvl.UncompressedByteLength})
	}
	return k, nil
}

func span(data []byte, offset, length uint64) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	end := offset + length
	if end < offset || end > uint64(len(data)) {
		return nil, ErrKTX2Truncated
	}
	return data[offset:end], nil
}
