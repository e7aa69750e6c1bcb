package metadata

import (
	"fmt"
	"unicode/utf16"
)

// StringHeap is the #Strings stream: NUL-terminated UTF-8 strings addressed
// by byte offset. Index 0 is the empty string.
type StringHeap struct {
	data []byte
}

func NewStringHeap(data []byte) *StringHeap {
	return &StringHeap{data: data}
}

func (h *StringHeap) Read(index uint32) string {
	if h == nil || index == 0 || int(index) >= len(h.data) {
		return ""
	}
	b := NewBuffer(h.data)
	b.Seek(int(index))
	return b.ReadZeroTerminatedString(-1)
}

// BlobHeap is the #Blob stream: compressed-length-prefixed byte runs
// addressed by byte offset. Index 0 is the empty blob.
type BlobHeap struct {
	data []byte
}

func NewBlobHeap(data []byte) *BlobHeap {
	return &BlobHeap{data: data}
}

func (h *BlobHeap) Read(index uint32) []byte {
	if h == nil || index == 0 || int(index) >= len(h.data) {
		return nil
	}
	b := NewBuffer(h.data)
	b.Seek(int(index))
	length := b.ReadCompressedUint32()
	return b.ReadBytes(int(length))
}

// UserStringHeap is the #US stream: compressed-length-prefixed UTF-16
// strings with a trailing kind byte.
type UserStringHeap struct {
	data []byte
}

func NewUserStringHeap(data []byte) *UserStringHeap {
	return &UserStringHeap{data: data}
}

func (h *UserStringHeap) Read(index uint32) string {
	if h == nil || index == 0 || int(index) >= len(h.data) {
		return ""
	}
	b := NewBuffer(h.data)
	b.Seek(int(index))
	length := b.ReadCompressedUint32()
	raw := b.ReadBytes(int(length &^ 1))
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = uint16(raw[i*2]) | uint16(raw[i*2+1])<<8
	}
	return string(utf16.Decode(units))
}

// GuidHeap is the #GUID stream: a dense array of 16-byte GUIDs addressed by
// 1-based cell index. Index 0 means "no GUID".
type GuidHeap struct {
	data []byte
}

func NewGuidHeap(data []byte) *GuidHeap {
	return &GuidHeap{data: data}
}

func (h *GuidHeap) Read(index uint32) GUID {
	if h == nil || index == 0 || int(index)*16 > len(h.data) {
		return GUID{}
	}
	var raw [16]byte
	copy(raw[:], h.data[(index-1)*16:])
	return GUIDFromWindowsArray(raw)
}

// PdbHeap is the #Pdb stream of a standalone Portable PDB image: a 20-byte
// content identifier, the owning module's entry-point token, and the row
// counts of the type-system tables the debug tables reference.
type PdbHeap struct {
	ID               [20]byte
	EntryPoint       uint32
	TypeSystemTables uint64
	RowCounts        []uint32
}

func ReadPdbHeap(data []byte) (*PdbHeap, error) {
	b := NewBuffer(data)
	h := new(PdbHeap)
	copy(h.ID[:], b.ReadBytes(20))
	h.EntryPoint = b.ReadUint32()
	h.TypeSystemTables = b.ReadUint64()
	for i := 0; i < 64; i++ {
		if h.TypeSystemTables&(1<<uint(i)) != 0 {
			h.RowCounts = append(h.RowCounts, b.ReadUint32())
		}
	}
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("truncated #Pdb stream: %w", err)
	}
	return h, nil
}

// ContentID returns the 16-byte module identity part of the PDB id.
func (h *PdbHeap) ContentID() GUID {
	var raw [16]byte
	copy(raw[:], h.ID[:16])
	return GUIDFromWindowsArray(raw)
}

// Stamp returns the timestamp part of the PDB id.
func (h *PdbHeap) Stamp() uint32 {
	return uint32(h.ID[16]) | uint32(h.ID[17])<<8 | uint32(h.ID[18])<<16 | uint32(h.ID[19])<<24
}
