package metadata

import (
	"encoding/binary"
	"fmt"
)

// Buffer is a positioned little-endian cursor over a byte slice. Reads move
// the position forward; writes append to the end of the slice. A read past
// the end sets a sticky error and yields zero values, so callers can decode
// a whole record and check Err once at the boundary.
type Buffer struct {
	data []byte
	pos  int
	err  error
}

func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

func (b *Buffer) Err() error      { return b.err }
func (b *Buffer) Bytes() []byte   { return b.data }
func (b *Buffer) Len() int        { return len(b.data) }
func (b *Buffer) Position() int   { return b.pos }
func (b *Buffer) Remaining() int  { return len(b.data) - b.pos }
func (b *Buffer) Seek(pos int)    { b.pos = pos }
func (b *Buffer) Advance(n int)   { b.pos += n }

func (b *Buffer) overrun(n int) bool {
	if b.err != nil {
		return true
	}
	if b.pos+n > len(b.data) {
		b.err = fmt.Errorf("read of %d bytes at offset %d overruns buffer of %d bytes", n, b.pos, len(b.data))
		return true
	}
	return false
}

func (b *Buffer) ReadByte() byte {
	if b.overrun(1) {
		return 0
	}
	v := b.data[b.pos]
	b.pos++
	return v
}

// ReadBytes returns a copy of the next n bytes.
func (b *Buffer) ReadBytes(n int) []byte {
	if n < 0 || b.overrun(n) {
		return nil
	}
	v := make([]byte, n)
	copy(v, b.data[b.pos:b.pos+n])
	b.pos += n
	return v
}

func (b *Buffer) ReadUint16() uint16 {
	if b.overrun(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(b.data[b.pos:])
	b.pos += 2
	return v
}

func (b *Buffer) ReadUint32() uint32 {
	if b.overrun(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(b.data[b.pos:])
	b.pos += 4
	return v
}

func (b *Buffer) ReadUint64() uint64 {
	if b.overrun(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(b.data[b.pos:])
	b.pos += 8
	return v
}

// ReadIndex reads a heap or table index of the given width (2 or 4 bytes).
func (b *Buffer) ReadIndex(size int) uint32 {
	if size == 4 {
		return b.ReadUint32()
	}
	return uint32(b.ReadUint16())
}

// ReadCompressedUint32 reads an ECMA-335 compressed unsigned integer
// (1, 2 or 4 bytes wide depending on the two top bits of the first byte).
func (b *Buffer) ReadCompressedUint32() uint32 {
	first := b.ReadByte()
	switch {
	case first&0x80 == 0:
		return uint32(first)
	case first&0x40 == 0:
		return uint32(first&0x3f)<<8 | uint32(b.ReadByte())
	default:
		v := uint32(first&0x3f) << 24
		v |= uint32(b.ReadByte()) << 16
		v |= uint32(b.ReadByte()) << 8
		v |= uint32(b.ReadByte())
		return v
	}
}

// ReadCompressedInt32 reads an ECMA-335 compressed signed integer. The sign
// bit is rotated into the least significant bit of the compressed value.
func (b *Buffer) ReadCompressedInt32() int32 {
	var width int
	if b.pos < len(b.data) {
		switch {
		case b.data[b.pos]&0x80 == 0:
			width = 1
		case b.data[b.pos]&0x40 == 0:
			width = 2
		default:
			width = 4
		}
	}
	u := b.ReadCompressedUint32()
	v := int32(u >> 1)
	if u&1 == 0 {
		return v
	}
	switch width {
	case 1:
		return v - 0x40
	case 2:
		return v - 0x2000
	default:
		return v - 0x20000000
	}
}

// ReadZeroTerminatedString reads a UTF-8 string up to its NUL terminator,
// consuming at most max bytes including the terminator. max < 0 means
// unbounded.
func (b *Buffer) ReadZeroTerminatedString(max int) string {
	start := b.pos
	end := len(b.data)
	if max >= 0 && start+max < end {
		end = start + max
	}
	for i := start; i < end; i++ {
		if b.data[i] == 0 {
			b.pos = i + 1
			return string(b.data[start:i])
		}
	}
	b.pos = end
	return string(b.data[start:end])
}

func (b *Buffer) WriteByte(v byte) {
	b.data = append(b.data, v)
}

func (b *Buffer) WriteBytes(v []byte) {
	b.data = append(b.data, v...)
}

func (b *Buffer) WriteUint16(v uint16) {
	b.data = binary.LittleEndian.AppendUint16(b.data, v)
}

func (b *Buffer) WriteUint32(v uint32) {
	b.data = binary.LittleEndian.AppendUint32(b.data, v)
}

func (b *Buffer) WriteUint64(v uint64) {
	b.data = binary.LittleEndian.AppendUint64(b.data, v)
}

// WriteIndex writes a heap or table index at the given width (2 or 4 bytes).
func (b *Buffer) WriteIndex(v uint32, size int) {
	if size == 4 {
		b.WriteUint32(v)
	} else {
		b.WriteUint16(uint16(v))
	}
}

// PatchUint32 overwrites a previously written 32-bit value in place.
func (b *Buffer) PatchUint32(offset int, v uint32) {
	binary.LittleEndian.PutUint32(b.data[offset:], v)
}

func (b *Buffer) WriteCompressedUint32(v uint32) {
	switch {
	case v < 0x80:
		b.WriteByte(byte(v))
	case v < 0x4000:
		b.WriteByte(byte(0x80 | v>>8))
		b.WriteByte(byte(v))
	default:
		b.WriteByte(byte(0xc0 | v>>24))
		b.WriteByte(byte(v >> 16))
		b.WriteByte(byte(v >> 8))
		b.WriteByte(byte(v))
	}
}

// WriteCompressedInt32 writes an ECMA-335 compressed signed integer. The
// width follows the signed value's range class, not the rotated bits: a
// negative value close to a class boundary rotates to a numerically small
// value that must still occupy the full width of its class.
func (b *Buffer) WriteCompressedInt32(v int32) {
	sign := uint32(v) >> 31
	switch {
	case v >= -0x40 && v < 0x40:
		b.WriteByte(byte((uint32(v)&0x3f)<<1 | sign))
	case v >= -0x2000 && v < 0x2000:
		u := (uint32(v)&0x1fff)<<1 | sign
		b.WriteByte(byte(0x80 | u>>8))
		b.WriteByte(byte(u))
	default:
		u := (uint32(v)&0x1fffffff)<<1 | sign
		b.WriteByte(byte(0xc0 | u>>24))
		b.WriteByte(byte(u >> 16))
		b.WriteByte(byte(u >> 8))
		b.WriteByte(byte(u))
	}
}

// WriteZeroTerminatedString writes a UTF-8 string followed by a NUL byte.
func (b *Buffer) WriteZeroTerminatedString(s string) {
	b.data = append(b.data, s...)
	b.data = append(b.data, 0)
}

// Align pads the written data with zero bytes up to the given boundary.
func (b *Buffer) Align(boundary int) {
	for len(b.data)%boundary != 0 {
		b.data = append(b.data, 0)
	}
}
