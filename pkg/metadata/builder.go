package metadata

// Write-side heap builders. Each mirrors its reader byte for byte and
// deduplicates entries so repeated values share one index.

// StringHeapBuilder accumulates the #Strings stream.
type StringHeapBuilder struct {
	buf   *Buffer
	index map[string]uint32
}

func NewStringHeapBuilder() *StringHeapBuilder {
	b := &StringHeapBuilder{
		buf:   NewBuffer(nil),
		index: make(map[string]uint32),
	}
	b.buf.WriteByte(0)
	return b
}

// GetStringIndex interns a string and returns its heap index. The empty
// string is index 0.
func (b *StringHeapBuilder) GetStringIndex(s string) uint32 {
	if s == "" {
		return 0
	}
	if idx, ok := b.index[s]; ok {
		return idx
	}
	idx := uint32(b.buf.Len())
	b.buf.WriteZeroTerminatedString(s)
	b.index[s] = idx
	return idx
}

func (b *StringHeapBuilder) Size() int     { return b.buf.Len() }
func (b *StringHeapBuilder) Bytes() []byte { return b.buf.Bytes() }

// BlobHeapBuilder accumulates the #Blob stream.
type BlobHeapBuilder struct {
	buf   *Buffer
	index map[string]uint32
}

func NewBlobHeapBuilder() *BlobHeapBuilder {
	b := &BlobHeapBuilder{
		buf:   NewBuffer(nil),
		index: make(map[string]uint32),
	}
	b.buf.WriteByte(0)
	return b
}

// GetBlobIndex interns a blob and returns its heap index. The empty blob is
// index 0.
func (b *BlobHeapBuilder) GetBlobIndex(blob []byte) uint32 {
	if len(blob) == 0 {
		return 0
	}
	key := string(blob)
	if idx, ok := b.index[key]; ok {
		return idx
	}
	idx := uint32(b.buf.Len())
	b.buf.WriteCompressedUint32(uint32(len(blob)))
	b.buf.WriteBytes(blob)
	b.index[key] = idx
	return idx
}

func (b *BlobHeapBuilder) Size() int     { return b.buf.Len() }
func (b *BlobHeapBuilder) Bytes() []byte { return b.buf.Bytes() }

// GuidHeapBuilder accumulates the #GUID stream of 1-based 16-byte cells.
type GuidHeapBuilder struct {
	buf   *Buffer
	index map[GUID]uint32
}

func NewGuidHeapBuilder() *GuidHeapBuilder {
	return &GuidHeapBuilder{
		buf:   NewBuffer(nil),
		index: make(map[GUID]uint32),
	}
}

// GetGuidIndex interns a GUID and returns its 1-based heap index. The zero
// GUID is index 0.
func (b *GuidHeapBuilder) GetGuidIndex(g GUID) uint32 {
	if g.IsZero() {
		return 0
	}
	if idx, ok := b.index[g]; ok {
		return idx
	}
	raw := g.ToWindowsArray()
	b.buf.WriteBytes(raw[:])
	idx := uint32(b.buf.Len() / 16)
	b.index[g] = idx
	return idx
}

func (b *GuidHeapBuilder) Size() int     { return b.buf.Len() }
func (b *GuidHeapBuilder) Bytes() []byte { return b.buf.Bytes() }

// UserStringHeapBuilder accumulates the #US stream. The Portable PDB writer
// never adds entries, but the stream is still emitted for a well-formed
// image.
type UserStringHeapBuilder struct {
	buf *Buffer
}

func NewUserStringHeapBuilder() *UserStringHeapBuilder {
	b := &UserStringHeapBuilder{buf: NewBuffer(nil)}
	b.buf.WriteByte(0)
	return b
}

func (b *UserStringHeapBuilder) Size() int     { return b.buf.Len() }
func (b *UserStringHeapBuilder) Bytes() []byte { return b.buf.Bytes() }
