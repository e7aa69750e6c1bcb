package metadata

// StreamData is one named stream of a metadata image about to be written.
type StreamData struct {
	Name string
	Data []byte
}

// WriteMetadataImage lays out and serializes a physical metadata root:
// signature, version string, stream directory, then the stream bodies in
// order, each 4-byte aligned. A standalone Portable PDB file is exactly
// this image written at offset 0.
func WriteMetadataImage(version string, streams []StreamData) []byte {
	versionLength := aligned4(len(version) + 1)

	headerSize := 4 + 2 + 2 + 4 + 4 + versionLength + 2 + 2
	for _, s := range streams {
		headerSize += 8 + aligned4(len(s.Name)+1)
	}

	b := NewBuffer(nil)
	b.WriteUint32(MetadataSignature)
	b.WriteUint16(1) // major version
	b.WriteUint16(1) // minor version
	b.WriteUint32(0) // reserved
	b.WriteUint32(uint32(versionLength))
	b.WriteBytes([]byte(version))
	for i := len(version); i < versionLength; i++ {
		b.WriteByte(0)
	}
	b.WriteUint16(0) // flags
	b.WriteUint16(uint16(len(streams)))

	offset := headerSize
	for _, s := range streams {
		b.WriteUint32(uint32(offset))
		size := aligned4(len(s.Data))
		b.WriteUint32(uint32(size))
		b.WriteBytes([]byte(s.Name))
		for i := len(s.Name); i < aligned4(len(s.Name)+1); i++ {
			b.WriteByte(0)
		}
		offset += size
	}

	for _, s := range streams {
		b.WriteBytes(s.Data)
		b.Align(4)
	}
	return b.Bytes()
}

func aligned4(n int) int {
	return (n + 3) &^ 3
}
