package metadata

import (
	"errors"
	"fmt"
)

// MetadataSignature is the "BSJB" magic that opens every physical metadata
// root, and the first 4 bytes of a standalone Portable PDB file.
const MetadataSignature = 0x424a5342

// ReadPortablePdb parses a standalone Portable PDB image: a bare metadata
// root at offset 0 with a #Pdb stream carrying the content identifier and
// the row counts of the referenced type-system tables.
func ReadPortablePdb(data []byte, fileName string) (*Image, error) {
	img := &Image{FileName: fileName, data: data}
	if err := readMetadataRoot(img, 0); err != nil {
		return nil, err
	}
	if img.Pdb == nil {
		return nil, errors.New("portable PDB image has no #Pdb stream")
	}
	img.EntryPointToken = img.Pdb.EntryPoint
	i := 0
	for t := 0; t < 64; t++ {
		if img.Pdb.TypeSystemTables&(1<<uint(t)) == 0 {
			continue
		}
		if t < TableCount && i < len(img.Pdb.RowCounts) {
			img.tableRows[t] = img.Pdb.RowCounts[i]
		}
		i++
	}
	return img, nil
}

// readMetadataRoot parses the BSJB stream directory at the given file
// offset and attaches the heaps and table row counts to the image.
func readMetadataRoot(img *Image, offset int) error {
	b := NewBuffer(img.data)
	b.Seek(offset)

	if b.ReadUint32() != MetadataSignature {
		return errors.New("invalid metadata root signature")
	}
	b.Advance(8) // major, minor, reserved
	versionLength := b.ReadUint32()
	b.Advance(int(versionLength)) // stored length includes padding
	b.Advance(2)                  // flags
	streamCount := b.ReadUint16()
	if err := b.Err(); err != nil {
		return fmt.Errorf("truncated metadata root: %w", err)
	}

	var tablesData []byte
	for i := uint16(0); i < streamCount; i++ {
		streamOffset := b.ReadUint32()
		streamSize := b.ReadUint32()
		nameStart := b.Position()
		name := b.ReadZeroTerminatedString(32)
		consumed := b.Position() - nameStart
		b.Advance((4 - consumed%4) % 4)
		if err := b.Err(); err != nil {
			return fmt.Errorf("truncated stream directory: %w", err)
		}

		start := offset + int(streamOffset)
		end := start + int(streamSize)
		if start > end || end > len(img.data) {
			return fmt.Errorf("stream %q at 0x%x+%d overruns image", name, start, streamSize)
		}
		data := img.data[start:end]

		switch name {
		case "#~", "#-":
			tablesData = data
		case "#Strings":
			img.Strings = NewStringHeap(data)
		case "#US":
			img.UserStrings = NewUserStringHeap(data)
		case "#GUID":
			img.Guids = NewGuidHeap(data)
		case "#Blob":
			img.Blobs = NewBlobHeap(data)
		case "#Pdb":
			heap, err := ReadPdbHeap(data)
			if err != nil {
				return err
			}
			img.Pdb = heap
		}
	}

	if tablesData != nil {
		return readTableStream(img, tablesData)
	}
	return nil
}

// readTableStream parses the table stream header, records the row counts
// for every present table, and keeps the raw row data for lazy decoding.
func readTableStream(img *Image, data []byte) error {
	b := NewBuffer(data)
	b.Advance(4) // reserved
	b.Advance(2) // major/minor version
	img.heapSizes = b.ReadByte()
	b.Advance(1) // reserved
	img.validTables = b.ReadUint64()
	img.sorted = b.ReadUint64()

	for t := 0; t < 64; t++ {
		if img.validTables&(1<<uint(t)) == 0 {
			continue
		}
		rows := b.ReadUint32()
		if t >= TableCount {
			return fmt.Errorf("table stream declares unknown table 0x%x", t)
		}
		img.tableRows[t] = rows
	}
	if err := b.Err(); err != nil {
		return fmt.Errorf("truncated table stream header: %w", err)
	}
	img.tablesData = data[b.Position():]
	return nil
}
