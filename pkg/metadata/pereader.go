package metadata

import (
	"errors"
	"fmt"
	"log"
)

const (
	dosSignature          = 0x5a4d     // "MZ"
	ntSignature           = 0x00004550 // "PE\0\0"
	optionalHeader32Magic = 0x010b
	optionalHeader64Magic = 0x020b

	numberOfDirectoryEntries = 16

	characteristicsDll = 0x2000

	subsystemWindowsGui = 2
	subsystemWindowsCui = 3
)

// ReadImage parses a PE/CLI container from raw bytes. The returned image
// does not own a backing stream; use Open to read from a file.
func ReadImage(data []byte, fileName string) (*Image, error) {
	img := &Image{FileName: fileName, data: data}
	b := NewBuffer(data)

	if b.ReadUint16() != dosSignature {
		return nil, errors.New("DOS header magic not found")
	}
	b.Seek(0x3c)
	lfanew := b.ReadUint32()
	if int(lfanew) > len(data) {
		return nil, errors.New("invalid e_lfanew value, probably not a PE file")
	}

	b.Seek(int(lfanew))
	if b.ReadUint32() != ntSignature {
		return nil, errors.New("invalid NT headers signature")
	}

	// File header.
	img.Architecture = TargetArchitecture(b.ReadUint16())
	sectionCount := b.ReadUint16()
	img.Timestamp = b.ReadUint32()
	b.Advance(8) // symbol table pointer and symbol count
	optionalHeaderSize := b.ReadUint16()
	img.Characteristics = b.ReadUint16()

	// Optional header. Only the fields the metadata model needs are pulled
	// out; everything else is skipped by offset.
	optionalStart := b.Position()
	magic := b.ReadUint16()
	var pe64 bool
	switch magic {
	case optionalHeader32Magic:
	case optionalHeader64Magic:
		pe64 = true
	default:
		return nil, errors.New("no optional header found - invalid PE32 or PE32+ file")
	}

	b.Seek(optionalStart + 68)
	subsystem := b.ReadUint16()
	switch {
	case img.Characteristics&characteristicsDll != 0:
		img.Kind = KindDll
	case subsystem == subsystemWindowsGui:
		img.Kind = KindWindows
	default:
		img.Kind = KindConsole
	}

	dirCountOffset := optionalStart + 92
	if pe64 {
		dirCountOffset = optionalStart + 108
	}
	b.Seek(dirCountOffset)
	dirCount := b.ReadUint32()
	if dirCount > numberOfDirectoryEntries {
		log.Printf("Suspicious NumberOfRvaAndSizes in the Optional Header. Normal values are never larger than 16, the value is: 0x%x", dirCount)
		dirCount = numberOfDirectoryEntries
	}

	var dirs [numberOfDirectoryEntries]DataDirectory
	for i := uint32(0); i < dirCount; i++ {
		dirs[i].VirtualAddress = b.ReadUint32()
		dirs[i].Size = b.ReadUint32()
	}
	img.Resources = dirs[2]
	img.Debug = dirs[6]
	cli := dirs[14]

	// Section headers.
	b.Seek(optionalStart + int(optionalHeaderSize))
	for i := uint16(0); i < sectionCount; i++ {
		var s Section
		name := b.ReadBytes(8)
		for n, c := range name {
			if c == 0 {
				name = name[:n]
				break
			}
		}
		s.Name = string(name)
		s.VirtualSize = b.ReadUint32()
		s.VirtualAddress = b.ReadUint32()
		s.SizeOfRawData = b.ReadUint32()
		s.PointerToRawData = b.ReadUint32()
		b.Advance(16) // relocations, line numbers, characteristics
		img.Sections = append(img.Sections, s)
	}
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("truncated PE headers: %w", err)
	}

	if cli.IsZero() {
		// A plain native image; no metadata to load.
		return img, nil
	}

	// CLI header.
	cliBuf := img.ReaderAt(cli.VirtualAddress)
	if cliBuf == nil {
		return nil, fmt.Errorf("CLI header virtual address 0x%x is outside every section", cli.VirtualAddress)
	}
	cliBuf.Advance(8) // cb, runtime versions
	metadataDir := DataDirectory{VirtualAddress: cliBuf.ReadUint32(), Size: cliBuf.ReadUint32()}
	cliBuf.Advance(4) // flags
	img.EntryPointToken = cliBuf.ReadUint32()
	img.Resources = DataDirectory{VirtualAddress: cliBuf.ReadUint32(), Size: cliBuf.ReadUint32()}
	img.StrongName = DataDirectory{VirtualAddress: cliBuf.ReadUint32(), Size: cliBuf.ReadUint32()}
	if err := cliBuf.Err(); err != nil {
		return nil, fmt.Errorf("truncated CLI header: %w", err)
	}

	metadataOffset, err := img.ResolveVirtualAddress(metadataDir.VirtualAddress)
	if err != nil {
		return nil, fmt.Errorf("metadata directory: %w", err)
	}
	img.MetadataSection = img.SectionAtVirtualAddress(metadataDir.VirtualAddress)

	if err := readMetadataRoot(img, int(metadataOffset)); err != nil {
		return nil, err
	}
	return img, nil
}
