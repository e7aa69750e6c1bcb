package metadata

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// ModuleKind is the flavor of PE container a module is packaged in.
type ModuleKind uint8

const (
	KindDll ModuleKind = iota
	KindConsole
	KindWindows
)

// TargetArchitecture mirrors the PE file header machine field.
type TargetArchitecture uint16

const (
	ArchI386  TargetArchitecture = 0x014c
	ArchARM   TargetArchitecture = 0x01c0
	ArchIA64  TargetArchitecture = 0x0200
	ArchAMD64 TargetArchitecture = 0x8664
	ArchARM64 TargetArchitecture = 0xaa64
)

// Section is a named, page-aligned region of the image. Immutable once the
// image is parsed or laid out.
type Section struct {
	Name             string
	VirtualAddress   uint32
	VirtualSize      uint32
	PointerToRawData uint32
	SizeOfRawData    uint32
}

// Contains reports whether the virtual address falls inside the section's
// mapped range.
func (s *Section) Contains(rva uint32) bool {
	return rva >= s.VirtualAddress && rva < s.VirtualAddress+s.SizeOfRawData
}

// DataDirectory locates one optional-header directory. A zero virtual
// address means the directory is absent.
type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

func (d DataDirectory) IsZero() bool {
	return d.VirtualAddress == 0
}

// ImageDebugDirectory is the fixed 28-byte record of one debug directory
// entry, in its exact on-disk field order.
type ImageDebugDirectory struct {
	Characteristics  uint32
	TimeDateStamp    uint32
	MajorVersion     uint16
	MinorVersion     uint16
	Type             uint32
	SizeOfData       uint32
	AddressOfRawData uint32
	PointerToRawData uint32
}

// ImageDebugDirectorySize is the serialized size of an ImageDebugDirectory.
const ImageDebugDirectorySize = 28

// Debug directory entry types this package understands.
const (
	DebugTypeCodeView            = 2
	DebugTypeEmbeddedPortablePdb = 17
)

// Image is the in-memory representation of one metadata container: its
// sections, data directories and heaps. An Image is single-threaded; the
// coded-index size cache is an unsynchronized field.
type Image struct {
	FileName        string
	Kind            ModuleKind
	Architecture    TargetArchitecture
	Characteristics uint16
	Timestamp       uint32
	EntryPointToken uint32

	Sections        []Section
	MetadataSection *Section

	Debug      DataDirectory
	Resources  DataDirectory
	StrongName DataDirectory

	Strings     *StringHeap
	Blobs       *BlobHeap
	UserStrings *UserStringHeap
	Guids       *GuidHeap
	Pdb         *PdbHeap

	data       []byte
	mapped     mmap.MMap
	file       *os.File
	ownsStream bool
	closed     bool

	heapSizes   byte
	tableRows   [TableCount]uint32
	validTables uint64
	sorted      uint64
	tablesData  []byte

	codedSizes map[CodedIndex]int
}

// NewImage returns an empty image to be populated programmatically, the way
// the writer path builds the module it is about to describe.
func NewImage(fileName string) *Image {
	return &Image{FileName: fileName}
}

// Open maps the file read-only and parses it as a PE/CLI image. The image
// owns the mapping and the file handle until Close.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	img, err := ReadImage(m, path)
	if err != nil {
		m.Unmap()
		f.Close()
		return nil, err
	}
	img.mapped = m
	img.file = f
	img.ownsStream = true
	return img, nil
}

// Close releases the backing store exactly once. It is a deliberate no-op
// when the image does not own its stream, which is the case for the shared
// image of an embedded PDB.
func (img *Image) Close() error {
	if !img.ownsStream || img.closed {
		return nil
	}
	img.closed = true
	if img.mapped != nil {
		if err := img.mapped.Unmap(); err != nil {
			img.file.Close()
			return err
		}
	}
	if img.file != nil {
		return img.file.Close()
	}
	return nil
}

// Data returns the raw bytes of the container.
func (img *Image) Data() []byte {
	return img.data
}

// SectionAtVirtualAddress returns the section covering the RVA, or nil.
// Section counts are small, so a linear scan is fine.
func (img *Image) SectionAtVirtualAddress(rva uint32) *Section {
	for i := range img.Sections {
		if img.Sections[i].Contains(rva) {
			return &img.Sections[i]
		}
	}
	return nil
}

// ResolveVirtualAddress translates an RVA to its file offset. An RVA with
// no covering section means the image structure is inconsistent and is a
// hard failure.
func (img *Image) ResolveVirtualAddress(rva uint32) (uint32, error) {
	s := img.SectionAtVirtualAddress(rva)
	if s == nil {
		return 0, fmt.Errorf("virtual address 0x%x is outside every section", rva)
	}
	return rva + s.PointerToRawData - s.VirtualAddress, nil
}

// ReaderAt returns a cursor positioned at the resolved file offset of the
// RVA, or nil when the RVA does not map to any section.
func (img *Image) ReaderAt(rva uint32) *Buffer {
	offset, err := img.ResolveVirtualAddress(rva)
	if err != nil {
		return nil
	}
	b := NewBuffer(img.data)
	b.Seek(int(offset))
	return b
}

// TableLength returns the row count of a table; zero means absent.
func (img *Image) TableLength(t Table) uint32 {
	return img.tableRows[t]
}

// HasTable reports whether a table has at least one row.
func (img *Image) HasTable(t Table) bool {
	return img.tableRows[t] > 0
}

// SetTableLength records a table's row count. Used when an image is being
// laid out rather than parsed.
func (img *Image) SetTableLength(t Table, rows uint32) {
	img.tableRows[t] = rows
	img.codedSizes = nil
}

// TableIndexSize returns the width of a plain row index into the table:
// 2 bytes while the row count fits in 16 bits, else 4. This rule is
// load-bearing for binary compatibility.
func (img *Image) TableIndexSize(t Table) int {
	if img.tableRows[t] < 0x10000 {
		return 2
	}
	return 4
}

// CodedIndexSize returns the width of a coded index, memoized per kind.
// Row counts are fixed once the tables are loaded or finalized, so the
// cache never needs invalidation within an image's lifetime.
func (img *Image) CodedIndexSize(ci CodedIndex) int {
	if size, ok := img.codedSizes[ci]; ok {
		return size
	}
	size := ci.Size(img.TableLength)
	if img.codedSizes == nil {
		img.codedSizes = make(map[CodedIndex]int)
	}
	img.codedSizes[ci] = size
	return size
}

// HasDebugTables reports whether the image's own metadata carries embedded
// Portable PDB tables.
func (img *Image) HasDebugTables() bool {
	for _, t := range debugTables {
		if img.HasTable(t) {
			return true
		}
	}
	return false
}

// DebugHeader reads the first debug directory record and its payload. An
// absent debug directory yields a zero record and no payload; that is the
// normal "no debug info attached" state, not an error.
func (img *Image) DebugHeader() (ImageDebugDirectory, []byte, error) {
	entries, err := img.DebugDirectoryEntries()
	if err != nil || len(entries) == 0 {
		return ImageDebugDirectory{}, nil, err
	}
	return entries[0].ImageDebugDirectory, entries[0].Data, nil
}

// DebugDirectoryEntry is one parsed debug directory record together with
// its raw payload.
type DebugDirectoryEntry struct {
	ImageDebugDirectory
	Data []byte
}

// DebugDirectoryEntries reads every record of the debug data directory.
func (img *Image) DebugDirectoryEntries() ([]DebugDirectoryEntry, error) {
	if img.Debug.IsZero() {
		return nil, nil
	}
	buf := img.ReaderAt(img.Debug.VirtualAddress)
	if buf == nil {
		return nil, fmt.Errorf("debug directory virtual address 0x%x is outside every section", img.Debug.VirtualAddress)
	}

	var entries []DebugDirectoryEntry
	for read := uint32(0); read+ImageDebugDirectorySize <= img.Debug.Size; read += ImageDebugDirectorySize {
		var dir ImageDebugDirectory
		dir.Characteristics = buf.ReadUint32()
		dir.TimeDateStamp = buf.ReadUint32()
		dir.MajorVersion = buf.ReadUint16()
		dir.MinorVersion = buf.ReadUint16()
		dir.Type = buf.ReadUint32()
		dir.SizeOfData = buf.ReadUint32()
		dir.AddressOfRawData = buf.ReadUint32()
		dir.PointerToRawData = buf.ReadUint32()
		if err := buf.Err(); err != nil {
			return nil, fmt.Errorf("truncated debug directory: %w", err)
		}

		entry := DebugDirectoryEntry{ImageDebugDirectory: dir}
		if dir.SizeOfData > 0 {
			offset := dir.PointerToRawData
			if dir.AddressOfRawData != 0 {
				if resolved, err := img.ResolveVirtualAddress(dir.AddressOfRawData); err == nil {
					offset = resolved
				}
			}
			if int(offset)+int(dir.SizeOfData) > len(img.data) {
				return nil, fmt.Errorf("debug data at 0x%x+%d overruns image", offset, dir.SizeOfData)
			}
			entry.Data = img.data[offset : offset+dir.SizeOfData]
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
