package metadata

import (
	"encoding/binary"
	"testing"
)

// buildTestModule assembles a minimal PE32+ image with one .text section
// holding a CLI header and a metadata root.
func buildTestModule(t *testing.T) []byte {
	t.Helper()

	strs := NewStringHeapBuilder()
	blobs := NewBlobHeapBuilder()
	guids := NewGuidHeapBuilder()
	us := NewUserStringHeapBuilder()

	mvid, _ := GUIDFromString("11111111-2222-3333-4444-555555555555")
	moduleName := strs.GetStringIndex("test.dll")
	methodName := strs.GetStringIndex("Main")
	methodSig := blobs.GetBlobIndex([]byte{0, 0, 1})

	tb := NewTableBuilder(nil)
	tb.Append(TableModule, []uint32{0, moduleName, guids.GetGuidIndex(mvid), 0, 0})
	tb.Append(TableMethod, []uint32{0x2050, 0, 0x16, methodName, methodSig, 1})

	root := WriteMetadataImage("v4.0.30319", []StreamData{
		{Name: "#~", Data: tb.Serialize(0)},
		{Name: "#Strings", Data: strs.Bytes()},
		{Name: "#US", Data: us.Bytes()},
		{Name: "#GUID", Data: guids.Bytes()},
		{Name: "#Blob", Data: blobs.Bytes()},
	})

	const (
		lfanew        = 0x80
		optionalStart = 0x98
		headerSize    = 0x200
		textRVA       = 0x2000
		cliHeaderSize = 72
		metadataRVA   = textRVA + cliHeaderSize
	)

	h := make([]byte, headerSize)
	put16 := func(off int, v uint16) { binary.LittleEndian.PutUint16(h[off:], v) }
	put32 := func(off int, v uint32) { binary.LittleEndian.PutUint32(h[off:], v) }

	h[0], h[1] = 'M', 'Z'
	put32(0x3c, lfanew)
	put32(lfanew, 0x00004550) // "PE\0\0"

	// File header.
	put16(lfanew+4, uint16(ArchAMD64))
	put16(lfanew+6, 1)          // section count
	put32(lfanew+8, 0x5c3f1e2d) // timestamp
	put16(lfanew+20, 240)       // optional header size
	put16(lfanew+22, 0x0002)    // executable, not a dll

	// Optional header (PE32+).
	put16(optionalStart, 0x020b)
	put16(optionalStart+68, 3)   // console subsystem
	put32(optionalStart+108, 16) // directory count
	put32(optionalStart+112+14*8, textRVA)
	put32(optionalStart+112+14*8+4, cliHeaderSize)

	// Section header.
	sec := optionalStart + 240
	copy(h[sec:], ".text")
	put32(sec+8, 0x1000)  // virtual size
	put32(sec+12, textRVA)
	put32(sec+16, uint32(cliHeaderSize+len(root))) // raw size
	put32(sec+20, headerSize)                      // raw pointer

	// CLI header at the start of .text.
	cli := make([]byte, cliHeaderSize)
	binary.LittleEndian.PutUint32(cli[0:], cliHeaderSize)
	binary.LittleEndian.PutUint16(cli[4:], 2)
	binary.LittleEndian.PutUint16(cli[6:], 5)
	binary.LittleEndian.PutUint32(cli[8:], metadataRVA)
	binary.LittleEndian.PutUint32(cli[12:], uint32(len(root)))
	binary.LittleEndian.PutUint32(cli[16:], 1)          // ILONLY
	binary.LittleEndian.PutUint32(cli[20:], 0x06000001) // entry point

	out := append(h, cli...)
	return append(out, root...)
}

func TestReadImage(t *testing.T) {
	data := buildTestModule(t)
	img, err := ReadImage(data, "test.dll")
	if err != nil {
		t.Fatal(err)
	}

	if img.Architecture != ArchAMD64 {
		t.Errorf("Architecture = 0x%04x", uint16(img.Architecture))
	}
	if img.Kind != KindConsole {
		t.Errorf("Kind = %d, want console", img.Kind)
	}
	if img.Timestamp != 0x5c3f1e2d {
		t.Errorf("Timestamp = 0x%08x", img.Timestamp)
	}
	if img.EntryPointToken != 0x06000001 {
		t.Errorf("EntryPointToken = 0x%08x", img.EntryPointToken)
	}
	if len(img.Sections) != 1 || img.Sections[0].Name != ".text" {
		t.Fatalf("Sections = %+v", img.Sections)
	}
	if img.MetadataSection != &img.Sections[0] {
		t.Error("MetadataSection does not point into Sections")
	}
	if img.TableLength(TableModule) != 1 || img.TableLength(TableMethod) != 1 {
		t.Fatalf("row counts: Module=%d Method=%d",
			img.TableLength(TableModule), img.TableLength(TableMethod))
	}

	r := NewTableReader(img)
	row, err := r.Row(TableMethod, 1)
	if err != nil {
		t.Fatal(err)
	}
	if row[0] != 0x2050 {
		t.Errorf("method RVA = 0x%x", row[0])
	}
	if got := img.Strings.Read(row[3]); got != "Main" {
		t.Errorf("method name = %q", got)
	}
	if img.HasDebugTables() {
		t.Error("module without debug tables reports HasDebugTables")
	}
}

func TestReadImageRejectsGarbage(t *testing.T) {
	if _, err := ReadImage([]byte("not a pe file at all"), "x"); err == nil {
		t.Error("garbage accepted as PE image")
	}

	// MZ magic but a broken e_lfanew.
	data := make([]byte, 0x40)
	data[0], data[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(data[0x3c:], 0xffffff)
	if _, err := ReadImage(data, "x"); err == nil {
		t.Error("bad e_lfanew accepted")
	}
}

func TestReadImageNativeOnly(t *testing.T) {
	data := buildTestModule(t)
	// Zero out the CLI data directory; the image becomes a native PE.
	binary.LittleEndian.PutUint32(data[0x98+112+14*8:], 0)
	binary.LittleEndian.PutUint32(data[0x98+112+14*8+4:], 0)

	img, err := ReadImage(data, "native.exe")
	if err != nil {
		t.Fatal(err)
	}
	if img.EntryPointToken != 0 {
		t.Errorf("native image has entry point token 0x%x", img.EntryPointToken)
	}
	if img.Strings != nil {
		t.Error("native image loaded metadata heaps")
	}
}
