package pdb

import (
	"bytes"
	"compress/flate"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Dmdv/cecil/pkg/metadata"
)

const (
	// CodeViewSignature is the "RSDS" magic opening a PDB 7.0 CodeView
	// debug directory payload.
	CodeViewSignature = 0x53445352
	// EmbeddedSignature is the "MPDB" magic opening an embedded Portable
	// PDB debug directory payload (type 17).
	EmbeddedSignature = 0x4244504d

	codeViewRecordSize = 24
)

// ErrUnsupportedOutput is returned when a symbol-writer backend only
// supports file-based output and a raw stream was requested.
var ErrUnsupportedOutput = errors.New("pdb: symbol writer requires file-based output")

// CodeViewRecord is the decoded "RSDS" payload: the content identifier that
// binds a PDB to one specific build of its module.
type CodeViewRecord struct {
	ContentID metadata.GUID
	Age       uint32
	Path      string
}

// ReadCodeView decodes an RSDS payload. A short payload or a different
// magic is not an error; it just means this payload cannot identify a
// Portable PDB and the caller falls back to the unmatched state.
func ReadCodeView(payload []byte) (CodeViewRecord, bool) {
	if len(payload) < codeViewRecordSize {
		return CodeViewRecord{}, false
	}
	b := metadata.NewBuffer(payload)
	if b.ReadUint32() != CodeViewSignature {
		return CodeViewRecord{}, false
	}
	var raw [16]byte
	copy(raw[:], b.ReadBytes(16))
	rec := CodeViewRecord{
		ContentID: metadata.GUIDFromWindowsArray(raw),
		Age:       b.ReadUint32(),
		Path:      b.ReadZeroTerminatedString(-1),
	}
	return rec, true
}

// WriteCodeView encodes an RSDS payload: magic, 16-byte content identifier,
// age, then the NUL-terminated UTF-8 PDB path.
func WriteCodeView(rec CodeViewRecord) []byte {
	b := metadata.NewBuffer(nil)
	b.WriteUint32(CodeViewSignature)
	raw := rec.ContentID.ToWindowsArray()
	b.WriteBytes(raw[:])
	b.WriteUint32(rec.Age)
	b.WriteZeroTerminatedString(rec.Path)
	return b.Bytes()
}

// MatchesPayload implements the content-identity check of the matching
// protocol: the RSDS module GUID must equal the PDB's own content
// identifier byte for byte.
func MatchesPayload(payload []byte, pdbImage *metadata.Image) bool {
	rec, ok := ReadCodeView(payload)
	if !ok {
		return false
	}
	if pdbImage.Pdb == nil {
		return false
	}
	return rec.ContentID == pdbImage.Pdb.ContentID()
}

// Matches reports whether the candidate PDB belongs to the module. The
// same image object means the PDB is embedded and trivially matched.
func Matches(module, pdbImage *metadata.Image) bool {
	if module == pdbImage {
		return true
	}
	_, payload, err := module.DebugHeader()
	if err != nil {
		return false
	}
	return MatchesPayload(payload, pdbImage)
}

// ReadEmbeddedPortablePdb inflates an MPDB debug directory payload into an
// in-memory Portable PDB image. The image shares no file handle with the
// host, so closing it is always safe.
func ReadEmbeddedPortablePdb(payload []byte) (*metadata.Image, error) {
	if len(payload) < 8 {
		return nil, errors.New("embedded portable PDB payload too short")
	}
	b := metadata.NewBuffer(payload)
	if b.ReadUint32() != EmbeddedSignature {
		return nil, errors.New("invalid embedded portable PDB signature")
	}
	size := b.ReadUint32()
	fr := flate.NewReader(bytes.NewReader(payload[8:]))
	defer fr.Close()
	data, err := io.ReadAll(fr)
	if err != nil {
		return nil, fmt.Errorf("inflating embedded portable PDB: %w", err)
	}
	if uint32(len(data)) != size {
		return nil, fmt.Errorf("embedded portable PDB inflated to %d bytes, header says %d", len(data), size)
	}
	return metadata.ReadPortablePdb(data, "")
}

// ReaderFor selects a debug-store strategy for the module: debug tables
// embedded in the module's own metadata, an MPDB payload, or an external
// Portable PDB file. A nil reader with a nil error means no debug info is
// available, which is a normal state the caller proceeds without.
func ReaderFor(module *metadata.Image, pdbPath string) (*Reader, error) {
	if module.HasDebugTables() {
		return NewEmbeddedReader(module), nil
	}

	entries, err := module.DebugDirectoryEntries()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Type != metadata.DebugTypeEmbeddedPortablePdb {
			continue
		}
		img, err := ReadEmbeddedPortablePdb(e.Data)
		if err != nil {
			return nil, err
		}
		return NewReader(module, img)
	}

	if pdbPath == "" {
		pdbPath = defaultPdbPath(module.FileName)
	}
	data, err := os.ReadFile(pdbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) < 4 || metadata.NewBuffer(data).ReadUint32() != metadata.MetadataSignature {
		// Not a Portable PDB. A platform-native backend would take over
		// here; none is linked into this build, and "no reader available"
		// is a normal result rather than a failure.
		return nil, nil
	}
	img, err := metadata.ReadPortablePdb(data, pdbPath)
	if err != nil {
		return nil, err
	}
	if !Matches(module, img) {
		return nil, nil
	}
	return NewReader(module, img)
}

// WriterFor creates a standalone writer next to the module, or an embedded
// one when pdbPath is empty.
func WriterFor(module *metadata.Image, pdbPath string, contentID metadata.GUID, stamp uint32) *Writer {
	if pdbPath == "" {
		return NewEmbeddedWriter(module, contentID, stamp)
	}
	return NewWriter(module, pdbPath, contentID, stamp)
}

// NativeProvider stands in for the platform debug backend. No native
// backend is linked into this build: reader lookups report "no reader
// available" instead of failing, and the native writer can only ever
// target files.
type NativeProvider struct{}

// Reader always reports that no platform reader is available.
func (NativeProvider) Reader(module *metadata.Image, path string) (*Reader, error) {
	return nil, nil
}

// WriterTo is unsupported: native symbol backends write through OS APIs
// that take file paths, never raw streams.
func (NativeProvider) WriterTo(module *metadata.Image, w io.Writer) (*Writer, error) {
	return nil, ErrUnsupportedOutput
}

func defaultPdbPath(imagePath string) string {
	if dot := strings.LastIndexByte(imagePath, '.'); dot > strings.LastIndexByte(imagePath, '/') {
		return imagePath[:dot] + ".pdb"
	}
	return imagePath + ".pdb"
}
