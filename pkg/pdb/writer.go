package pdb

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Dmdv/cecil/pkg/metadata"
)

// Writer accumulates per-method debug records and serializes them as a
// Portable PDB metadata image. Records may arrive in any method order;
// writing the same method twice replaces the earlier record. Nothing is
// encoded until the image is serialized, so index widths always reflect the
// final heap and table sizes.
type Writer struct {
	module    *metadata.Image
	path      string
	contentID metadata.GUID
	stamp     uint32
	embedded  bool

	methods map[uint32]*MethodDebugInformation
}

// NewWriter creates a writer that targets a standalone .pdb file.
func NewWriter(module *metadata.Image, path string, contentID metadata.GUID, stamp uint32) *Writer {
	return &Writer{
		module:    module,
		path:      path,
		contentID: contentID,
		stamp:     stamp,
		methods:   make(map[uint32]*MethodDebugInformation),
	}
}

// NewEmbeddedWriter creates a writer whose debug tables will be merged into
// the module's own metadata instead of a separate file.
func NewEmbeddedWriter(module *metadata.Image, contentID metadata.GUID, stamp uint32) *Writer {
	w := NewWriter(module, "", contentID, stamp)
	w.embedded = true
	return w
}

// IsEmbedded reports whether the writer targets the module's own metadata.
func (w *Writer) IsEmbedded() bool {
	return w.embedded
}

// ContentID returns the identity this writer stamps into the PDB and its
// CodeView record.
func (w *Writer) ContentID() metadata.GUID {
	return w.contentID
}

// Stamp returns the timestamp half of the PDB identity.
func (w *Writer) Stamp() uint32 {
	return w.stamp
}

// Write records the debug information of one method. The token must name a
// row of the module's Method table.
func (w *Writer) Write(info *MethodDebugInformation) error {
	rid := info.Method.RID()
	if rid == 0 || rid > w.module.TableLength(metadata.TableMethod) {
		return fmt.Errorf("method token 0x%08x is outside the module's method table", uint32(info.Method))
	}
	w.methods[rid] = info
	return nil
}

// DebugHeader returns the debug directory record and CodeView payload the
// host image must carry to claim this PDB. An embedded writer needs no
// directory entry and returns a zero record.
func (w *Writer) DebugHeader() (metadata.ImageDebugDirectory, []byte) {
	if w.embedded {
		return metadata.ImageDebugDirectory{}, nil
	}
	payload := WriteCodeView(CodeViewRecord{
		ContentID: w.contentID,
		Age:       1,
		Path:      w.path,
	})
	dir := metadata.ImageDebugDirectory{
		TimeDateStamp: w.stamp,
		MajorVersion:  0x100,
		MinorVersion:  0x504d,
		Type:          metadata.DebugTypeCodeView,
		SizeOfData:    uint32(len(payload)),
	}
	return dir, payload
}

// WriteTo serializes the Portable PDB image to the stream.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	data, err := w.buildImage()
	if err != nil {
		return 0, err
	}
	n, err := out.Write(data)
	return int64(n), err
}

// Finish writes the standalone .pdb file. It is a no-op for an embedded
// writer; the host image writer picks the tables up through WriteTo.
func (w *Writer) Finish() error {
	if w.embedded {
		return nil
	}
	f, err := os.Create(w.path)
	if err != nil {
		return err
	}
	if _, err := w.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type documentKey struct {
	name      string
	language  Language
	algorithm HashAlgorithm
	hash      string
}

// pdbSerializer owns the heaps and tables of one serialization pass.
type pdbSerializer struct {
	strings *metadata.StringHeapBuilder
	blobs   *metadata.BlobHeapBuilder
	guids   *metadata.GuidHeapBuilder
	us      *metadata.UserStringHeapBuilder
	tables  *metadata.TableBuilder

	documents map[documentKey]uint32
}

func (w *Writer) buildImage() ([]byte, error) {
	s := &pdbSerializer{
		strings:   metadata.NewStringHeapBuilder(),
		blobs:     metadata.NewBlobHeapBuilder(),
		guids:     metadata.NewGuidHeapBuilder(),
		us:        metadata.NewUserStringHeapBuilder(),
		tables:    metadata.NewTableBuilder(w.module.TableLength),
		documents: make(map[documentKey]uint32),
	}

	methodCount := w.module.TableLength(metadata.TableMethod)
	s.tables.Resize(metadata.TableMethodDebugInformation, methodCount)

	for rid := uint32(1); rid <= methodCount; rid++ {
		info := w.methods[rid]
		if info == nil {
			continue
		}
		if err := s.writeMethod(rid, info); err != nil {
			return nil, err
		}
	}

	s.tables.MarkSorted(metadata.TableLocalScope)
	s.tables.MarkSorted(metadata.TableStateMachineMethod)
	s.tables.MarkSorted(metadata.TableCustomDebugInformation)

	var heapSizes byte
	if s.strings.Size() > 0xffff {
		heapSizes |= 0x01
	}
	if s.guids.Size()/16 > 0xffff {
		heapSizes |= 0x02
	}
	if s.blobs.Size() > 0xffff {
		heapSizes |= 0x04
	}

	streams := []metadata.StreamData{
		{Name: "#Pdb", Data: w.pdbStream()},
		{Name: "#~", Data: s.tables.Serialize(heapSizes)},
		{Name: "#Strings", Data: s.strings.Bytes()},
		{Name: "#US", Data: s.us.Bytes()},
		{Name: "#GUID", Data: s.guids.Bytes()},
		{Name: "#Blob", Data: s.blobs.Bytes()},
	}
	return metadata.WriteMetadataImage("PDB v1.0", streams), nil
}

// pdbStream builds the #Pdb heap: the 20-byte identity, the module's entry
// point, then the row counts of every type-system table the module defines.
func (w *Writer) pdbStream() []byte {
	b := metadata.NewBuffer(nil)
	raw := w.contentID.ToWindowsArray()
	b.WriteBytes(raw[:])
	b.WriteUint32(w.stamp)
	b.WriteUint32(w.module.EntryPointToken)

	var referenced uint64
	for t := metadata.Table(0); t < metadata.TableDocument; t++ {
		if w.module.TableLength(t) > 0 {
			referenced |= 1 << uint(t)
		}
	}
	b.WriteUint64(referenced)
	for t := metadata.Table(0); t < metadata.TableDocument; t++ {
		if referenced&(1<<uint(t)) != 0 {
			b.WriteUint32(w.module.TableLength(t))
		}
	}
	return b.Bytes()
}

func (s *pdbSerializer) writeMethod(rid uint32, info *MethodDebugInformation) error {
	if err := s.writeSequencePoints(rid, info); err != nil {
		return err
	}
	if info.Scope != nil {
		s.writeScope(rid, info.Scope)
	}
	if info.KickoffMethod != 0 {
		s.tables.Append(metadata.TableStateMachineMethod, []uint32{rid, info.KickoffMethod.RID()})
	}
	for _, ci := range info.CustomInfos {
		s.tables.Append(metadata.TableCustomDebugInformation, []uint32{
			metadata.HasCustomDebugInformation.Encode(metadata.TableMethod, rid),
			s.guids.GetGuidIndex(ci.Kind),
			s.blobs.GetBlobIndex(ci.Value),
		})
	}
	return nil
}

func (s *pdbSerializer) writeSequencePoints(rid uint32, info *MethodDebugInformation) error {
	if !info.HasSequencePoints() {
		s.tables.SetRow(metadata.TableMethodDebugInformation, rid, []uint32{0, 0})
		return nil
	}
	points := info.SequencePoints

	// A method confined to one document records it in the table row; a
	// method spanning documents records 0 there and switches inline.
	currentDoc := s.documentRid(points[0].Document)
	singleDocument := true
	for _, sp := range points[1:] {
		if s.documentRid(sp.Document) != currentDoc {
			singleDocument = false
			break
		}
	}
	b := metadata.NewBuffer(nil)
	b.WriteCompressedUint32(info.LocalSignatureToken)

	docColumn := currentDoc
	if !singleDocument {
		docColumn = 0
		b.WriteCompressedUint32(currentDoc)
	}

	offset, startLine, startColumn := 0, 0, 0
	firstLocation := true
	for i, sp := range points {
		if doc := s.documentRid(sp.Document); doc != currentDoc {
			b.WriteCompressedUint32(0)
			b.WriteCompressedUint32(doc)
			currentDoc = doc
		}

		delta := sp.Offset - offset
		if i == 0 {
			delta = sp.Offset
		} else if delta <= 0 {
			return fmt.Errorf("method %d: sequence point offsets must be strictly increasing", rid)
		}
		b.WriteCompressedUint32(uint32(delta))
		offset = sp.Offset

		if sp.IsHidden() {
			b.WriteCompressedUint32(0)
			b.WriteCompressedUint32(0)
			continue
		}

		deltaLines := sp.EndLine - sp.StartLine
		deltaColumns := sp.EndColumn - sp.StartColumn
		b.WriteCompressedUint32(uint32(deltaLines))
		if deltaLines == 0 {
			b.WriteCompressedUint32(uint32(deltaColumns))
		} else {
			b.WriteCompressedInt32(int32(deltaColumns))
		}

		if firstLocation {
			b.WriteCompressedUint32(uint32(sp.StartLine))
			b.WriteCompressedUint32(uint32(sp.StartColumn))
			firstLocation = false
		} else {
			b.WriteCompressedInt32(int32(sp.StartLine - startLine))
			b.WriteCompressedInt32(int32(sp.StartColumn - startColumn))
		}
		startLine = sp.StartLine
		startColumn = sp.StartColumn
	}

	s.tables.SetRow(metadata.TableMethodDebugInformation, rid, []uint32{
		docColumn,
		s.blobs.GetBlobIndex(b.Bytes()),
	})
	return nil
}

// writeScope flattens the scope tree pre-order, so every parent row precedes
// its children with start offsets ascending.
func (s *pdbSerializer) writeScope(rid uint32, scope *Scope) {
	variableList := s.tables.RowCount(metadata.TableLocalVariable) + 1
	constantList := s.tables.RowCount(metadata.TableLocalConstant) + 1

	for _, v := range scope.Variables {
		s.tables.Append(metadata.TableLocalVariable, []uint32{
			uint32(v.Attributes),
			uint32(v.Index),
			s.strings.GetStringIndex(v.Name),
		})
	}
	for _, c := range scope.Constants {
		s.tables.Append(metadata.TableLocalConstant, []uint32{
			s.strings.GetStringIndex(c.Name),
			s.blobs.GetBlobIndex(c.Signature),
		})
	}

	s.tables.Append(metadata.TableLocalScope, []uint32{
		rid,
		0, // import scope
		variableList,
		constantList,
		uint32(scope.StartOffset),
		uint32(scope.EndOffset - scope.StartOffset),
	})

	for _, child := range scope.Children {
		s.writeScope(rid, child)
	}
}

// documentRid interns a document and returns its 1-based Document table row.
func (s *pdbSerializer) documentRid(doc Document) uint32 {
	key := documentKey{doc.Name, doc.Language, doc.HashAlgorithm, string(doc.Hash)}
	if rid, ok := s.documents[key]; ok {
		return rid
	}
	rid := s.tables.Append(metadata.TableDocument, []uint32{
		s.blobs.GetBlobIndex(encodeDocumentName(s.blobs, doc.Name)),
		s.guids.GetGuidIndex(doc.HashAlgorithm.GUID()),
		s.blobs.GetBlobIndex(doc.Hash),
		s.guids.GetGuidIndex(doc.Language.GUID()),
	})
	s.documents[key] = rid
	return rid
}

// encodeDocumentName builds the document-name blob: a separator byte
// followed by the blob index of each path part.
func encodeDocumentName(blobs *metadata.BlobHeapBuilder, name string) []byte {
	separator := byte('/')
	if strings.ContainsRune(name, '\\') && !strings.ContainsRune(name, '/') {
		separator = '\\'
	}

	b := metadata.NewBuffer(nil)
	b.WriteByte(separator)
	for _, part := range strings.Split(name, string(separator)) {
		b.WriteCompressedUint32(blobs.GetBlobIndex([]byte(part)))
	}
	return b.Bytes()
}
