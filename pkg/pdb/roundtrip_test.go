package pdb

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/Dmdv/cecil/pkg/metadata"
)

var (
	testDocA = Document{
		Name:          "/home/src/a.cs",
		Language:      LanguageCSharp,
		HashAlgorithm: HashSHA256,
		Hash:          []byte{1, 2, 3, 4},
	}
	testDocB = Document{
		Name:          "/home/src/b.cs",
		Language:      LanguageCSharp,
		HashAlgorithm: HashSHA256,
		Hash:          []byte{5, 6, 7, 8},
	}
)

func buildTestWriter(t *testing.T) (*metadata.Image, *Writer) {
	t.Helper()
	module := metadata.NewImage("app.dll")
	module.SetTableLength(metadata.TableMethod, 4)
	module.EntryPointToken = 0x06000002

	contentID, err := metadata.GUIDFromString("fedcba98-7654-3210-fedc-ba9876543210")
	if err != nil {
		t.Fatal(err)
	}
	return module, NewWriter(module, "app.pdb", contentID, 0x64b1c2d3)
}

func writeAndReadBack(t *testing.T, module *metadata.Image, w *Writer) *Reader {
	t.Helper()
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	img, err := metadata.ReadPortablePdb(buf.Bytes(), "app.pdb")
	if err != nil {
		t.Fatal(err)
	}
	r, err := NewReader(module, img)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRoundTripSequencePoints(t *testing.T) {
	module, w := buildTestWriter(t)

	// Method 1 spans two documents and includes a hidden point.
	points := []SequencePoint{
		{Offset: 0, StartLine: 10, StartColumn: 5, EndLine: 10, EndColumn: 20, Document: testDocA},
		{Offset: 8, StartLine: HiddenLine, EndLine: HiddenLine, Document: testDocA},
		{Offset: 12, StartLine: 11, StartColumn: 1, EndLine: 13, EndColumn: 2, Document: testDocB},
		{Offset: 30, StartLine: 200, StartColumn: 9, EndLine: 200, EndColumn: 30, Document: testDocA},
	}
	if err := w.Write(&MethodDebugInformation{
		Method:              NewMethodToken(1),
		LocalSignatureToken: 0x11000001,
		SequencePoints:      points,
	}); err != nil {
		t.Fatal(err)
	}

	// Method 2 stays in one document.
	single := []SequencePoint{
		{Offset: 0, StartLine: 1, StartColumn: 0, EndLine: 1, EndColumn: 5, Document: testDocA},
		{Offset: 6, StartLine: 2, StartColumn: 0, EndLine: 2, EndColumn: 9, Document: testDocA},
	}
	if err := w.Write(&MethodDebugInformation{
		Method:         NewMethodToken(2),
		SequencePoints: single,
	}); err != nil {
		t.Fatal(err)
	}

	r := writeAndReadBack(t, module, w)
	defer r.Close()

	got, err := r.Read(NewMethodToken(1))
	if err != nil {
		t.Fatal(err)
	}
	if got.LocalSignatureToken != 0x11000001 {
		t.Errorf("LocalSignatureToken = 0x%x", got.LocalSignatureToken)
	}
	if !reflect.DeepEqual(got.SequencePoints, points) {
		t.Errorf("sequence points:\n got %+v\nwant %+v", got.SequencePoints, points)
	}

	got, err = r.Read(NewMethodToken(2))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.SequencePoints, single) {
		t.Errorf("single-document points:\n got %+v\nwant %+v", got.SequencePoints, single)
	}

	// Method 3 was never written; its record is empty, not an error.
	got, err = r.Read(NewMethodToken(3))
	if err != nil {
		t.Fatal(err)
	}
	if got.HasSequencePoints() || got.Scope != nil || got.KickoffMethod != 0 || got.CustomInfos != nil {
		t.Errorf("unwritten method came back non-empty: %+v", got)
	}
}

func TestRoundTripScopes(t *testing.T) {
	module, w := buildTestWriter(t)

	scope := &Scope{
		StartOffset: 0,
		EndOffset:   40,
		Variables: []Variable{
			{Attributes: 0, Index: 0, Name: "total"},
			{Attributes: 1, Index: 1, Name: "temp"},
		},
		Children: []*Scope{
			{
				StartOffset: 4,
				EndOffset:   16,
				Constants:   []Constant{{Name: "limit", Signature: []byte{0x08, 0x2a}}},
			},
			{
				StartOffset: 16,
				EndOffset:   36,
				Variables:   []Variable{{Attributes: 0, Index: 2, Name: "i"}},
				Children: []*Scope{
					{StartOffset: 20, EndOffset: 30, Variables: []Variable{{Index: 3, Name: "j"}}},
				},
			},
		},
	}
	if err := w.Write(&MethodDebugInformation{Method: NewMethodToken(1), Scope: scope}); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(&MethodDebugInformation{
		Method: NewMethodToken(4),
		Scope:  &Scope{StartOffset: 0, EndOffset: 8},
	}); err != nil {
		t.Fatal(err)
	}

	r := writeAndReadBack(t, module, w)
	defer r.Close()

	got, err := r.Read(NewMethodToken(1))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Scope, scope) {
		t.Errorf("scope tree:\n got %+v\nwant %+v", got.Scope, scope)
	}

	got, err = r.Read(NewMethodToken(4))
	if err != nil {
		t.Fatal(err)
	}
	if got.Scope == nil || got.Scope.StartOffset != 0 || got.Scope.EndOffset != 8 {
		t.Errorf("trailing method scope = %+v", got.Scope)
	}
}

func TestRoundTripStateMachineAndCustomInfos(t *testing.T) {
	module, w := buildTestWriter(t)

	kind, _ := metadata.GUIDFromString("54fd2ac5-e925-401a-9c2a-f94f171072f8")
	info := &MethodDebugInformation{
		Method:        NewMethodToken(3),
		KickoffMethod: NewMethodToken(1),
		CustomInfos: []CustomDebugInformation{
			{Kind: kind, Value: []byte("state machine hoisted locals")},
			{Kind: kind, Value: []byte{0xff, 0x00}},
		},
	}
	if err := w.Write(info); err != nil {
		t.Fatal(err)
	}

	r := writeAndReadBack(t, module, w)
	defer r.Close()

	got, err := r.Read(NewMethodToken(3))
	if err != nil {
		t.Fatal(err)
	}
	if got.KickoffMethod != NewMethodToken(1) {
		t.Errorf("KickoffMethod = 0x%08x", uint32(got.KickoffMethod))
	}
	if !reflect.DeepEqual(got.CustomInfos, info.CustomInfos) {
		t.Errorf("custom infos:\n got %+v\nwant %+v", got.CustomInfos, info.CustomInfos)
	}

	// Other methods must not pick up the custom rows.
	got, err = r.Read(NewMethodToken(1))
	if err != nil {
		t.Fatal(err)
	}
	if got.CustomInfos != nil || got.KickoffMethod != 0 {
		t.Errorf("method 1 leaked debug rows: %+v", got)
	}
}

func TestDocumentsDistinguishedByHash(t *testing.T) {
	module, w := buildTestWriter(t)

	// Two versions of the same file name, told apart only by their hash.
	docV1 := testDocA
	docV2 := testDocA
	docV2.Hash = []byte{9, 9, 9, 9}

	points := []SequencePoint{
		{Offset: 0, StartLine: 1, StartColumn: 0, EndLine: 1, EndColumn: 2, Document: docV1},
		{Offset: 4, StartLine: 3, StartColumn: 0, EndLine: 3, EndColumn: 2, Document: docV2},
	}
	if err := w.Write(&MethodDebugInformation{
		Method:         NewMethodToken(1),
		SequencePoints: points,
	}); err != nil {
		t.Fatal(err)
	}

	r := writeAndReadBack(t, module, w)
	defer r.Close()

	got, err := r.Read(NewMethodToken(1))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.SequencePoints, points) {
		t.Errorf("hash-distinguished documents:\n got %+v\nwant %+v", got.SequencePoints, points)
	}
	if bytes.Equal(got.SequencePoints[0].Document.Hash, got.SequencePoints[1].Document.Hash) {
		t.Error("the two document versions collapsed into one")
	}
}

func TestWriteOverwritesEarlierRecord(t *testing.T) {
	module, w := buildTestWriter(t)

	stale := []SequencePoint{{Offset: 0, StartLine: 1, EndLine: 1, EndColumn: 1, Document: testDocA}}
	final := []SequencePoint{{Offset: 0, StartLine: 99, StartColumn: 1, EndLine: 99, EndColumn: 7, Document: testDocB}}
	if err := w.Write(&MethodDebugInformation{Method: NewMethodToken(2), SequencePoints: stale}); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(&MethodDebugInformation{Method: NewMethodToken(2), SequencePoints: final}); err != nil {
		t.Fatal(err)
	}

	r := writeAndReadBack(t, module, w)
	defer r.Close()

	got, err := r.Read(NewMethodToken(2))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.SequencePoints, final) {
		t.Errorf("last write did not win:\n got %+v\nwant %+v", got.SequencePoints, final)
	}
}

func TestWriteRejectsUnknownMethod(t *testing.T) {
	_, w := buildTestWriter(t)
	if err := w.Write(&MethodDebugInformation{Method: NewMethodToken(0)}); err == nil {
		t.Error("token with RID 0 accepted")
	}
	if err := w.Write(&MethodDebugInformation{Method: NewMethodToken(5)}); err == nil {
		t.Error("token beyond the method table accepted")
	}
}

func TestPdbIdentityRoundTrip(t *testing.T) {
	module, w := buildTestWriter(t)
	r := writeAndReadBack(t, module, w)
	defer r.Close()

	img := r.image
	if img.Pdb.ContentID() != w.ContentID() {
		t.Errorf("content ID = %s, want %s", img.Pdb.ContentID(), w.ContentID())
	}
	if img.Pdb.Stamp() != w.Stamp() {
		t.Errorf("stamp = 0x%x, want 0x%x", img.Pdb.Stamp(), w.Stamp())
	}
	if img.EntryPointToken != module.EntryPointToken {
		t.Errorf("entry point = 0x%x, want 0x%x", img.EntryPointToken, module.EntryPointToken)
	}
	// The referenced type-system row counts travel through the #Pdb heap.
	if img.TableLength(metadata.TableMethod) != 4 {
		t.Errorf("method rows = %d, want 4", img.TableLength(metadata.TableMethod))
	}
}

func TestDebugHeaderForStandaloneWriter(t *testing.T) {
	_, w := buildTestWriter(t)
	dir, payload := w.DebugHeader()

	if dir.Type != metadata.DebugTypeCodeView {
		t.Errorf("Type = %d, want CodeView", dir.Type)
	}
	if dir.MajorVersion != 0x100 || dir.MinorVersion != 0x504d {
		t.Errorf("version = 0x%x.0x%x", dir.MajorVersion, dir.MinorVersion)
	}
	if dir.TimeDateStamp != w.Stamp() {
		t.Errorf("TimeDateStamp = 0x%x", dir.TimeDateStamp)
	}
	if dir.SizeOfData != uint32(len(payload)) {
		t.Errorf("SizeOfData = %d, payload is %d bytes", dir.SizeOfData, len(payload))
	}

	rec, ok := ReadCodeView(payload)
	if !ok {
		t.Fatal("header payload is not a CodeView record")
	}
	if rec.ContentID != w.ContentID() || rec.Age != 1 || rec.Path != "app.pdb" {
		t.Errorf("CodeView record = %+v", rec)
	}
}

func TestEmbeddedWriterAndReader(t *testing.T) {
	module := metadata.NewImage("app.dll")
	module.SetTableLength(metadata.TableMethod, 1)

	contentID, _ := metadata.GUIDFromString("fedcba98-7654-3210-fedc-ba9876543210")
	w := NewEmbeddedWriter(module, contentID, 1)
	if !w.IsEmbedded() {
		t.Fatal("embedded writer not reported as embedded")
	}
	if dir, payload := w.DebugHeader(); dir != (metadata.ImageDebugDirectory{}) || payload != nil {
		t.Error("embedded writer produced a debug directory record")
	}
	if err := w.Finish(); err != nil {
		t.Errorf("embedded Finish failed: %v", err)
	}

	r := NewEmbeddedReader(module)
	if !r.IsEmbedded() {
		t.Error("embedded reader not reported as embedded")
	}
	// Close must not touch the module's backing stream.
	if err := r.Close(); err != nil {
		t.Errorf("embedded Close failed: %v", err)
	}
}
