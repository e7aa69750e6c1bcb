package pdb

import (
	"fmt"

	"github.com/Dmdv/cecil/pkg/metadata"
)

// Reader answers per-method debug queries against a Portable PDB image.
// The debug image is the module's own image when debug info is embedded.
// A Reader is single-threaded, like the images it wraps.
type Reader struct {
	module *metadata.Image
	image  *metadata.Image
	tables *metadata.TableReader
	docs   map[uint32]Document
}

// NewReader wraps a standalone PDB image for the given module. The reader
// takes ownership of the PDB image's stream.
func NewReader(module, pdbImage *metadata.Image) (*Reader, error) {
	return &Reader{
		module: module,
		image:  pdbImage,
		tables: metadata.NewTableReader(pdbImage),
		docs:   make(map[uint32]Document),
	}, nil
}

// NewEmbeddedReader reads debug tables out of the module's own metadata.
func NewEmbeddedReader(module *metadata.Image) *Reader {
	return &Reader{
		module: module,
		image:  module,
		tables: metadata.NewTableReader(module),
		docs:   make(map[uint32]Document),
	}
}

// IsEmbedded reports whether the debug tables live inside the module's own
// image.
func (r *Reader) IsEmbedded() bool {
	return r.image == r.module
}

// Close releases the PDB image's stream. When embedded, the stream belongs
// to the module image and closing the reader is a deliberate no-op.
func (r *Reader) Close() error {
	if r.IsEmbedded() {
		return nil
	}
	return r.image.Close()
}

// Read assembles the debug record of one method from four independent,
// order-insensitive lookups. A method with no debug data yields a record
// with empty fields, never an error.
func (r *Reader) Read(token MethodToken) (*MethodDebugInformation, error) {
	rid := token.RID()
	if rid == 0 {
		return nil, fmt.Errorf("invalid method token 0x%08x", uint32(token))
	}
	info := &MethodDebugInformation{Method: token}

	if err := r.readSequencePoints(info, rid); err != nil {
		return nil, err
	}
	if err := r.readScope(info, rid); err != nil {
		return nil, err
	}
	if err := r.readStateMachine(info, rid); err != nil {
		return nil, err
	}
	if err := r.readCustomInfos(info, rid); err != nil {
		return nil, err
	}
	return info, nil
}

func (r *Reader) document(rid uint32) (Document, error) {
	if doc, ok := r.docs[rid]; ok {
		return doc, nil
	}
	row, err := r.tables.Row(metadata.TableDocument, rid)
	if err != nil || row == nil {
		return Document{}, err
	}
	doc := Document{
		Name:          decodeDocumentName(r.image.Blobs, row[0]),
		HashAlgorithm: HashAlgorithmFromGUID(r.image.Guids.Read(row[1])),
		Hash:          r.image.Blobs.Read(row[2]),
		Language:      LanguageFromGUID(r.image.Guids.Read(row[3])),
	}
	r.docs[rid] = doc
	return doc, nil
}

// decodeDocumentName expands the document-name blob: a separator byte
// followed by one blob index per path part.
func decodeDocumentName(blobs *metadata.BlobHeap, index uint32) string {
	blob := blobs.Read(index)
	if len(blob) == 0 {
		return ""
	}
	b := metadata.NewBuffer(blob)
	separator := b.ReadByte()

	name := make([]byte, 0, 64)
	for first := true; b.Remaining() > 0; first = false {
		part := b.ReadCompressedUint32()
		if !first && separator != 0 {
			name = append(name, separator)
		}
		if part != 0 {
			name = append(name, blobs.Read(part)...)
		}
	}
	return string(name)
}

func (r *Reader) readSequencePoints(info *MethodDebugInformation, rid uint32) error {
	row, err := r.tables.Row(metadata.TableMethodDebugInformation, rid)
	if err != nil || row == nil {
		return err
	}
	blob := r.image.Blobs.Read(row[1])
	if len(blob) == 0 {
		return nil
	}

	b := metadata.NewBuffer(blob)
	info.LocalSignatureToken = b.ReadCompressedUint32()

	docRid := row[0]
	if docRid == 0 {
		docRid = b.ReadCompressedUint32()
	}
	doc, err := r.document(docRid)
	if err != nil {
		return err
	}

	offset, startLine, startColumn := 0, 0, 0
	first, firstLocation := true, true
	for b.Remaining() > 0 {
		delta := int(b.ReadCompressedUint32())
		if !first && delta == 0 {
			// Document switch record.
			docRid = b.ReadCompressedUint32()
			if doc, err = r.document(docRid); err != nil {
				return err
			}
			continue
		}
		first = false
		offset += delta

		deltaLines := int(b.ReadCompressedUint32())
		var deltaColumns int
		if deltaLines == 0 {
			deltaColumns = int(b.ReadCompressedUint32())
		} else {
			deltaColumns = int(b.ReadCompressedInt32())
		}

		if deltaLines == 0 && deltaColumns == 0 {
			info.SequencePoints = append(info.SequencePoints, SequencePoint{
				Offset:    offset,
				StartLine: HiddenLine,
				EndLine:   HiddenLine,
				Document:  doc,
			})
			continue
		}

		if firstLocation {
			startLine = int(b.ReadCompressedUint32())
			startColumn = int(b.ReadCompressedUint32())
			firstLocation = false
		} else {
			startLine += int(b.ReadCompressedInt32())
			startColumn += int(b.ReadCompressedInt32())
		}

		info.SequencePoints = append(info.SequencePoints, SequencePoint{
			Offset:      offset,
			StartLine:   startLine,
			StartColumn: startColumn,
			EndLine:     startLine + deltaLines,
			EndColumn:   startColumn + deltaColumns,
			Document:    doc,
		})
	}
	if err := b.Err(); err != nil {
		return fmt.Errorf("sequence points of method %d: %w", rid, err)
	}
	return nil
}

// readScope rebuilds the lexical scope tree. LocalScope rows are sorted by
// method, then start offset ascending, then length descending, so a parent
// always precedes its children and a stack reconstructs the nesting.
func (r *Reader) readScope(info *MethodDebugInformation, rid uint32) error {
	rows, err := r.tables.Rows(metadata.TableLocalScope)
	if err != nil || len(rows) == 0 {
		return err
	}

	var roots []*Scope
	var stack []*Scope
	for i, row := range rows {
		if row[0] != rid {
			continue
		}
		s := &Scope{
			StartOffset: int(row[4]),
			EndOffset:   int(row[4] + row[5]),
		}
		if err := r.readScopeSlots(s, rows, i); err != nil {
			return err
		}

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if s.StartOffset >= top.StartOffset && s.EndOffset <= top.EndOffset {
				break
			}
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, s)
		} else {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, s)
		}
		stack = append(stack, s)
	}

	switch len(roots) {
	case 0:
	case 1:
		info.Scope = roots[0]
	default:
		// Ill-formed but tolerated: wrap sibling top-level scopes.
		wrap := &Scope{
			StartOffset: roots[0].StartOffset,
			EndOffset:   roots[len(roots)-1].EndOffset,
			Children:    roots,
		}
		info.Scope = wrap
	}
	return nil
}

// readScopeSlots fills the variables and constants of the scope at table
// position i. The list columns span up to the next row's list start, or the
// end of the target table for the last row.
func (r *Reader) readScopeSlots(s *Scope, rows [][]uint32, i int) error {
	varEnd := r.image.TableLength(metadata.TableLocalVariable) + 1
	constEnd := r.image.TableLength(metadata.TableLocalConstant) + 1
	if i+1 < len(rows) {
		varEnd = rows[i+1][2]
		constEnd = rows[i+1][3]
	}

	for v := rows[i][2]; v < varEnd; v++ {
		row, err := r.tables.Row(metadata.TableLocalVariable, v)
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		s.Variables = append(s.Variables, Variable{
			Attributes: uint16(row[0]),
			Index:      uint16(row[1]),
			Name:       r.image.Strings.Read(row[2]),
		})
	}
	for c := rows[i][3]; c < constEnd; c++ {
		row, err := r.tables.Row(metadata.TableLocalConstant, c)
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		s.Constants = append(s.Constants, Constant{
			Name:      r.image.Strings.Read(row[0]),
			Signature: r.image.Blobs.Read(row[1]),
		})
	}
	return nil
}

func (r *Reader) readStateMachine(info *MethodDebugInformation, rid uint32) error {
	rows, err := r.tables.Rows(metadata.TableStateMachineMethod)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row[0] == rid {
			info.KickoffMethod = NewMethodToken(row[1])
			return nil
		}
	}
	return nil
}

func (r *Reader) readCustomInfos(info *MethodDebugInformation, rid uint32) error {
	rows, err := r.tables.Rows(metadata.TableCustomDebugInformation)
	if err != nil {
		return err
	}
	parent := metadata.HasCustomDebugInformation.Encode(metadata.TableMethod, rid)
	for _, row := range rows {
		if row[0] != parent {
			continue
		}
		info.CustomInfos = append(info.CustomInfos, CustomDebugInformation{
			Kind:  r.image.Guids.Read(row[1]),
			Value: r.image.Blobs.Read(row[2]),
		})
	}
	return nil
}
