// Package pdb reads and writes Portable PDB debug symbols: standalone .pdb
// files, debug tables embedded in a module's own metadata, and MPDB
// compressed payloads, together with the debug-directory protocol that
// matches a symbol store to its owning image.
package pdb

import "github.com/Dmdv/cecil/pkg/metadata"

// MethodToken is a metadata token for a row of the MethodDef table.
type MethodToken uint32

// NewMethodToken builds a MethodDef token from a 1-based row index.
func NewMethodToken(rid uint32) MethodToken {
	return MethodToken(0x06000000 | rid&0x00ffffff)
}

// RID returns the 1-based row index part of the token.
func (t MethodToken) RID() uint32 {
	return uint32(t) & 0x00ffffff
}

// HiddenLine marks a sequence point that has no source location; debuggers
// step over such points.
const HiddenLine = 0xfeefee

// SequencePoint maps an IL offset to a source location.
type SequencePoint struct {
	Offset      int
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
	Document    Document
}

// IsHidden reports whether the point carries no source location.
func (sp SequencePoint) IsHidden() bool {
	return sp.StartLine == HiddenLine
}

// Document identifies one source document referenced by sequence points.
type Document struct {
	Name          string
	Language      Language
	HashAlgorithm HashAlgorithm
	Hash          []byte
}

// Variable is a local variable slot owned by a lexical scope.
type Variable struct {
	Attributes uint16
	Index      uint16
	Name       string
}

// Constant is a local constant owned by a lexical scope. The signature blob
// encodes the constant's type and value.
type Constant struct {
	Name      string
	Signature []byte
}

// Scope is one node of a method's lexical scope tree. Offsets are IL
// offsets; EndOffset is exclusive.
type Scope struct {
	StartOffset int
	EndOffset   int
	Variables   []Variable
	Constants   []Constant
	Children    []*Scope
}

// CustomDebugInformation is an opaque debug blob attached to a method,
// identified by its kind GUID.
type CustomDebugInformation struct {
	Kind  metadata.GUID
	Value []byte
}

// MethodDebugInformation is everything the symbol store knows about one
// compiled method. A method with no debug data is represented by empty
// fields, never by an error. Records returned by a Reader are not mutated
// afterwards.
type MethodDebugInformation struct {
	Method              MethodToken
	LocalSignatureToken uint32
	SequencePoints      []SequencePoint
	Scope               *Scope
	KickoffMethod       MethodToken
	CustomInfos         []CustomDebugInformation
}

// HasSequencePoints reports whether any sequence points were recorded.
func (m *MethodDebugInformation) HasSequencePoints() bool {
	return len(m.SequencePoints) > 0
}
