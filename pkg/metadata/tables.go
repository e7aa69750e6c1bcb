package metadata

// Table identifies a metadata table by its ECMA-335 number. The 0x30 range
// holds the Portable PDB debug tables.
type Table uint8

const (
	TableModule                 Table = 0x00
	TableTypeRef                Table = 0x01
	TableTypeDef                Table = 0x02
	TableFieldPtr               Table = 0x03
	TableField                  Table = 0x04
	TableMethodPtr              Table = 0x05
	TableMethod                 Table = 0x06
	TableParamPtr               Table = 0x07
	TableParam                  Table = 0x08
	TableInterfaceImpl          Table = 0x09
	TableMemberRef              Table = 0x0a
	TableConstant               Table = 0x0b
	TableCustomAttribute        Table = 0x0c
	TableFieldMarshal           Table = 0x0d
	TableDeclSecurity           Table = 0x0e
	TableClassLayout            Table = 0x0f
	TableFieldLayout            Table = 0x10
	TableStandAloneSig          Table = 0x11
	TableEventMap               Table = 0x12
	TableEventPtr               Table = 0x13
	TableEvent                  Table = 0x14
	TablePropertyMap            Table = 0x15
	TablePropertyPtr            Table = 0x16
	TableProperty               Table = 0x17
	TableMethodSemantics        Table = 0x18
	TableMethodImpl             Table = 0x19
	TableModuleRef              Table = 0x1a
	TableTypeSpec               Table = 0x1b
	TableImplMap                Table = 0x1c
	TableFieldRVA               Table = 0x1d
	TableEncLog                 Table = 0x1e
	TableEncMap                 Table = 0x1f
	TableAssembly               Table = 0x20
	TableAssemblyProcessor      Table = 0x21
	TableAssemblyOS             Table = 0x22
	TableAssemblyRef            Table = 0x23
	TableAssemblyRefProcessor   Table = 0x24
	TableAssemblyRefOS          Table = 0x25
	TableFile                   Table = 0x26
	TableExportedType           Table = 0x27
	TableManifestResource       Table = 0x28
	TableNestedClass            Table = 0x29
	TableGenericParam           Table = 0x2a
	TableMethodSpec             Table = 0x2b
	TableGenericParamConstraint Table = 0x2c

	TableDocument               Table = 0x30
	TableMethodDebugInformation Table = 0x31
	TableLocalScope             Table = 0x32
	TableLocalVariable          Table = 0x33
	TableLocalConstant          Table = 0x34
	TableImportScope            Table = 0x35
	TableStateMachineMethod     Table = 0x36
	TableCustomDebugInformation Table = 0x37

	// TableCount is the number of table slots, including the gap at 0x2d-0x2f.
	TableCount = 0x38
)

// debugTables are the tables whose presence marks embedded Portable PDB
// metadata inside a module's own table stream.
var debugTables = []Table{
	TableDocument,
	TableMethodDebugInformation,
	TableLocalScope,
	TableLocalVariable,
	TableLocalConstant,
	TableStateMachineMethod,
	TableCustomDebugInformation,
}

// CodedIndex identifies a compact row reference that multiplexes a fixed
// union of tables into one integer. The low bits carry the table tag, the
// rest the row index.
type CodedIndex uint8

const (
	TypeDefOrRef CodedIndex = iota
	HasConstant
	HasCustomAttribute
	HasFieldMarshal
	HasDeclSecurity
	MemberRefParent
	HasSemantics
	MethodDefOrRef
	MemberForwarded
	Implementation
	CustomAttributeType
	ResolutionScope
	TypeOrMethodDef
	HasCustomDebugInformation
)

type codedIndexInfo struct {
	bits   uint
	tables []Table
}

var codedIndexes = map[CodedIndex]codedIndexInfo{
	TypeDefOrRef: {2, []Table{TableTypeDef, TableTypeRef, TableTypeSpec}},
	HasConstant:  {2, []Table{TableField, TableParam, TableProperty}},
	HasCustomAttribute: {5, []Table{
		TableMethod, TableField, TableTypeRef, TableTypeDef, TableParam,
		TableInterfaceImpl, TableMemberRef, TableModule, TableDeclSecurity,
		TableProperty, TableEvent, TableStandAloneSig, TableModuleRef,
		TableTypeSpec, TableAssembly, TableAssemblyRef, TableFile,
		TableExportedType, TableManifestResource, TableGenericParam,
		TableGenericParamConstraint, TableMethodSpec,
	}},
	HasFieldMarshal: {1, []Table{TableField, TableParam}},
	HasDeclSecurity: {2, []Table{TableTypeDef, TableMethod, TableAssembly}},
	MemberRefParent: {3, []Table{TableTypeDef, TableTypeRef, TableModuleRef, TableMethod, TableTypeSpec}},
	HasSemantics:    {1, []Table{TableEvent, TableProperty}},
	MethodDefOrRef:  {1, []Table{TableMethod, TableMemberRef}},
	MemberForwarded: {1, []Table{TableField, TableMethod}},
	Implementation:  {2, []Table{TableFile, TableAssemblyRef, TableExportedType}},
	CustomAttributeType: {3, []Table{
		// Tags 0, 1 and 4 are unused by the format.
		0xff, 0xff, TableMethod, TableMemberRef, 0xff,
	}},
	ResolutionScope: {2, []Table{TableModule, TableModuleRef, TableAssemblyRef, TableTypeRef}},
	TypeOrMethodDef: {1, []Table{TableTypeDef, TableMethod}},
	HasCustomDebugInformation: {5, []Table{
		TableMethod, TableField, TableTypeRef, TableTypeDef, TableParam,
		TableInterfaceImpl, TableMemberRef, TableModule, TableDeclSecurity,
		TableProperty, TableEvent, TableStandAloneSig, TableModuleRef,
		TableTypeSpec, TableAssembly, TableAssemblyRef, TableFile,
		TableExportedType, TableManifestResource, TableGenericParam,
		TableGenericParamConstraint, TableMethodSpec, TableDocument,
		TableLocalScope, TableLocalVariable, TableLocalConstant,
		TableImportScope,
	}},
}

const invalidTable = Table(0xff)

// Size computes the encoding width of the coded index: 4 bytes as soon as
// any table in the union needs a 4-byte row index, else 2. counts yields
// the current row count of a table.
func (ci CodedIndex) Size(counts func(Table) uint32) int {
	info := codedIndexes[ci]
	for _, t := range info.tables {
		if t == invalidTable {
			continue
		}
		if counts(t) >= 0x10000 {
			return 4
		}
	}
	return 2
}

// Encode packs a (table, row) reference into the coded integer form.
func (ci CodedIndex) Encode(t Table, rid uint32) uint32 {
	info := codedIndexes[ci]
	for tag, candidate := range info.tables {
		if candidate == t {
			return rid<<info.bits | uint32(tag)
		}
	}
	return 0
}

// Decode unpacks a coded integer into its (table, row) reference. A zero
// row index means a null reference.
func (ci CodedIndex) Decode(v uint32) (Table, uint32) {
	info := codedIndexes[ci]
	tag := v & (1<<info.bits - 1)
	if int(tag) >= len(info.tables) {
		return invalidTable, 0
	}
	return info.tables[tag], v >> info.bits
}

// Column kinds of a table row. Only widths matter for tables this package
// does not decode; the debug tables are decoded column by column.
type columnKind uint8

const (
	colUint16 columnKind = iota
	colUint32
	colString // string heap index
	colGUID   // GUID heap index
	colBlob   // blob heap index
	colTable  // row index into a fixed table
	colCoded  // coded index
)

type column struct {
	kind  columnKind
	table Table
	coded CodedIndex
}

func u16() column             { return column{kind: colUint16} }
func u32() column             { return column{kind: colUint32} }
func str() column             { return column{kind: colString} }
func guid() column            { return column{kind: colGUID} }
func blob() column            { return column{kind: colBlob} }
func tbl(t Table) column      { return column{kind: colTable, table: t} }
func cdx(c CodedIndex) column { return column{kind: colCoded, coded: c} }

// tableLayouts describes the column shape of every table. The layouts drive
// row sizing for all tables and row codecs for the debug tables.
var tableLayouts = [TableCount][]column{
	TableModule:          {u16(), str(), guid(), guid(), guid()},
	TableTypeRef:         {cdx(ResolutionScope), str(), str()},
	TableTypeDef:         {u32(), str(), str(), cdx(TypeDefOrRef), tbl(TableField), tbl(TableMethod)},
	TableFieldPtr:        {tbl(TableField)},
	TableField:           {u16(), str(), blob()},
	TableMethodPtr:       {tbl(TableMethod)},
	TableMethod:          {u32(), u16(), u16(), str(), blob(), tbl(TableParam)},
	TableParamPtr:        {tbl(TableParam)},
	TableParam:           {u16(), u16(), str()},
	TableInterfaceImpl:   {tbl(TableTypeDef), cdx(TypeDefOrRef)},
	TableMemberRef:       {cdx(MemberRefParent), str(), blob()},
	TableConstant:        {u16(), cdx(HasConstant), blob()},
	TableCustomAttribute: {cdx(HasCustomAttribute), cdx(CustomAttributeType), blob()},
	TableFieldMarshal:    {cdx(HasFieldMarshal), blob()},
	TableDeclSecurity:    {u16(), cdx(HasDeclSecurity), blob()},
	TableClassLayout:     {u16(), u32(), tbl(TableTypeDef)},
	TableFieldLayout:     {u32(), tbl(TableField)},
	TableStandAloneSig:   {blob()},
	TableEventMap:        {tbl(TableTypeDef), tbl(TableEvent)},
	TableEventPtr:        {tbl(TableEvent)},
	TableEvent:           {u16(), str(), cdx(TypeDefOrRef)},
	TablePropertyMap:     {tbl(TableTypeDef), tbl(TableProperty)},
	TablePropertyPtr:     {tbl(TableProperty)},
	TableProperty:        {u16(), str(), blob()},
	TableMethodSemantics: {u16(), tbl(TableMethod), cdx(HasSemantics)},
	TableMethodImpl:      {tbl(TableTypeDef), cdx(MethodDefOrRef), cdx(MethodDefOrRef)},
	TableModuleRef:       {str()},
	TableTypeSpec:        {blob()},
	TableImplMap:         {u16(), cdx(MemberForwarded), str(), tbl(TableModuleRef)},
	TableFieldRVA:        {u32(), tbl(TableField)},
	TableEncLog:          {u32(), u32()},
	TableEncMap:          {u32()},
	TableAssembly:        {u32(), u16(), u16(), u16(), u16(), u32(), blob(), str(), str()},
	TableAssemblyProcessor: {u32()},
	TableAssemblyOS:        {u32(), u32(), u32()},
	TableAssemblyRef:       {u16(), u16(), u16(), u16(), u32(), blob(), str(), str(), blob()},
	TableAssemblyRefProcessor: {u32(), tbl(TableAssemblyRef)},
	TableAssemblyRefOS:        {u32(), u32(), u32(), tbl(TableAssemblyRef)},
	TableFile:                 {u32(), str(), blob()},
	TableExportedType:         {u32(), u32(), str(), str(), cdx(Implementation)},
	TableManifestResource:     {u32(), u32(), str(), cdx(Implementation)},
	TableNestedClass:          {tbl(TableTypeDef), tbl(TableTypeDef)},
	TableGenericParam:         {u16(), u16(), cdx(TypeOrMethodDef), str()},
	TableMethodSpec:           {cdx(MethodDefOrRef), blob()},
	TableGenericParamConstraint: {tbl(TableGenericParam), cdx(TypeDefOrRef)},

	TableDocument:               {blob(), guid(), blob(), guid()},
	TableMethodDebugInformation: {tbl(TableDocument), blob()},
	TableLocalScope:             {tbl(TableMethod), tbl(TableImportScope), tbl(TableLocalVariable), tbl(TableLocalConstant), u32(), u32()},
	TableLocalVariable:          {u16(), u16(), str()},
	TableLocalConstant:          {str(), blob()},
	TableImportScope:            {tbl(TableImportScope), blob()},
	TableStateMachineMethod:     {tbl(TableMethod), tbl(TableMethod)},
	TableCustomDebugInformation: {cdx(HasCustomDebugInformation), guid(), blob()},
}

// indexSizes carries the heap and table index widths in effect while
// encoding or decoding rows of one table stream.
type indexSizes struct {
	str   int
	guid  int
	blob  int
	table func(Table) int
	coded func(CodedIndex) int
}

func (s *indexSizes) column(c column) int {
	switch c.kind {
	case colUint16:
		return 2
	case colUint32:
		return 4
	case colString:
		return s.str
	case colGUID:
		return s.guid
	case colBlob:
		return s.blob
	case colTable:
		return s.table(c.table)
	default:
		return s.coded(c.coded)
	}
}

func (s *indexSizes) rowSize(t Table) int {
	total := 0
	for _, c := range tableLayouts[t] {
		total += s.column(c)
	}
	return total
}
