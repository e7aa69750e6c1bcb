package metadata

// TableBuilder accumulates rows for a table stream about to be written.
// Rows use the same widened-uint32 column representation the TableReader
// produces. Index widths are decided only at serialization time, once every
// heap and row count is final.
type TableBuilder struct {
	rows   [TableCount][][]uint32
	sorted uint64

	// external supplies row counts of tables that live outside this
	// stream, such as the module's Method table when building a standalone
	// PDB. Index sizing must see those counts too.
	external func(Table) uint32
}

func NewTableBuilder(external func(Table) uint32) *TableBuilder {
	if external == nil {
		external = func(Table) uint32 { return 0 }
	}
	return &TableBuilder{external: external}
}

// RowCount returns the number of rows buffered for the table.
func (tb *TableBuilder) RowCount(t Table) uint32 {
	return uint32(len(tb.rows[t]))
}

// Append adds a row and returns its 1-based index.
func (tb *TableBuilder) Append(t Table, row []uint32) uint32 {
	tb.rows[t] = append(tb.rows[t], row)
	return uint32(len(tb.rows[t]))
}

// Resize fixes the table's row count up front; unset slots serialize as
// zero rows.
func (tb *TableBuilder) Resize(t Table, count uint32) {
	rows := make([][]uint32, count)
	copy(rows, tb.rows[t])
	tb.rows[t] = rows
}

// SetRow stores a row at a fixed 1-based slot, growing the table if needed.
func (tb *TableBuilder) SetRow(t Table, rid uint32, row []uint32) {
	for uint32(len(tb.rows[t])) < rid {
		tb.rows[t] = append(tb.rows[t], nil)
	}
	tb.rows[t][rid-1] = row
}

// MarkSorted records the table as sorted in the stream header bitmap.
func (tb *TableBuilder) MarkSorted(t Table) {
	tb.sorted |= 1 << uint(t)
}

// counts is the row-count view used for index sizing: buffered rows for
// stream tables, the external supplier for everything else.
func (tb *TableBuilder) counts(t Table) uint32 {
	if n := uint32(len(tb.rows[t])); n > 0 {
		return n
	}
	return tb.external(t)
}

func tableIndexSizeFor(count uint32) int {
	if count < 0x10000 {
		return 2
	}
	return 4
}

// Serialize emits the table stream: header, valid and sorted bitmaps, row
// counts, then the rows, 4-byte aligned. The heapSizes byte must reflect
// the final heap sizes.
func (tb *TableBuilder) Serialize(heapSizes byte) []byte {
	sizes := indexSizes{
		str:  heapIndexSize(heapSizes, 0x01),
		guid: heapIndexSize(heapSizes, 0x02),
		blob: heapIndexSize(heapSizes, 0x04),
		table: func(t Table) int {
			return tableIndexSizeFor(tb.counts(t))
		},
		coded: func(ci CodedIndex) int {
			return ci.Size(tb.counts)
		},
	}

	var valid uint64
	for t := Table(0); t < TableCount; t++ {
		if len(tb.rows[t]) > 0 {
			valid |= 1 << uint(t)
		}
	}

	b := NewBuffer(nil)
	b.WriteUint32(0) // reserved
	b.WriteByte(2)   // major version
	b.WriteByte(0)   // minor version
	b.WriteByte(heapSizes)
	b.WriteByte(1) // reserved
	b.WriteUint64(valid)
	b.WriteUint64(tb.sorted)
	for t := Table(0); t < TableCount; t++ {
		if valid&(1<<uint(t)) != 0 {
			b.WriteUint32(uint32(len(tb.rows[t])))
		}
	}

	for t := Table(0); t < TableCount; t++ {
		if valid&(1<<uint(t)) == 0 {
			continue
		}
		layout := tableLayouts[t]
		for _, row := range tb.rows[t] {
			for c, col := range layout {
				var v uint32
				if row != nil {
					v = row[c]
				}
				b.WriteIndex(v, sizes.column(col))
			}
		}
	}
	b.Align(4)
	return b.Bytes()
}
