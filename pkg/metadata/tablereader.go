package metadata

import "fmt"

// TableReader decodes rows out of an image's table stream. Rows are decoded
// lazily per table and cached; each row is the slice of its column values,
// widened to uint32, in layout order.
type TableReader struct {
	img     *Image
	sizes   indexSizes
	offsets [TableCount]int
	rows    [TableCount][][]uint32
	decoded [TableCount]bool
}

// NewTableReader binds a reader to the image's parsed table stream. Index
// widths are fixed by the stream header and the row counts, so they are
// computed once here.
func NewTableReader(img *Image) *TableReader {
	r := &TableReader{img: img}
	r.sizes = indexSizes{
		str:   heapIndexSize(img.heapSizes, 0x01),
		guid:  heapIndexSize(img.heapSizes, 0x02),
		blob:  heapIndexSize(img.heapSizes, 0x04),
		table: img.TableIndexSize,
		coded: img.CodedIndexSize,
	}

	// Row data is laid out in ascending table order; only tables in the
	// stream's valid bitmap occupy space. Referenced type-system tables of
	// a standalone PDB have row counts but no rows here.
	pos := 0
	for t := Table(0); t < TableCount; t++ {
		r.offsets[t] = pos
		if img.validTables&(1<<uint(t)) != 0 {
			pos += r.sizes.rowSize(t) * int(img.TableLength(t))
		}
	}
	return r
}

func heapIndexSize(heapSizes, bit byte) int {
	if heapSizes&bit != 0 {
		return 4
	}
	return 2
}

// Rows returns every row of the table. Tables absent from the stream yield
// nil.
func (r *TableReader) Rows(t Table) ([][]uint32, error) {
	if r.decoded[t] {
		return r.rows[t], nil
	}
	if r.img.validTables&(1<<uint(t)) == 0 {
		r.decoded[t] = true
		return nil, nil
	}

	count := int(r.img.TableLength(t))
	b := NewBuffer(r.img.tablesData)
	b.Seek(r.offsets[t])

	layout := tableLayouts[t]
	rows := make([][]uint32, count)
	for i := 0; i < count; i++ {
		row := make([]uint32, len(layout))
		for c, col := range layout {
			row[c] = b.ReadIndex(r.sizes.column(col))
		}
		rows[i] = row
	}
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("table 0x%02x: %w", uint8(t), err)
	}
	r.rows[t] = rows
	r.decoded[t] = true
	return rows, nil
}

// Row returns the 1-based row of the table, or nil when the index is out of
// range. Missing per-row data is an expected state, not an error.
func (r *TableReader) Row(t Table, rid uint32) ([]uint32, error) {
	rows, err := r.Rows(t)
	if err != nil {
		return nil, err
	}
	if rid == 0 || int(rid) > len(rows) {
		return nil, nil
	}
	return rows[rid-1], nil
}
