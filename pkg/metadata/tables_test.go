package metadata

import (
	"reflect"
	"testing"
)

func TestCodedIndexEncodeDecode(t *testing.T) {
	v := HasCustomDebugInformation.Encode(TableMethod, 7)
	table, rid := HasCustomDebugInformation.Decode(v)
	if table != TableMethod || rid != 7 {
		t.Errorf("Decode(Encode(Method, 7)) = (0x%02x, %d)", uint8(table), rid)
	}

	// CustomAttributeType has holes in its tag space.
	v = CustomAttributeType.Encode(TableMemberRef, 3)
	table, rid = CustomAttributeType.Decode(v)
	if table != TableMemberRef || rid != 3 {
		t.Errorf("Decode(Encode(MemberRef, 3)) = (0x%02x, %d)", uint8(table), rid)
	}
	if table, _ := CustomAttributeType.Decode(0); table != invalidTable {
		t.Errorf("unused tag decoded to table 0x%02x", uint8(table))
	}
}

func TestCodedIndexSizeRule(t *testing.T) {
	small := func(Table) uint32 { return 100 }
	if got := HasCustomDebugInformation.Size(small); got != 2 {
		t.Errorf("size with small tables = %d, want 2", got)
	}

	// One table over the 16-bit limit widens the whole coded index.
	big := func(t Table) uint32 {
		if t == TableMethod {
			return 0x10000
		}
		return 100
	}
	if got := HasCustomDebugInformation.Size(big); got != 4 {
		t.Errorf("size with a wide table = %d, want 4", got)
	}

	// One row short of the limit stays narrow.
	almost := func(t Table) uint32 {
		if t == TableMethod {
			return 0xffff
		}
		return 100
	}
	if got := HasCustomDebugInformation.Size(almost); got != 2 {
		t.Errorf("size at 0xffff rows = %d, want 2", got)
	}
}

func TestTableStreamRoundTrip(t *testing.T) {
	for _, heapSizes := range []byte{0x00, 0x07} {
		tb := NewTableBuilder(nil)
		docRid := tb.Append(TableDocument, []uint32{5, 1, 9, 2})
		tb.Append(TableMethodDebugInformation, []uint32{docRid, 3})
		tb.Append(TableMethodDebugInformation, []uint32{0, 0})
		tb.Append(TableLocalScope, []uint32{1, 0, 1, 1, 0, 24})
		tb.MarkSorted(TableLocalScope)

		img := &Image{}
		if err := readTableStream(img, tb.Serialize(heapSizes)); err != nil {
			t.Fatalf("heapSizes 0x%02x: %v", heapSizes, err)
		}
		if img.heapSizes != heapSizes {
			t.Errorf("heapSizes read back as 0x%02x, want 0x%02x", img.heapSizes, heapSizes)
		}
		if img.TableLength(TableDocument) != 1 || img.TableLength(TableMethodDebugInformation) != 2 {
			t.Fatalf("row counts wrong: %d, %d",
				img.TableLength(TableDocument), img.TableLength(TableMethodDebugInformation))
		}
		if img.sorted&(1<<uint(TableLocalScope)) == 0 {
			t.Error("sorted bit lost")
		}

		r := NewTableReader(img)
		rows, err := r.Rows(TableDocument)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(rows, [][]uint32{{5, 1, 9, 2}}) {
			t.Errorf("document rows = %v", rows)
		}
		row, err := r.Row(TableMethodDebugInformation, 1)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(row, []uint32{1, 3}) {
			t.Errorf("method debug row = %v", row)
		}
		if row, _ := r.Row(TableDocument, 2); row != nil {
			t.Errorf("out-of-range row = %v, want nil", row)
		}
		if rows, _ := r.Rows(TableLocalVariable); rows != nil {
			t.Errorf("absent table rows = %v, want nil", rows)
		}
	}
}
