package metadata

import "testing"

func TestGUIDFromString(t *testing.T) {
	g, err := GUIDFromString("3f5162f8-07c6-11d3-9053-00c04fa302a1")
	if err != nil {
		t.Fatal(err)
	}
	if g.Data1 != 0x3f5162f8 || g.Data2 != 0x07c6 || g.Data3 != 0x11d3 {
		t.Errorf("unexpected fields: %+v", g)
	}
	if g.String() != "3f5162f8-07c6-11d3-9053-00c04fa302a1" {
		t.Errorf("String = %q", g.String())
	}

	if _, err := GUIDFromString("not-a-guid"); err == nil {
		t.Error("malformed GUID parsed without error")
	}
}

func TestGUIDWindowsArrayRoundTrip(t *testing.T) {
	g, err := GUIDFromString("406ea660-64cf-4c82-b6f0-42d48172a799")
	if err != nil {
		t.Fatal(err)
	}
	raw := g.ToWindowsArray()
	// The first three fields are stored little-endian on disk.
	if raw[0] != 0x60 || raw[1] != 0xa6 || raw[2] != 0x6e || raw[3] != 0x40 {
		t.Errorf("Data1 bytes = % x", raw[:4])
	}
	if back := GUIDFromWindowsArray(raw); back != g {
		t.Errorf("round trip mismatch: %s != %s", back, g)
	}

	be := g.ToArray()
	if back := GUIDFromArray(be); back != g {
		t.Errorf("big-endian round trip mismatch: %s != %s", back, g)
	}
}

func TestGUIDToStringFormats(t *testing.T) {
	g, _ := GUIDFromString("ff1816ec-aa5e-4d10-87f7-6f4963833460")
	cases := map[string]string{
		"":  "ff1816ec-aa5e-4d10-87f7-6f4963833460",
		"D": "ff1816ec-aa5e-4d10-87f7-6f4963833460",
		"N": "ff1816ecaa5e4d1087f76f4963833460",
		"B": "{ff1816ec-aa5e-4d10-87f7-6f4963833460}",
		"P": "(ff1816ec-aa5e-4d10-87f7-6f4963833460)",
	}
	for format, want := range cases {
		got, err := g.ToString(format)
		if err != nil {
			t.Errorf("format %q: %v", format, err)
			continue
		}
		if got != want {
			t.Errorf("format %q = %q, want %q", format, got, want)
		}
	}
	if _, err := g.ToString("X"); err == nil {
		t.Error("invalid format accepted")
	}
}

func TestGUIDIsZero(t *testing.T) {
	if !(GUID{}).IsZero() {
		t.Error("zero GUID not reported as zero")
	}
	g, _ := GUIDFromString("ff1816ec-aa5e-4d10-87f7-6f4963833460")
	if g.IsZero() {
		t.Error("non-zero GUID reported as zero")
	}
}
