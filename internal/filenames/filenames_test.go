package filenames

import "testing"

func TestRoundTripEachType(t *testing.T) {
	cases := []struct {
		name string
		typ  FileType
		num  uint64
	}{
		{logFileNameBase(7), TypeLog, 7},
		{tableFileNameBase(42), TypeTable, 42},
		{"MANIFEST-0000003", TypeManifest, 3},
		{"CURRENT", TypeCurrent, 0},
		{"CURRENT.0000003", TypeCurrentTemp, 3},
	}
	for _, c := range cases {
		gotType, gotNum, ok := Parse(c.name)
		if !ok || gotType != c.typ || gotNum != c.num {
			t.Fatalf("Parse(%q) = (%v, %v, %v), want (%v, %v, true)", c.name, gotType, gotNum, ok, c.typ, c.num)
		}
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	for _, name := range []string{"notes.txt", "LOCK", "0000001.tmp"} {
		if _, _, ok := Parse(name); ok {
			t.Fatalf("Parse(%q) unexpectedly succeeded", name)
		}
	}
}

func TestReadCurrent(t *testing.T) {
	got, err := ReadCurrent([]byte("MANIFEST-0000005\n"))
	if err != nil || got != "MANIFEST-0000005" {
		t.Fatalf("got (%q, %v)", got, err)
	}

	if _, err := ReadCurrent([]byte("garbage")); err == nil {
		t.Fatal("expected error for non-manifest CURRENT contents")
	}
}

func logFileNameBase(n uint64) string   { return formatNumber(n) + ".log" }
func tableFileNameBase(n uint64) string { return formatNumber(n) + ".ldb" }
