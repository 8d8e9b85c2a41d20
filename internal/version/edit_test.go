package version

import (
	"testing"

	"github.com/Priyanshu23/flashkv/internal/ikey"
)

func TestEditEncodeDecodeRoundTrip(t *testing.T) {
	e := &Edit{
		HasComparator:     true,
		Comparator:        "flashkv.BytewiseComparator",
		HasLogNumber:      true,
		LogNumber:         4,
		HasPrevLogNumber:  true,
		PrevLogNumber:     3,
		HasNextFileNumber: true,
		NextFileNumber:    9,
		HasLastSequence:   true,
		LastSequence:      100,
	}
	e.SetCompactPointer(2, ikey.Make([]byte("mid"), 5, ikey.KindValue))
	e.DeleteFile(0, 7)
	e.AddFile(0, FileMetadata{
		FileNum:  8,
		FileSize: 4096,
		Smallest: ikey.Make([]byte("a"), 1, ikey.KindValue),
		Largest:  ikey.Make([]byte("z"), 2, ikey.KindValue),
	})

	got, err := Decode(e.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Comparator != e.Comparator || !got.HasComparator {
		t.Fatalf("comparator: got %+v", got)
	}
	if got.LogNumber != 4 || got.PrevLogNumber != 3 || got.NextFileNumber != 9 || got.LastSequence != 100 {
		t.Fatalf("scalars: got %+v", got)
	}
	if len(got.CompactPointers) != 1 || got.CompactPointers[0].level != 2 {
		t.Fatalf("compact pointers: got %+v", got.CompactPointers)
	}
	if len(got.DeletedFiles) != 1 || got.DeletedFiles[0] != (deletedFileKey{level: 0, fileNum: 7}) {
		t.Fatalf("deleted files: got %+v", got.DeletedFiles)
	}
	if len(got.NewFiles) != 1 {
		t.Fatalf("new files: got %+v", got.NewFiles)
	}
	nf := got.NewFiles[0]
	if nf.FileNum != 8 || nf.FileSize != 4096 || string(nf.Smallest.UserKey()) != "a" || string(nf.Largest.UserKey()) != "z" {
		t.Fatalf("new file: got %+v", nf)
	}
}

func TestEditEncodeEmpty(t *testing.T) {
	e := &Edit{}
	got, err := Decode(e.Encode())
	if err != nil {
		t.Fatalf("decode empty edit: %v", err)
	}
	if got.HasComparator || got.HasLogNumber || got.HasNextFileNumber || got.HasLastSequence {
		t.Fatalf("expected all-empty edit, got %+v", got)
	}
}

func TestDecodeUnknownTagIsCorruption(t *testing.T) {
	if _, err := Decode([]byte{99}); err != ErrUnknownTag {
		t.Fatalf("got %v want ErrUnknownTag", err)
	}
}

func TestDecodeTruncatedRecord(t *testing.T) {
	if _, err := Decode([]byte{byte(tagLogNumber), 1, 2, 3}); err == nil {
		t.Fatal("expected error on truncated u64 field")
	}
}
