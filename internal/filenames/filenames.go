// Package filenames names and parses the on-disk files of a database
// directory: the WAL, SST, manifest, and CURRENT files, all keyed by a
// monotonically increasing file number.
package filenames

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// FileType distinguishes the kind of file a name decodes to.
type FileType int

const (
	TypeUnknown FileType = iota
	TypeLog              // WAL segment: NNNNNNN.log
	TypeTable            // SST: NNNNNNN.ldb
	TypeManifest         // MANIFEST-NNNNNNN
	TypeCurrent          // CURRENT
	TypeCurrentTemp      // CURRENT.NNNNNNN, the staging file for an atomic rename
)

// numWidth is the zero-padded width of a file number in a name.
const numWidth = 7

func formatNumber(n uint64) string {
	s := strconv.FormatUint(n, 10)
	if len(s) < numWidth {
		s = strings.Repeat("0", numWidth-len(s)) + s
	}
	return s
}

// LogFileName returns the WAL segment path for number n.
func LogFileName(dir string, n uint64) string {
	return filepath.Join(dir, formatNumber(n)+".log")
}

// TableFileName returns the SST path for file number n.
func TableFileName(dir string, n uint64) string {
	return filepath.Join(dir, formatNumber(n)+".ldb")
}

// ManifestBaseName returns the bare (no directory) manifest file name for
// number n, the form written into the CURRENT file.
func ManifestBaseName(n uint64) string {
	return "MANIFEST-" + formatNumber(n)
}

// ManifestFileName returns the manifest path for number n.
func ManifestFileName(dir string, n uint64) string {
	return filepath.Join(dir, ManifestBaseName(n))
}

// CurrentFileName returns the path of the CURRENT pointer file.
func CurrentFileName(dir string) string {
	return filepath.Join(dir, "CURRENT")
}

// CurrentTempFileName returns the path of the staging file CURRENT is
// atomically renamed from, keyed by the manifest number it will point to.
func CurrentTempFileName(dir string, manifestNumber uint64) string {
	return filepath.Join(dir, "CURRENT."+formatNumber(manifestNumber))
}

// Parse classifies a bare file name (no directory component) and extracts
// its embedded file number, if any.
func Parse(name string) (t FileType, number uint64, ok bool) {
	switch {
	case name == "CURRENT":
		return TypeCurrent, 0, true

	case strings.HasPrefix(name, "CURRENT."):
		n, err := strconv.ParseUint(strings.TrimPrefix(name, "CURRENT."), 10, 64)
		if err != nil {
			return TypeUnknown, 0, false
		}
		return TypeCurrentTemp, n, true

	case strings.HasPrefix(name, "MANIFEST-"):
		n, err := strconv.ParseUint(strings.TrimPrefix(name, "MANIFEST-"), 10, 64)
		if err != nil {
			return TypeUnknown, 0, false
		}
		return TypeManifest, n, true

	case strings.HasSuffix(name, ".log"):
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".log"), 10, 64)
		if err != nil {
			return TypeUnknown, 0, false
		}
		return TypeLog, n, true

	case strings.HasSuffix(name, ".ldb"):
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".ldb"), 10, 64)
		if err != nil {
			return TypeUnknown, 0, false
		}
		return TypeTable, n, true

	default:
		return TypeUnknown, 0, false
	}
}

// ReadCurrent parses the manifest file name out of CURRENT's contents,
// which is a single line naming the active manifest file.
func ReadCurrent(contents []byte) (string, error) {
	s := strings.TrimSpace(string(contents))
	if s == "" {
		return "", fmt.Errorf("filenames: empty CURRENT file")
	}
	if t, _, ok := Parse(s); !ok || t != TypeManifest {
		return "", fmt.Errorf("filenames: CURRENT does not name a manifest: %q", s)
	}
	return s, nil
}
