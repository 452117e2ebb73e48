package normalize

import (
	"strings"
)

// Sigil is the leading marker of a fastq header, also found on some flat id lists.
const Sigil = "@"

// BaseName returns the component after the last '/', mirroring how index lines
// and summary filenames are joined. Unlike path.Base it never cleans the path:
//
//	"/d/x.tar"        -> "x.tar"
//	"run1/f1.fast5"   -> "f1.fast5"
//	"f1.fast5"        -> "f1.fast5"
func BaseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// FirstField returns the first whitespace-delimited token of s, or "" for a blank line.
func FirstField(s string) string {
	s = strings.TrimLeft(s, " \t")
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i]
	}
	return s
}

// TwoFields returns the first two whitespace-delimited tokens of s.
// ok is false when the line has fewer than two fields.
func TwoFields(s string) (first, second string, ok bool) {
	first = FirstField(s)
	if first == "" {
		return "", "", false
	}
	rest := strings.TrimLeft(s, " \t")[len(first):]
	second = FirstField(rest)
	return first, second, second != ""
}

// HeaderID extracts the record id from a fastq header line: first token minus the sigil.
func HeaderID(line string) string {
	return strings.TrimPrefix(FirstField(line), Sigil)
}

// HasSigil reports whether the line begins with the sigil.
func HasSigil(line string) bool { return strings.HasPrefix(line, Sigil) }
