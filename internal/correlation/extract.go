package correlation

import (
	"bytes"
)

// Extract scans raw for the three identity tags. It returns a Key only when
// all three are present with non-empty values; otherwise the caller tracks
// the range without rich context.
func Extract(raw []byte) (*Key, bool) {
	values := Tokenize(raw, TagIdentity, TagDirection, TagOperation)

	identity := values[TagIdentity]
	direction := values[TagDirection]
	operation := values[TagOperation]
	if identity == "" || direction == "" || operation == "" {
		return nil, false
	}

	return &Key{
		Identity:  identity,
		Direction: direction,
		Operation: operation,
	}, true
}

// Tokenize maps each tag found in raw to its value. raw is treated as a
// sequence of NUL-terminated runs; a tag is only matched inside a single
// run, but its value may start in a later run when the bytes in between are
// all invalid. Only the first occurrence of each tag is kept.
func Tokenize(raw []byte, tags ...string) map[string]string {
	values := make(map[string]string, len(tags))

	for start := 0; start < len(raw); {
		end := bytes.IndexByte(raw[start:], 0)
		if end < 0 {
			end = len(raw)
		} else {
			end += start
		}
		run := raw[start:end]

		for _, tag := range tags {
			if _, seen := values[tag]; seen || tag == "" {
				continue
			}
			i := bytes.Index(run, []byte(tag))
			if i < 0 {
				continue
			}
			// One delimiter byte follows the tag.
			if v, ok := valueAt(raw, start+i+len(tag)+1); ok {
				values[tag] = v
			}
		}

		start = end + 1
	}

	return values
}

// valueAt returns the first run of valid bytes at or after pos.
func valueAt(raw []byte, pos int) (string, bool) {
	for pos < len(raw) && !isValid(raw[pos]) {
		pos++
	}
	if pos >= len(raw) {
		return "", false
	}

	end := pos + 1
	for end < len(raw) && isValid(raw[end]) {
		end++
	}
	return string(raw[pos:end]), true
}

// isValid reports whether c may appear in a tag value. Control bytes, '@',
// DEL and non-ASCII bytes act as separators.
func isValid(c byte) bool {
	return c >= ' ' && c != '@' && c < 0x7f
}

// AppendMetadata appends the identity tags of k to dst in the form Extract
// reads back: one "tag:value" run per tag, each NUL-terminated.
func AppendMetadata(dst []byte, k *Key) []byte {
	for _, kv := range [...][2]string{
		{TagIdentity, k.Identity},
		{TagDirection, k.Direction},
		{TagOperation, k.Operation},
	} {
		dst = append(dst, kv[0]...)
		dst = append(dst, ':')
		dst = append(dst, kv[1]...)
		dst = append(dst, 0)
	}
	return dst
}
