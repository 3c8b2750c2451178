// Package canonical produces the deterministic JSON encoding that the
// attestation message hash commits to. Two JSON documents with the same
// logical content always canonicalize to byte-identical output, regardless
// of the key order they were written in.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Canonicalize walks a decoded JSON value tree and emits its canonical form:
// map keys sorted ascending by code point and re-encoded as JSON string
// literals, list elements in order, no whitespace anywhere.
//
// Accepted node types are the ones encoding/json produces when decoding into
// interface{} with UseNumber: nil, bool, json.Number, string, []interface{}
// and map[string]interface{}. float64 is tolerated for callers that decoded
// without UseNumber, but identifier fields in this system are decimal strings
// precisely so that no float formatting ever reaches the hash preimage.
func Canonicalize(v interface{}) (string, error) {
	var sb strings.Builder
	if err := writeValue(&sb, v); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// CanonicalizeJSON decodes raw JSON text (numbers kept as json.Number) and
// canonicalizes the result.
func CanonicalizeJSON(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("decode JSON: %w", err)
	}
	return Canonicalize(v)
}

func writeValue(sb *strings.Builder, v interface{}) error {
	switch val := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if val {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case json.Number:
		sb.WriteString(val.String())
	case string:
		return writeString(sb, val)
	case float64:
		// Only reachable when the caller decoded without UseNumber.
		enc, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("encode number: %w", err)
		}
		sb.Write(enc)
	case []interface{}:
		sb.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := writeValue(sb, elem); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	case map[string]interface{}:
		return writeMap(sb, val)
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}

func writeMap(sb *strings.Builder, m map[string]interface{}) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Ascending by code point; Go string comparison is bytewise over UTF-8,
	// which orders identically to code point order.
	sort.Strings(keys)

	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := writeString(sb, k); err != nil {
			return err
		}
		sb.WriteByte(':')
		if err := writeValue(sb, m[k]); err != nil {
			return err
		}
	}
	sb.WriteByte('}')
	return nil
}

func writeString(sb *strings.Builder, s string) error {
	// encoding/json HTML-escapes <, > and & by default, which would diverge
	// from the standard JSON literal encoding the hash commits to.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode string: %w", err)
	}
	sb.Write(bytes.TrimRight(buf.Bytes(), "\n"))
	return nil
}
