package mod

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces a deterministic serialization of a batch for
// fingerprinting: fixed key order, no insignificant whitespace, NFC-normalized
// strings. Two batches with the same entries in the same order always produce
// identical bytes, independent of map iteration or encoder configuration.
func MarshalCanonical(abilityID int32, mods []Modification) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"abilityId":`)
	buf.WriteString(strconv.FormatInt(int64(abilityID), 10))
	buf.WriteString(`,"modifications":[`)
	for i, m := range mods {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalModification(&buf, m); err != nil {
			return nil, fmt.Errorf("modification %d: %w", i, err)
		}
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

func writeCanonicalModification(buf *bytes.Buffer, m Modification) error {
	if _, ok := kindNames[m.Kind]; !ok {
		return fmt.Errorf("unknown kind %d", int(m.Kind))
	}
	buf.WriteString(`{"groupId":`)
	buf.WriteString(strconv.FormatInt(int64(m.GroupID), 10))
	buf.WriteString(`,"injectAfterOp":`)
	buf.WriteString(strconv.FormatInt(int64(m.InjectAfter), 10))
	buf.WriteString(`,"occurrence":`)
	buf.WriteString(strconv.FormatInt(int64(m.Occurrence), 10))
	buf.WriteString(`,"opId":`)
	buf.WriteString(strconv.FormatInt(int64(m.OperationID), 10))
	buf.WriteString(`,"propId":`)
	buf.WriteString(strconv.FormatInt(int64(m.PropertyID), 10))
	buf.WriteString(`,"type":`)
	writeCanonicalString(buf, m.Kind.String())
	buf.WriteString(`,"value":`)
	raw, err := MarshalValue(m.Value)
	if err != nil {
		return err
	}
	buf.Write(raw)
	buf.WriteByte('}')
	return nil
}

// writeCanonicalString writes a JSON string with NFC normalization and
// without HTML escaping, so visually identical text always hashes the same.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	normalized := norm.NFC.String(s)
	buf.WriteByte('"')
	for _, r := range normalized {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

// Fingerprint returns a content-addressed identity for a batch: the SHA-256
// of its canonical serialization, hex-encoded. Used to correlate traces with
// enqueued batches and to dedupe saved profiles.
func Fingerprint(abilityID int32, mods []Modification) (string, error) {
	data, err := MarshalCanonical(abilityID, mods)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
