package mod

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is the serialized exchange form of a modification set. It is the
// boundary format: export followed by import reproduces the entry set
// value-for-value, including the tagged-union value types.
type Document struct {
	AbilityID     int32          `json:"abilityId"`
	Modifications []Modification `json:"modifications"`
}

// wireModification is the on-wire shape of one entry. Pointer fields carry
// the documented defaults when absent: propId -1, injectAfterOp 0,
// occurrence 0, value null.
type wireModification struct {
	Type          string          `json:"type"`
	GroupID       int32           `json:"groupId"`
	OpID          int32           `json:"opId"`
	PropID        *int32          `json:"propId,omitempty"`
	Value         json.RawMessage `json:"value,omitempty"`
	InjectAfterOp *int32          `json:"injectAfterOp,omitempty"`
	Occurrence    *int32          `json:"occurrence,omitempty"`
}

type wireDocument struct {
	AbilityID     *int32             `json:"abilityId"`
	Modifications []wireModification `json:"modifications"`
}

// MarshalJSON emits the document with every field explicit, so the output is
// stable regardless of which defaults the entries happen to use.
func (d Document) MarshalJSON() ([]byte, error) {
	wire := wireDocument{
		AbilityID:     &d.AbilityID,
		Modifications: make([]wireModification, 0, len(d.Modifications)),
	}
	for i, m := range d.Modifications {
		if _, ok := kindNames[m.Kind]; !ok {
			return nil, fmt.Errorf("modification %d: unknown kind %d", i, int(m.Kind))
		}
		valueRaw, err := MarshalValue(m.Value)
		if err != nil {
			return nil, fmt.Errorf("modification %d: %w", i, err)
		}
		propID, injectAfter, occurrence := m.PropertyID, m.InjectAfter, m.Occurrence
		wire.Modifications = append(wire.Modifications, wireModification{
			Type:          m.Kind.String(),
			GroupID:       m.GroupID,
			OpID:          m.OperationID,
			PropID:        &propID,
			Value:         valueRaw,
			InjectAfterOp: &injectAfter,
			Occurrence:    &occurrence,
		})
	}
	return json.Marshal(wire)
}

// UnmarshalJSON parses a serialized document. Any malformed entry fails the
// whole import: the receiver is only written on success.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var wire wireDocument
	if err := dec.Decode(&wire); err != nil {
		return fmt.Errorf("parse modification document: %w", err)
	}
	if wire.AbilityID == nil {
		return fmt.Errorf("parse modification document: missing abilityId")
	}

	mods := make([]Modification, 0, len(wire.Modifications))
	for i, wm := range wire.Modifications {
		m, err := wm.toModification()
		if err != nil {
			return fmt.Errorf("modification %d: %w", i, err)
		}
		mods = append(mods, m)
	}

	d.AbilityID = *wire.AbilityID
	d.Modifications = mods
	return nil
}

func (wm wireModification) toModification() (Modification, error) {
	kind, err := ParseKind(wm.Type)
	if err != nil {
		return Modification{}, err
	}

	m := Modification{
		Kind:        kind,
		GroupID:     wm.GroupID,
		OperationID: wm.OpID,
		PropertyID:  NoProperty,
	}
	if wm.PropID != nil {
		m.PropertyID = *wm.PropID
	}
	if wm.InjectAfterOp != nil {
		m.InjectAfter = *wm.InjectAfterOp
	}
	if wm.Occurrence != nil {
		m.Occurrence = *wm.Occurrence
	}
	if len(wm.Value) > 0 {
		v, err := UnmarshalValue(wm.Value)
		if err != nil {
			return Modification{}, err
		}
		m.Value = v
	}
	return m, nil
}

// Export captures the builder's ability id and entry set as a document.
func (b *Builder) Export() *Document {
	return &Document{
		AbilityID:     b.abilityID,
		Modifications: b.Modifications(),
	}
}

// ExportJSON serializes the builder's entries to the exchange format.
func (b *Builder) ExportJSON() ([]byte, error) {
	data, err := json.MarshalIndent(b.Export(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export ability %d: %w", b.abilityID, err)
	}
	return data, nil
}

// ImportJSON replaces the builder's entries with the document's, adopting
// its ability id. A malformed document leaves the builder untouched.
func (b *Builder) ImportJSON(data []byte) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	b.ImportDocument(&doc)
	return nil
}

// ImportDocument replaces the builder's entries with the document's. The
// entries are loaded verbatim: an exported set is already conflict-resolved,
// so the fluent supersession rules are not replayed.
func (b *Builder) ImportDocument(doc *Document) {
	b.abilityID = doc.AbilityID
	b.entries = make([]Modification, len(doc.Modifications))
	copy(b.entries, doc.Modifications)
	b.reindex()
}
