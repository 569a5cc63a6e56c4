package models

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the two node shapes on the wire.
type Kind string

const (
	KindFolder Kind = "folder"
	KindRecord Kind = "file"
)

// Status is the investigation workflow state of a record.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in-progress"
	StatusClosed     Status = "closed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusClosed:
		return true
	}
	return false
}

// Severity is the analyst-assigned impact rating of a record.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Node is either a *Folder or a *Record. Every node in a forest has a
// unique id; folders and records share one id namespace.
type Node interface {
	NodeID() string
	NodeName() string
	NodeKind() Kind
	Clone() Node
}

// Forest is the ordered root-level node sequence. It is the unit of
// persistence and of cross-context synchronization.
type Forest []Node

// Folder is a non-leaf node holding an ordered child list. Child order is
// display order; algorithms never reorder siblings.
type Folder struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsOpen   bool   `json:"isOpen"`
	Children []Node `json:"children"`
}

// Record is a leaf node describing one investigation case.
type Record struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Status         Status      `json:"status"`
	Severity       Severity    `json:"severity"`
	CreatedAt      string      `json:"createdAt"`
	Timeframes     []Timeframe `json:"timeframes,omitempty"`
	RelatedAssets  []string    `json:"relatedAssets,omitempty"`
	RelatedDomains []string    `json:"relatedDomains,omitempty"`
	Description    string      `json:"description,omitempty"`
	Assignee       string      `json:"assignee,omitempty"`
}

// Timeframe is one known active period: either a single date or a
// start/end pair. Exactly one of the two forms is set.
type Timeframe struct {
	Date  string `json:"-"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// IsRange reports whether the timeframe is a start/end pair.
func (t Timeframe) IsRange() bool {
	return t.Date == ""
}

// MarshalJSON writes a bare date string for single-day timeframes and a
// {start,end} object for ranges, matching the persisted wire shape.
func (t Timeframe) MarshalJSON() ([]byte, error) {
	if !t.IsRange() {
		return json.Marshal(t.Date)
	}
	type pair struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	return json.Marshal(pair{Start: t.Start, End: t.End})
}

// UnmarshalJSON accepts either wire form.
func (t *Timeframe) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = Timeframe{Date: single}
		return nil
	}
	var pair struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("timeframe must be a date string or a start/end object: %w", err)
	}
	*t = Timeframe{Start: pair.Start, End: pair.End}
	return nil
}

// NodeID implements Node.
func (f *Folder) NodeID() string { return f.ID }

// NodeName implements Node.
func (f *Folder) NodeName() string { return f.Name }

// NodeKind implements Node.
func (f *Folder) NodeKind() Kind { return KindFolder }

// Clone returns a deep copy of the folder and its subtree.
func (f *Folder) Clone() Node {
	out := &Folder{
		ID:     f.ID,
		Name:   f.Name,
		IsOpen: f.IsOpen,
	}
	if f.Children != nil {
		out.Children = make([]Node, len(f.Children))
		for i, child := range f.Children {
			out.Children[i] = child.Clone()
		}
	}
	return out
}

// NodeID implements Node.
func (r *Record) NodeID() string { return r.ID }

// NodeName implements Node.
func (r *Record) NodeName() string { return r.Name }

// NodeKind implements Node.
func (r *Record) NodeKind() Kind { return KindRecord }

// Clone returns a deep copy of the record.
func (r *Record) Clone() Node {
	out := *r
	if r.Timeframes != nil {
		out.Timeframes = append([]Timeframe(nil), r.Timeframes...)
	}
	if r.RelatedAssets != nil {
		out.RelatedAssets = append([]string(nil), r.RelatedAssets...)
	}
	if r.RelatedDomains != nil {
		out.RelatedDomains = append([]string(nil), r.RelatedDomains...)
	}
	return &out
}

// Normalize fills enum fields that arrived empty from older payloads.
func (r *Record) Normalize() {
	if !r.Status.Valid() {
		r.Status = StatusOpen
	}
	if !r.Severity.Valid() {
		r.Severity = SeverityMedium
	}
}

type folderWire struct {
	Type     Kind              `json:"type"`
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	IsOpen   bool              `json:"isOpen"`
	Children []json.RawMessage `json:"children"`
}

type recordWire struct {
	Type Kind `json:"type"`
	Record
}

// MarshalJSON tags the folder with its kind so mixed child lists stay
// decodable.
func (f *Folder) MarshalJSON() ([]byte, error) {
	children := make([]json.RawMessage, 0, len(f.Children))
	for _, child := range f.Children {
		raw, err := json.Marshal(child)
		if err != nil {
			return nil, err
		}
		children = append(children, raw)
	}
	return json.Marshal(folderWire{
		Type:     KindFolder,
		ID:       f.ID,
		Name:     f.Name,
		IsOpen:   f.IsOpen,
		Children: children,
	})
}

// UnmarshalJSON decodes a tagged folder object.
func (f *Folder) UnmarshalJSON(data []byte) error {
	var wire folderWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	f.ID = wire.ID
	f.Name = wire.Name
	f.IsOpen = wire.IsOpen
	f.Children = make([]Node, 0, len(wire.Children))
	for _, raw := range wire.Children {
		child, err := DecodeNode(raw)
		if err != nil {
			return err
		}
		f.Children = append(f.Children, child)
	}
	return nil
}

// MarshalJSON tags the record with its kind.
func (r *Record) MarshalJSON() ([]byte, error) {
	type alias Record
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{Type: KindRecord, alias: alias(*r)})
}

// DecodeNode decodes one tagged node object into the matching shape.
func DecodeNode(data []byte) (Node, error) {
	var probe struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode node tag: %w", err)
	}
	switch probe.Type {
	case KindFolder:
		var f Folder
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode folder: %w", err)
		}
		return &f, nil
	case KindRecord:
		var wire recordWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		rec := wire.Record
		rec.Normalize()
		return &rec, nil
	default:
		return nil, fmt.Errorf("unknown node type %q", probe.Type)
	}
}

// UnmarshalJSON decodes a persisted forest payload.
func (f *Forest) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	out := make(Forest, 0, len(raws))
	for _, raw := range raws {
		node, err := DecodeNode(raw)
		if err != nil {
			return err
		}
		out = append(out, node)
	}
	*f = out
	return nil
}

// Clone returns a deep copy of the forest.
func (f Forest) Clone() Forest {
	if f == nil {
		return nil
	}
	out := make(Forest, len(f))
	for i, node := range f {
		out[i] = node.Clone()
	}
	return out
}
