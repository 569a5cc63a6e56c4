package models

// RuleNodeKind discriminates the rule-node element shapes a signal is
// built from.
type RuleNodeKind string

const (
	RuleNodeString   RuleNodeKind = "string"
	RuleNodeTyped    RuleNodeKind = "typed-input"
	RuleNodeTime     RuleNodeKind = "time-input"
	RuleNodeOperator RuleNodeKind = "operator"
)

// RuleNode is one element of a signal's detection expression. String
// nodes carry prose, typed/time inputs carry a field/value match, and
// operator nodes join neighbouring matches.
type RuleNode struct {
	Kind     RuleNodeKind `json:"kind"`
	Text     string       `json:"text,omitempty"`
	Field    string       `json:"field,omitempty"`
	Value    string       `json:"value,omitempty"`
	Operator string       `json:"operator,omitempty"` // and|or|not
}

// Signal is a detection-rule artifact derived from exactly one source
// record. Signals live outside the forest and are joined by
// SourceRecordID at read time.
type Signal struct {
	ID             string     `json:"id"`
	SourceRecordID string     `json:"sourceRecordId"`
	Description    string     `json:"description,omitempty"`
	Nodes          []RuleNode `json:"nodes,omitempty"`
	CreatedAt      string     `json:"createdAt,omitempty"`
}

// Clone returns a deep copy of the signal.
func (s *Signal) Clone() *Signal {
	out := *s
	if s.Nodes != nil {
		out.Nodes = append([]RuleNode(nil), s.Nodes...)
	}
	return &out
}

// SignalMap is the persisted ledger shape: source record id to the
// ordered signals derived from it.
type SignalMap map[string][]*Signal

// Clone returns a deep copy of the map.
func (m SignalMap) Clone() SignalMap {
	if m == nil {
		return nil
	}
	out := make(SignalMap, len(m))
	for id, sigs := range m {
		copied := make([]*Signal, len(sigs))
		for i, s := range sigs {
			copied[i] = s.Clone()
		}
		out[id] = copied
	}
	return out
}
