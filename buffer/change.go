package buffer

// ChangeSource identifies which side of the bridge produced a change.
type ChangeSource uint8

const (
	ChangeSourceHost ChangeSource = iota
	ChangeSourceEngine
)

func (s ChangeSource) String() string {
	switch s {
	case ChangeSourceHost:
		return "host"
	case ChangeSourceEngine:
		return "engine"
	default:
		return "unknown"
	}
}

// AppliedEdit describes one effective edit in a change transaction.
type AppliedEdit struct {
	RangeBefore Range
	RangeAfter  Range
	InsertText  string
	DeletedText string
}

// Change is a normalized, versioned mutation payload.
type Change struct {
	Source        ChangeSource
	VersionBefore uint64
	VersionAfter  uint64
	RemoteVersion uint64
	AppliedEdits  []AppliedEdit
}

type changeBuilder struct {
	source        ChangeSource
	versionBefore uint64
	appliedEdits  []AppliedEdit
}

// LastChange returns the most recent effective change.
func (b *Buffer) LastChange() (Change, bool) {
	if !b.hasLastChange {
		return Change{}, false
	}
	return cloneChange(b.lastChange), true
}

// Edits converts the change back into the edits that reproduce it on a copy
// of the pre-change content.
func (c Change) Edits() []TextEdit {
	out := make([]TextEdit, 0, len(c.AppliedEdits))
	for _, e := range c.AppliedEdits {
		out = append(out, TextEdit{Range: e.RangeBefore, Text: e.InsertText})
	}
	return out
}

func cloneChange(in Change) Change {
	out := in
	out.AppliedEdits = append([]AppliedEdit(nil), in.AppliedEdits...)
	return out
}

func (b *Buffer) beginChange(source ChangeSource) changeBuilder {
	return changeBuilder{
		source:        source,
		versionBefore: b.version,
	}
}

func (cb *changeBuilder) addAppliedEdit(edit AppliedEdit) {
	edit.RangeBefore = NormalizeRange(edit.RangeBefore)
	edit.RangeAfter = NormalizeRange(edit.RangeAfter)
	cb.appliedEdits = append(cb.appliedEdits, edit)
}

func (b *Buffer) commitChange(cb changeBuilder) (Change, bool) {
	if b.version == cb.versionBefore {
		return Change{}, false
	}
	b.lastChange = Change{
		Source:        cb.source,
		VersionBefore: cb.versionBefore,
		VersionAfter:  b.version,
		RemoteVersion: b.remoteVersion,
		AppliedEdits:  append([]AppliedEdit(nil), cb.appliedEdits...),
	}
	b.hasLastChange = true
	return cloneChange(b.lastChange), true
}
