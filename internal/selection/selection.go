// Package selection implements the preset-driven tag selection engine:
// given the configured presets and explicit tag names, it computes the
// effective set of EXIF tags to extract for every processed file.
package selection

type (
	// Mode distinguishes "copy every tag" from an explicit (possibly
	// empty) set of tags. An explicit empty set is a legal selection
	// which copies nothing beyond the seeded base fields; it is NOT
	// equivalent to ModeAll.
	Mode int

	Selection struct {
		mode Mode
		tags map[string]struct{}
	}
)

const (
	ModeExplicit Mode = iota
	ModeAll
)

// All returns the sentinel selection which matches every tag.
func All() Selection {
	return Selection{mode: ModeAll}
}

// Resolve computes the effective selection from the provided preset
// identifiers and explicit tag names. Preset tag lists and explicit tags
// are unioned; duplicates collapse and order is irrelevant. Unknown
// preset identifiers are silently ignored.
func Resolve(presets []string, explicitTags []string) Selection {
	tags := make(map[string]struct{})
	for _, presetID := range presets {
		for _, tag := range Presets[presetID] {
			tags[tag] = struct{}{}
		}
	}

	for _, tag := range explicitTags {
		tags[tag] = struct{}{}
	}

	return Selection{mode: ModeExplicit, tags: tags}
}

func (sel Selection) Mode() Mode {
	return sel.mode
}

// Contains reports whether the tag name is part of this selection. The
// ModeAll sentinel contains every tag.
func (sel Selection) Contains(tag string) bool {
	if sel.mode == ModeAll {
		return true
	}

	_, ok := sel.tags[tag]
	return ok
}

// Tags returns the explicit tag names of this selection. The returned
// slice is a copy with no guaranteed order; it is empty for ModeAll.
func (sel Selection) Tags() []string {
	tags := make([]string, 0, len(sel.tags))
	for tag := range sel.tags {
		tags = append(tags, tag)
	}

	return tags
}

func (sel Selection) IsEmpty() bool {
	return sel.mode == ModeExplicit && len(sel.tags) == 0
}
