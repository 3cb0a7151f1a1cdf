package selection_test

import (
	"testing"

	"github.com/mickaelmarchal/exifstream/internal/selection"
	"github.com/stretchr/testify/assert"
)

func Test_Resolve_UnionsPresetsAndExplicitTags(t *testing.T) {
	t.Parallel()

	sel := selection.Resolve([]string{"basic"}, []string{"LensModel", "Make"})

	assert.True(t, sel.Contains("Make"), "preset tag missing from selection")
	assert.True(t, sel.Contains("Model"), "preset tag missing from selection")
	assert.True(t, sel.Contains("LensModel"), "explicit tag missing from selection")
	assert.False(t, sel.Contains("GPSLatitude"), "tag from unrequested preset present in selection")

	// 'Make' appears in both the preset and the explicit list, so the
	// resolved tag set must not contain duplicates.
	tags := sel.Tags()
	seen := make(map[string]int)
	for _, tag := range tags {
		seen[tag]++
	}
	assert.Equal(t, 1, seen["Make"])
}

func Test_Resolve_OrderIrrelevant(t *testing.T) {
	t.Parallel()

	a := selection.Resolve([]string{"camera", "exposure"}, []string{"Artist"})
	b := selection.Resolve([]string{"exposure", "camera"}, []string{"Artist"})

	assert.ElementsMatch(t, a.Tags(), b.Tags())
}

func Test_Resolve_UnknownPresetsIgnored(t *testing.T) {
	t.Parallel()

	sel := selection.Resolve([]string{"no-such-preset"}, nil)
	assert.True(t, sel.IsEmpty(), "unknown preset should contribute no tags")

	sel = selection.Resolve([]string{"no-such-preset", "datetime"}, nil)
	assert.False(t, sel.IsEmpty())
	assert.True(t, sel.Contains("DateTimeOriginal"))
}

func Test_Resolve_ExplicitEmptySelectionIsNotAll(t *testing.T) {
	t.Parallel()

	sel := selection.Resolve(nil, nil)
	assert.Equal(t, selection.ModeExplicit, sel.Mode())
	assert.True(t, sel.IsEmpty())
	assert.False(t, sel.Contains("Make"))
}

func Test_All_ContainsEverything(t *testing.T) {
	t.Parallel()

	sel := selection.All()
	assert.Equal(t, selection.ModeAll, sel.Mode())
	assert.False(t, sel.IsEmpty())
	assert.True(t, sel.Contains("Make"))
	assert.True(t, sel.Contains("SomeVendorSpecificTag"))
	assert.Empty(t, sel.Tags())
}

func Test_Presets_AllKnownPresetsNonEmpty(t *testing.T) {
	t.Parallel()

	for name, tags := range selection.Presets {
		assert.NotEmpty(t, tags, "preset %s has no tags", name)
	}
}
