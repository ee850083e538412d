package alarm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPresetByKind verifies case-insensitive lookup and the miss path.
func TestPresetByKind(t *testing.T) {
	t.Parallel()

	preset, ok := PresetByKind("fire")
	require.True(t, ok)
	require.Equal(t, "FIRE ALARM", preset.Name)

	preset, ok = PresetByKind("  Code-Blue ")
	require.True(t, ok)
	require.Equal(t, "CODE BLUE", preset.Name)

	_, ok = PresetByKind("meteor-strike")
	require.False(t, ok)
}

// TestPresetDraft ensures a preset draft carries the catalog fields through
// the event builder.
func TestPresetDraft(t *testing.T) {
	t.Parallel()

	preset, ok := PresetByKind("code-pink")
	require.True(t, ok)

	event := New(preset.Draft("Infant abduction, lock down exits"), "10.0.10.13", "nurse.station")
	require.Equal(t, "code-pink", event.Kind)
	require.Equal(t, "CODE PINK", event.Name)
	require.Equal(t, preset.Color, event.Color)
	require.Equal(t, Darken(preset.Color, DarkenFactor), event.BackgroundColor)
}

// TestPresetsIsACopy guards the catalog against mutation through the accessor.
func TestPresetsIsACopy(t *testing.T) {
	t.Parallel()

	first := Presets()
	first[0].Name = "mutated"

	second := Presets()
	require.NotEqual(t, "mutated", second[0].Name)
}
