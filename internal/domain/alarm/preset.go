package alarm

import "strings"

// Preset is a predefined alarm class an operator can trigger by kind.
type Preset struct {
	// Kind is the category tag and lookup key.
	Kind string
	// Name is the display title.
	Name string
	// Icon is the title glyph.
	Icon string
	// Color is the accent color.
	Color string
}

// presets is the catalog of standard alarm classes, hospital emergency codes
// included.
//
//nolint:gochecknoglobals // Static catalog.
var presets = []Preset{
	{Kind: "fire", Name: "FIRE ALARM", Icon: "🔥", Color: "#e74c3c"},
	{Kind: "security", Name: "SECURITY ALERT", Icon: "🛡️", Color: "#f39c12"},
	{Kind: "test", Name: "TEST ALARM", Icon: "🔔", Color: "#3498db"},
	{Kind: "code-blue", Name: "CODE BLUE", Icon: "🏥", Color: "#3498db"},
	{Kind: "code-black", Name: "CODE BLACK", Icon: "💣", Color: "#000000"},
	{Kind: "code-red", Name: "CODE RED", Icon: "🔥", Color: "#e74c3c"},
	{Kind: "code-orange", Name: "CODE ORANGE", Icon: "☢️", Color: "#f39c12"},
	{Kind: "code-yellow", Name: "CODE YELLOW", Icon: "👤", Color: "#f1c40f"},
	{Kind: "code-pink", Name: "CODE PINK", Icon: "👶", Color: "#e91e63"},
	{Kind: "code-gray", Name: "CODE GRAY", Icon: "⚔️", Color: "#95a5a6"},
	{Kind: "code-silver", Name: "CODE SILVER", Icon: "🔫", Color: "#bdc3c7"},
	{Kind: "missing-child", Name: "MISSING CHILD/ABDUCTED", Icon: "👶", Color: "#f39c12"},
	{Kind: "missing-adult", Name: "MISSING ADULT PATIENT", Icon: "👤", Color: "#f1c40f"},
	{Kind: "bomb-threat", Name: "BOMB THREAT", Icon: "💣", Color: "#2c3e50"},
	{Kind: "violent-situation", Name: "VIOLENT SITUATION", Icon: "⚔️", Color: "#95a5a6"},
	{Kind: "active-shooter", Name: "ACTIVE SHOOTER/ARMED INTRUDER", Icon: "🔫", Color: "#bdc3c7"},
}

// Presets returns the catalog of predefined alarm classes.
func Presets() []Preset {
	result := make([]Preset, len(presets))
	copy(result, presets)

	return result
}

// PresetByKind finds a preset by its kind tag, case-insensitively.
func PresetByKind(kind string) (Preset, bool) {
	kind = strings.ToLower(strings.TrimSpace(kind))

	for _, preset := range presets {
		if preset.Kind == kind {
			return preset, true
		}
	}

	return Preset{}, false
}

// Draft produces an event draft for the preset with the provided message.
func (p Preset) Draft(message string) Draft {
	return Draft{
		Kind:    p.Kind,
		Name:    p.Name,
		Icon:    p.Icon,
		Color:   p.Color,
		Message: message,
	}
}
