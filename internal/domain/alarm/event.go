package alarm

import (
	"encoding/json"
	"fmt"
	"time"
)

// UnknownAdmin is the sentinel identity recorded when a broadcast was
// triggered without an authenticated operator.
const UnknownAdmin = "Unknown"

// Heartbeat is the liveness probe written to every session between
// broadcasts. It is deliberately not valid JSON so clients can discard it
// without attempting to parse.
var Heartbeat = []byte("ping")

// Event is the unit of broadcast. Field names are fixed by the wire
// protocol; every event is fully self-describing so a client with no prior
// state can render it from the event alone.
type Event struct {
	// Kind is a short category tag ("fire", "security", "test", "custom", ...).
	// Clients use it only for display routing.
	Kind string `json:"type"`
	// Message is the human-readable body text.
	Message string `json:"message"`
	// Timestamp is the event creation time in RFC 3339. Advisory only:
	// clients fall back to local receipt time when unparsable.
	Timestamp string `json:"timestamp"`
	// Server is the address the event originated from.
	Server string `json:"server"`
	// Color is the alarm accent color as hex RGB.
	Color string `json:"color"`
	// BackgroundColor is Color darkened for use as a window background.
	BackgroundColor string `json:"bg_color"`
	// TextColor is chosen for contrast against the background.
	TextColor string `json:"text_color"`
	// Icon is a short glyph shown next to the alarm title.
	Icon string `json:"icon"`
	// Name is the display title of the alarm class.
	Name string `json:"name"`
	// Admin identifies the operator who triggered the broadcast,
	// or UnknownAdmin when unauthenticated.
	Admin string `json:"admin"`
	// BackgroundImage is an optional base64-encoded image payload,
	// used only by presentation.
	BackgroundImage string `json:"background_image,omitempty"`
}

// Draft describes an alarm before the derived presentation fields
// (background, text color, timestamp) are computed.
type Draft struct {
	// Kind is the category tag; empty means "custom".
	Kind string
	// Name is the display title; empty means "Custom Alarm".
	Name string
	// Icon is the title glyph; empty means the generic warning sign.
	Icon string
	// Color is the accent color; empty means the default alarm red.
	Color string
	// Message is the body text.
	Message string
	// BackgroundImage is an optional base64 image payload.
	BackgroundImage string
}

const (
	// defaultKind tags free-form alarms composed by an operator.
	defaultKind = "custom"
	// defaultName titles free-form alarms.
	defaultName = "Custom Alarm"
	// defaultIcon is the generic warning glyph.
	defaultIcon = "⚠️"
	// defaultColor is the accent used when the operator picked none.
	defaultColor = "#e74c3c"
)

// New builds a self-describing Event from a draft. The background color is
// the accent darkened by the standard factor and the text color is picked
// for contrast. An empty admin becomes UnknownAdmin; the admin check itself
// happens one layer up, never here.
func New(draft Draft, server, admin string) *Event {
	kind := draft.Kind
	if kind == "" {
		kind = defaultKind
	}

	name := draft.Name
	if name == "" {
		name = defaultName
	}

	icon := draft.Icon
	if icon == "" {
		icon = defaultIcon
	}

	color := draft.Color
	if color == "" {
		color = defaultColor
	}

	if admin == "" {
		admin = UnknownAdmin
	}

	return &Event{
		Kind:            kind,
		Message:         draft.Message,
		Timestamp:       time.Now().Format(time.RFC3339),
		Server:          server,
		Color:           color,
		BackgroundColor: Darken(color, DarkenFactor),
		TextColor:       ContrastColor(color),
		Icon:            icon,
		Name:            name,
		Admin:           admin,
		BackgroundImage: draft.BackgroundImage,
	}
}

// Encode serializes the event to its wire form: a single JSON object.
func (e *Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}

	return data, nil
}

// Decode parses the wire form of an event.
func Decode(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	return &e, nil
}

// timestampLayouts are tried in order when parsing event timestamps.
// The second matches Python's datetime.isoformat() which carries no zone.
//
//nolint:gochecknoglobals // Static layout table.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
}

// When parses the event timestamp, returning the provided receipt time when
// the timestamp is missing or unparsable.
func (e *Event) When(receivedAt time.Time) time.Time {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, e.Timestamp); err == nil {
			return ts
		}
	}

	return receivedAt
}
