// Package sym defines the glyphs used as log and CLI markers.
// They are stable across log output, CLI tables and documentation.
package sym

// System markers.
const (
	Pulse      = "꩜" // scheduled jobs firing
	PulseOpen  = "✿" // scheduler startup
	PulseClose = "❀" // scheduler shutdown
	DB         = "⊔" // database/storage layer
	AM         = "≡" // configuration
	AT         = "✦" // execution history moments
)

// ByComponent maps a component name to its glyph for log decoration.
var ByComponent = map[string]string{
	"pulse":   Pulse,
	"db":      DB,
	"am":      AM,
	"history": AT,
}

// For returns the glyph for component, or an empty string when unknown.
func For(component string) string {
	return ByComponent[component]
}
