// Package sym defines the glyphs that prefix twin CLI command groups and
// status lines. They are stable across help text and documentation.
package sym

// Command group glyphs.
const (
	AM       = "≡" // am: configuration
	Registry = "⌬" // registry: biomarker reference table
	Check    = "⊨" // validate/check: data quality findings
	Twin     = "⍟" // set/get/mark: the twin itself
	Context  = "⋈" // context: reasoning context for a model
	IO       = "⨳" // import/export of documents
	DB       = "⊔" // db: storage layer
)

// Status glyphs used in validation and completeness output.
const (
	Normal  = "✓"
	Low     = "↓"
	High    = "↑"
	Missing = "∅"
	NA      = "–"
)

// entry binds a glyph to its command and description.
type entry struct {
	glyph       string
	command     string
	label       string
	description string
}

var registry = []entry{
	{AM, "am", "Configuration", "Settings and where they come from"},
	{Registry, "registry", "Registry", "Biomarker reference ranges and units"},
	{Check, "check", "Check", "Validate biomarker values and whole twins"},
	{Twin, "twin", "Twin", "Record, query and mark health data"},
	{Context, "context", "Context", "Token-budgeted summary for a language model"},
	{IO, "io", "Exchange", "Import and export twin documents"},
	{DB, "db", "Storage", "Database statistics and migrations"},
}

// SymbolToCommand maps glyphs to their command names.
var SymbolToCommand = make(map[string]string, len(registry))

// CommandToSymbol maps command names to their glyphs.
var CommandToSymbol = make(map[string]string, len(registry))

// CommandDescriptions provides one-line help per command.
var CommandDescriptions = make(map[string]string, len(registry))

// Commands lists command names in registry order.
var Commands = make([]string, 0, len(registry))

func init() {
	for _, e := range registry {
		SymbolToCommand[e.glyph] = e.command
		CommandToSymbol[e.command] = e.glyph
		CommandDescriptions[e.command] = e.label + ": " + e.description
		Commands = append(Commands, e.command)
	}
}

// Short returns the glyph-prefixed short help for command.
func Short(command, text string) string {
	if g, ok := CommandToSymbol[command]; ok {
		return g + " " + text
	}
	return text
}

// StatusGlyph returns the glyph for a reference status: "normal", "low",
// "high", "missing" or "not_applicable".
func StatusGlyph(status string) string {
	switch status {
	case "normal":
		return Normal
	case "low":
		return Low
	case "high":
		return High
	case "missing":
		return Missing
	case "not_applicable":
		return NA
	}
	return "?"
}
