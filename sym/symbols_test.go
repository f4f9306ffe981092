package sym

import (
	"testing"
	"unicode/utf8"
)

func TestSymbolToCommandAndCommandToSymbolAreBidirectional(t *testing.T) {
	for symbol, cmd := range SymbolToCommand {
		got, ok := CommandToSymbol[cmd]
		if !ok {
			t.Errorf("SymbolToCommand has %q → %q, but CommandToSymbol has no entry for %q", symbol, cmd, cmd)
			continue
		}
		if got != symbol {
			t.Errorf("bidirectional mismatch: SymbolToCommand[%q] = %q, but CommandToSymbol[%q] = %q", symbol, cmd, cmd, got)
		}
	}
}

func TestMapsHaveSameSize(t *testing.T) {
	if len(SymbolToCommand) != len(CommandToSymbol) {
		t.Errorf("map size mismatch: SymbolToCommand has %d entries, CommandToSymbol has %d",
			len(SymbolToCommand), len(CommandToSymbol))
	}
	if len(Commands) != len(CommandToSymbol) {
		t.Errorf("Commands has %d entries, CommandToSymbol has %d", len(Commands), len(CommandToSymbol))
	}
}

func TestCommandDescriptionsCoversAllCommands(t *testing.T) {
	for _, cmd := range Commands {
		if _, ok := CommandDescriptions[cmd]; !ok {
			t.Errorf("CommandDescriptions missing entry for command %q", cmd)
		}
	}
}

func TestSymbolsAreValidUnicode(t *testing.T) {
	for symbol := range SymbolToCommand {
		if !utf8.ValidString(symbol) || utf8.RuneCountInString(symbol) != 1 {
			t.Errorf("symbol %q for command %q is not a single rune", symbol, SymbolToCommand[symbol])
		}
	}
}

func TestShort(t *testing.T) {
	if got := Short("am", "Manage configuration"); got != AM+" Manage configuration" {
		t.Errorf("Short(am) = %q", got)
	}
	if got := Short("unknown", "text"); got != "text" {
		t.Errorf("Short(unknown) = %q", got)
	}
}

func TestStatusGlyph(t *testing.T) {
	cases := map[string]string{
		"normal":         Normal,
		"low":            Low,
		"high":           High,
		"missing":        Missing,
		"not_applicable": NA,
		"bogus":          "?",
	}
	for status, want := range cases {
		if got := StatusGlyph(status); got != want {
			t.Errorf("StatusGlyph(%q) = %q, want %q", status, got, want)
		}
	}
}
