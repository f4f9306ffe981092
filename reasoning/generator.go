// Package reasoning renders a twin as bounded markdown for downstream LLM
// prompts. When the full render exceeds the token budget, content is removed
// in a fixed priority order so the output is deterministic for a given twin
// and budget.
package reasoning

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/teranos/healthtwin/biomarker"
	"github.com/teranos/healthtwin/logger"
	"github.com/teranos/healthtwin/twin"
)

// Domains always treated as primary. Every other domain is secondary and is
// truncated earlier.
var primaryDomains = []string{twin.DomainDemographics, twin.DomainBiomarkers, twin.DomainMedicalHistory}

// Config tunes rendering.
type Config struct {
	// MaxTokens is the budget used when Generate is called with maxTokens <= 0.
	MaxTokens     int
	CharsPerToken float64
	// HistoryLimit caps the older points listed under each field.
	HistoryLimit int
	// DomainOrder lists domains to render first, in order. Domains not listed
	// follow in lexical order.
	DomainOrder []string
	// StableThreshold is the percentage change below which a trend is "stable".
	StableThreshold float64
}

// DefaultConfig returns the default rendering configuration.
func DefaultConfig() Config {
	return Config{
		MaxTokens:       2000,
		CharsPerToken:   DefaultCharsPerToken,
		HistoryLimit:    5,
		DomainOrder:     slices.Clone(twin.KnownDomains),
		StableThreshold: 1.0,
	}
}

// Context is the result of Generate.
type Context struct {
	Text         string `json:"text"`
	Tokens       int    `json:"tokens"`
	MaxTokens    int    `json:"max_tokens"`
	Truncated    bool   `json:"truncated"`
	DroppedUnits int    `json:"dropped_units"`
}

// Generator renders one twin.
type Generator struct {
	twin     *twin.Twin
	registry *biomarker.Registry
	cfg      Config
	counter  *TokenCounter
	log      *zap.SugaredLogger
}

// Option configures a Generator.
type Option func(*Generator)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(g *Generator) { g.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(g *Generator) { g.log = l }
}

// NewGenerator returns a generator for t. registry may be nil, in which case
// biomarkers are rendered without reference ranges.
func NewGenerator(t *twin.Twin, registry *biomarker.Registry, opts ...Option) *Generator {
	g := &Generator{
		twin:     t,
		registry: registry,
		cfg:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.cfg.HistoryLimit < 0 {
		g.cfg.HistoryLimit = 0
	}
	g.counter = NewTokenCounter(g.cfg.CharsPerToken)
	g.log = logger.OrComponent(g.log, logger.ComponentReasoning)
	return g
}

// Counter returns the token counter used for budgeting.
func (g *Generator) Counter() *TokenCounter { return g.counter }

// GenerateText is Generate without the bookkeeping.
func (g *Generator) GenerateText(maxTokens int, includeDomains ...string) string {
	return g.Generate(maxTokens, includeDomains...).Text
}

// Generate renders the twin within maxTokens (the configured default when
// maxTokens <= 0). When includeDomains is non-empty only those domains are
// rendered, plus demographics; the completeness summary always covers every
// domain. If even the completeness summary alone exceeds the budget it is
// returned as is.
func (g *Generator) Generate(maxTokens int, includeDomains ...string) Context {
	if maxTokens <= 0 {
		maxTokens = g.cfg.MaxTokens
	}
	start := time.Now()

	doc := g.build(includeDomains)
	kept := make([]bool, len(doc.units))
	for i := range kept {
		kept[i] = true
	}

	text := doc.render(kept)
	tokens := g.counter.Count(text)
	dropped := 0
	for _, idx := range doc.dropOrder() {
		if tokens <= maxTokens {
			break
		}
		kept[idx] = false
		dropped++
		text = doc.render(kept)
		tokens = g.counter.Count(text)
	}

	g.log.Debugw("reasoning context generated",
		logger.FieldUserID, g.twin.UserID(),
		logger.FieldTokens, tokens,
		logger.FieldMaxTokens, maxTokens,
		logger.FieldDropped, dropped,
		logger.FieldDurationMS, time.Since(start).Milliseconds())

	return Context{
		Text:         text,
		Tokens:       tokens,
		MaxTokens:    maxTokens,
		Truncated:    dropped > 0,
		DroppedUnits: dropped,
	}
}

// domainView is a detached read of one domain.
type domainView struct {
	name   string
	domain *twin.Domain
}

func (g *Generator) snapshot() []domainView {
	names := g.twin.Domains()
	views := make([]domainView, 0, len(names))
	for _, name := range g.orderDomains(names) {
		d, err := g.twin.GetDomain(name)
		if err != nil {
			// Removed between Domains and GetDomain.
			continue
		}
		views = append(views, domainView{name: name, domain: d})
	}
	return views
}

func (g *Generator) orderDomains(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range g.cfg.DomainOrder {
		if slices.Contains(names, name) && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	rest := make([]string, 0, len(names))
	for _, name := range names {
		if !slices.Contains(out, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

func (g *Generator) build(include []string) *document {
	views := g.snapshot()
	doc := &document{header: g.header(views)}
	age, sex := subject(views)

	for _, v := range views {
		if len(include) > 0 && v.name != twin.DomainDemographics && !slices.Contains(include, v.name) {
			continue
		}
		s := section{title: title(v.name)}
		g.addDomain(doc, &s, v, age, sex)
		if len(s.units) > 0 {
			doc.sections = append(doc.sections, s)
		}
	}
	return doc
}

func (g *Generator) header(views []domainView) []string {
	lines := []string{
		"# Health context: " + g.twin.UserID(),
		"",
		"## Data completeness",
	}
	total, populated := 0, 0
	var perDomain []string
	for _, v := range views {
		n := v.domain.Len()
		p := len(v.domain.ListFields(twin.StatePopulated))
		total += n
		populated += p
		perDomain = append(perDomain, fmt.Sprintf("- %s: %.1f%% (%d of %d fields)", v.name, v.domain.Completeness(), p, n))
	}
	overall := 0.0
	if total > 0 {
		overall = float64(populated) / float64(total) * 100
	}
	lines = append(lines, fmt.Sprintf("Overall: %.1f%% (%d of %d fields)", overall, populated, total))
	return append(lines, perDomain...)
}

func (g *Generator) addDomain(doc *document, s *section, v domainView, age *float64, sex string) {
	primary := slices.Contains(primaryDomains, v.name)

	for i, name := range v.domain.ListFields(twin.StatePopulated) {
		f, _ := v.domain.GetField(name)
		latest, _ := f.Latest()

		class := classEntry
		if i > 0 {
			switch {
			case !primary:
				class = classSecondary
			case v.name == twin.DomainMedicalHistory:
				class = classMedicalDetail
			default:
				class = classDetail
			}
		}

		if v.name == twin.DomainBiomarkers {
			line, significance := g.biomarkerLines(f, latest, age, sex)
			doc.add(s, class, line)
			if significance != "" {
				doc.add(s, classDetail, "  "+significance)
			}
		} else {
			doc.add(s, class, fmt.Sprintf("- %s: %s (%s)", name, pointText(latest), date(latest)))
		}

		// Older points, newest first.
		older := f.Recent(g.cfg.HistoryLimit + 1)
		for j := len(older) - 2; j >= 0; j-- {
			doc.add(s, classOldHistory, fmt.Sprintf("  - %s: %s", date(older[j]), pointText(older[j])))
		}
	}

	if missing := v.domain.ListFields(twin.StateMissing); len(missing) > 0 {
		doc.add(s, classMissing, "- Missing: "+strings.Join(missing, ", "))
	}
	if na := v.domain.ListFields(twin.StateNotApplicable); len(na) > 0 {
		doc.add(s, classMissing, "- Not applicable: "+strings.Join(na, ", "))
	}
}

// biomarkerLines renders the entry line and the significance text.
func (g *Generator) biomarkerLines(f *twin.Field, latest twin.DataPoint, age *float64, sex string) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s: %s", f.Name(), pointText(latest))

	var significance string
	if value, ok := latest.Value().Float(); ok && g.registry != nil {
		if rng, ok := g.registry.GetReferenceRange(f.Name(), age, sex); ok {
			fmt.Fprintf(&b, ", %s (ref %s-%s)", biomarker.Classify(value, rng), num(rng.Min), num(rng.Max))
		}
		if meta, ok := g.registry.Get(f.Name()); ok {
			significance = meta.ClinicalSignificance
		}
	}
	if trend := g.trend(f); trend != "" {
		b.WriteString(", ")
		b.WriteString(trend)
	}
	fmt.Fprintf(&b, " (%s)", date(latest))
	return b.String(), significance
}

// trend compares the two most recent numeric points.
func (g *Generator) trend(f *twin.Field) string {
	recent := f.Recent(2)
	if len(recent) < 2 {
		return ""
	}
	prev, ok1 := recent[0].Value().Float()
	curr, ok2 := recent[1].Value().Float()
	if !ok1 || !ok2 {
		return ""
	}
	return TrendPhrase(prev, curr, g.cfg.StableThreshold) + " since " + date(recent[0])
}

// TrendPhrase describes the change from prev to curr. Changes smaller than
// stablePct percent are "stable". A zero baseline reports the absolute change.
func TrendPhrase(prev, curr, stablePct float64) string {
	if prev == 0 {
		switch {
		case curr > 0:
			return "increasing (+" + num(curr) + ")"
		case curr < 0:
			return "decreasing (" + num(curr) + ")"
		default:
			return "stable"
		}
	}
	pct := (curr - prev) / math.Abs(prev) * 100
	switch {
	case math.Abs(pct) < stablePct:
		return "stable"
	case pct > 0:
		return fmt.Sprintf("increasing (+%.1f%%)", pct)
	default:
		return fmt.Sprintf("decreasing (%.1f%%)", pct)
	}
}

func subject(views []domainView) (*float64, string) {
	var (
		age *float64
		sex string
	)
	for _, v := range views {
		if v.name != twin.DomainDemographics {
			continue
		}
		if f, ok := v.domain.GetField("age"); ok {
			if p, ok := f.Latest(); ok {
				if a, ok := p.Value().Float(); ok {
					age = &a
				}
			}
		}
		if f, ok := v.domain.GetField("sex"); ok {
			if p, ok := f.Latest(); ok {
				sex, _ = p.Value().Str()
			}
		}
	}
	return age, sex
}

func pointText(p twin.DataPoint) string {
	if p.Unit() == "" {
		return p.Value().String()
	}
	return p.Value().String() + " " + p.Unit()
}

func date(p twin.DataPoint) string {
	return p.Timestamp().Format(time.DateOnly)
}

func num(f float64) string {
	return twin.Number(f).String()
}

// title turns "medical_history" into "Medical history".
func title(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
