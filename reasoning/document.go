package reasoning

import (
	"cmp"
	"slices"
	"strings"
)

// dropClass orders render units for truncation: lower classes go first.
type dropClass int

const (
	classMissing       dropClass = iota // missing and not-applicable listings
	classOldHistory                     // points older than a field's latest
	classSecondary                      // secondary domain entries beyond the first
	classMedicalDetail                  // medical history entries beyond the first
	classDetail                         // significance text, further primary entries
	classEntry                          // the first entry of each domain
)

type unit struct {
	class dropClass
	text  string
}

type section struct {
	title string
	units []int
}

// document is the full render split into droppable units. The header is always
// kept.
type document struct {
	header   []string
	sections []section
	units    []unit
}

func (d *document) add(s *section, class dropClass, text string) {
	s.units = append(s.units, len(d.units))
	d.units = append(d.units, unit{class: class, text: text})
}

// render joins the kept units. A section whose units are all dropped loses its
// heading too.
func (d *document) render(kept []bool) string {
	var b strings.Builder
	b.WriteString(strings.Join(d.header, "\n"))
	for _, s := range d.sections {
		var lines []string
		for _, idx := range s.units {
			if kept[idx] {
				lines = append(lines, d.units[idx].text)
			}
		}
		if len(lines) == 0 {
			continue
		}
		b.WriteString("\n\n## ")
		b.WriteString(s.title)
		b.WriteString("\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	b.WriteString("\n")
	return b.String()
}

// dropOrder lists unit indices in the order they are removed: by class, then
// from the end of the document backwards.
func (d *document) dropOrder() []int {
	order := make([]int, len(d.units))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		if c := cmp.Compare(d.units[a].class, d.units[b].class); c != 0 {
			return c
		}
		return cmp.Compare(b, a)
	})
	return order
}
