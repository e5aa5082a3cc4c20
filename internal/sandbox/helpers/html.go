package helpers

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// HTML builds markup fragments for script output. Inputs are escaped during
// construction and the finished fragment is run through a bluemonday policy
// restricted to the elements this builder emits, so a helper can never be
// turned into a script-injection vector.
type HTML struct {
	policy *bluemonday.Policy
}

// NewHTML creates a builder with the sanitization policy applied to all
// generated fragments.
func NewHTML() *HTML {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "i", "u", "span", "div", "table", "thead", "tbody", "tr", "th", "td", "ul", "ol", "li")
	p.AllowAttrs("class").OnElements("span", "div")
	return &HTML{policy: p}
}

// Bold wraps text in <b>.
func (h *HTML) Bold(text string) string {
	return h.policy.Sanitize("<b>" + html.EscapeString(text) + "</b>")
}

// Italic wraps text in <i>.
func (h *HTML) Italic(text string) string {
	return h.policy.Sanitize("<i>" + html.EscapeString(text) + "</i>")
}

// Underline wraps text in <u>.
func (h *HTML) Underline(text string) string {
	return h.policy.Sanitize("<u>" + html.EscapeString(text) + "</u>")
}

// Highlight wraps text in a span carrying a severity class. The class is
// restricted to the ClassifyRange label set; anything else becomes "normal".
func (h *HTML) Highlight(text, severity string) string {
	switch severity {
	case SeverityCriticalLow, SeverityLow, SeverityNormal, SeverityHigh, SeverityCriticalHigh:
	default:
		severity = SeverityNormal
	}
	return h.policy.Sanitize(`<span class="` + severity + `">` + html.EscapeString(text) + `</span>`)
}

// Alert builds a classed div for inline callouts. Severity is restricted to
// info, warning, danger.
func (h *HTML) Alert(text, severity string) string {
	switch severity {
	case "info", "warning", "danger":
	default:
		severity = "info"
	}
	return h.policy.Sanitize(`<div class="alert alert-` + severity + `">` + html.EscapeString(text) + `</div>`)
}

// List builds an ordered or unordered list from items.
func (h *HTML) List(items []string, ordered bool) string {
	tag := "ul"
	if ordered {
		tag = "ol"
	}

	var b strings.Builder
	b.WriteString("<" + tag + ">")
	for _, item := range items {
		b.WriteString("<li>" + html.EscapeString(item) + "</li>")
	}
	b.WriteString("</" + tag + ">")
	return h.policy.Sanitize(b.String())
}

// Table builds a table with an optional header row.
func (h *HTML) Table(header []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString("<table>")

	if len(header) > 0 {
		b.WriteString("<thead><tr>")
		for _, cell := range header {
			b.WriteString("<th>" + html.EscapeString(cell) + "</th>")
		}
		b.WriteString("</tr></thead>")
	}

	b.WriteString("<tbody>")
	for _, row := range rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			b.WriteString("<td>" + html.EscapeString(cell) + "</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")

	return h.policy.Sanitize(b.String())
}
