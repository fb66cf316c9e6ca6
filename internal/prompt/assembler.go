// Package prompt assembles retrieved knowledge into the context fragment
// appended to a persona's system prompt. Assembly is pure: the same bundle
// and options always render the same text, and nothing here touches the
// network or the clock.
package prompt

import (
	"fmt"
	"strings"

	"github.com/adab-ai/adab-go/internal/rag"
)

// Block labels. They appear verbatim in the rendered system prompt so the
// model can tell the knowledge classes apart.
const (
	LabelGuidelines       = "RELEVANT COACHING GUIDELINES"
	LabelBookSections     = "RELEVANT BOOK INSIGHTS"
	LabelNegativeExamples = "RESPONSES TO AVOID"
)

// sourceNote instructs the model to use book material without citing it.
// Appended to the book block whenever attribution is withheld.
const sourceNote = "Use these insights naturally in your response. Do not mention the books, authors, or any other sources."

// Options controls prompt assembly policy.
type Options struct {
	// WithholdAttribution suppresses book title, author, and chapter in the
	// rendered book block and appends the source note instead.
	WithholdAttribution bool

	// Culture, when set to a non-general audience label, adds a cultural
	// adaptation instruction to the fragment.
	Culture string
}

// Block is one labeled section of the assembled fragment.
type Block struct {
	// Label is the section heading.
	Label string
	// Body is the rendered section content. Empty when the collection
	// matched nothing.
	Body string
}

// Fragment is the assembled context, ready to append to a system prompt.
type Fragment struct {
	// Instruction is the cultural adaptation preamble. Empty for a general
	// audience.
	Instruction string
	// Blocks are the labeled knowledge sections in fixed order:
	// guidelines, book insights, responses to avoid.
	Blocks []Block
}

// Empty reports whether the fragment carries no knowledge and no instruction.
func (f *Fragment) Empty() bool {
	if f.Instruction != "" {
		return false
	}
	for _, b := range f.Blocks {
		if b.Body != "" {
			return false
		}
	}
	return true
}

// Render flattens the fragment into the text appended to the system prompt.
// Every block renders its label even when the collection matched nothing, so
// the prompt shape stays identical across rounds with varying recall.
func (f *Fragment) Render() string {
	var sections []string
	if f.Instruction != "" {
		sections = append(sections, f.Instruction)
	}
	for _, b := range f.Blocks {
		if b.Body == "" {
			sections = append(sections, b.Label+": (none)")
			continue
		}
		sections = append(sections, b.Label+":\n"+b.Body)
	}
	return strings.Join(sections, "\n\n")
}

// Assemble builds the context fragment for one retrieval bundle. Item order
// within each block follows the bundle (highest similarity first).
func Assemble(bundle *rag.Bundle, opts Options) Fragment {
	f := Fragment{
		Blocks: []Block{
			{Label: LabelGuidelines, Body: renderGuidelines(bundle.Guidelines)},
			{Label: LabelBookSections, Body: renderBookSections(bundle.BookSections, opts.WithholdAttribution)},
			{Label: LabelNegativeExamples, Body: renderNegativeExamples(bundle.NegativeExamples)},
		},
	}
	if opts.Culture != "" && opts.Culture != rag.GeneralCulture {
		f.Instruction = culturalInstruction(opts.Culture)
	}
	return f
}

// culturalInstruction renders the interaction guidance for a specific
// cultural audience: honorifics, face-saving refusals, warm closings.
func culturalInstruction(culture string) string {
	honorifics := "culturally appropriate honorifics"
	switch culture {
	case "Malay", "Malaysian Chinese", "Malaysian Indian":
		honorifics = "formal Malaysian honorifics (Encik/Puan/Tuan) when appropriate"
	}
	return fmt.Sprintf(
		"The user's cultural background is %s. When interacting with the user:\n"+
			"- Use %s, especially at conversation start\n"+
			"- Use indirect, face-saving language for refusals; avoid a blunt \"I cannot\"\n"+
			"- End conversations with warm, polite closings beyond a simple thank you\n"+
			"- Never make assumptions based on ethnicity, religion, or cultural background\n"+
			"- Adapt formality to the user's language style while keeping respectful boundaries",
		culture, honorifics)
}

// renderGuidelines lists guidelines as bullets, prefixed with their category
// when present.
func renderGuidelines(items []rag.KnowledgeItem) string {
	var b strings.Builder
	for _, item := range items {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		if cat := item.Metadata[rag.FieldCategory]; cat != "" {
			fmt.Fprintf(&b, "- [%s] %s", cat, item.Content)
		} else {
			fmt.Fprintf(&b, "- %s", item.Content)
		}
	}
	return b.String()
}

// renderBookSections lists book excerpts. With attribution, each excerpt is
// introduced by its title, author, and chapter; without, excerpts are bare
// and the source note is appended.
func renderBookSections(items []rag.KnowledgeItem, withholdAttribution bool) string {
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	for _, item := range items {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		if withholdAttribution {
			fmt.Fprintf(&b, "- %s", item.Content)
			continue
		}
		fmt.Fprintf(&b, "- %s%s", attribution(item.Metadata), item.Content)
	}
	if withholdAttribution {
		b.WriteString("\n(" + sourceNote + ")")
	}
	return b.String()
}

// attribution formats the "From "title" by author, chapter: " lead-in from
// whatever metadata the item carries.
func attribution(meta map[string]string) string {
	title := meta["book_title"]
	if title == "" {
		return ""
	}
	lead := fmt.Sprintf("From %q", title)
	if author := meta["author"]; author != "" {
		lead += " by " + author
	}
	if chapter := meta["chapter"]; chapter != "" {
		lead += ", " + chapter
	}
	return lead + ": "
}

// renderNegativeExamples lists responses the model must not produce.
func renderNegativeExamples(items []rag.KnowledgeItem) string {
	var b strings.Builder
	for _, item := range items {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s", item.Content)
	}
	return b.String()
}
