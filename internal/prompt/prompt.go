// Package prompt assembles the completion prompt from the persona, retrieved
// memories, recent history and the live user message.
//
// Order is fixed: persona first so its constraints survive context
// truncation, then long-term memories, then short-term history, then the
// live turn closest to the generation point.
package prompt

import (
	"strings"

	"github.com/ent0n29/mugate/internal/session"
)

// NoMemories replaces an empty memory block.
const NoMemories = "None found."

// Persona is the fixed instruction block prepended to every prompt.
type Persona struct {
	// Name labels assistant lines in history and the open reply cue.
	Name         string
	Instructions string
	// HistoryPreamble is emitted under the history header before the turns.
	HistoryPreamble string
}

func (p Persona) speaker() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return "Assistant"
}

// Assemble renders the full prompt.
func Assemble(p Persona, memories []string, history []session.Turn, userMessage string) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(p.Instructions))
	b.WriteString("\n\nRelevant past memories:\n")
	b.WriteString(RenderMemories(memories))
	b.WriteString("\n\nPrevious conversation:\n")
	if preamble := strings.TrimSpace(p.HistoryPreamble); preamble != "" {
		b.WriteString(preamble)
		b.WriteString("\n")
	}
	b.WriteString(RenderHistory(p, history))
	b.WriteString("\n\nUser: ")
	b.WriteString(userMessage)
	b.WriteString("\n")
	b.WriteString(p.speaker())
	b.WriteString(":")
	return b.String()
}

// RenderMemories joins memories with blank lines in retrieval order.
func RenderMemories(memories []string) string {
	kept := make([]string, 0, len(memories))
	for _, m := range memories {
		if strings.TrimSpace(m) == "" {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) == 0 {
		return NoMemories
	}
	return strings.Join(kept, "\n\n")
}

// RenderHistory renders turns oldest first as alternating user/assistant lines.
func RenderHistory(p Persona, history []session.Turn) string {
	lines := make([]string, 0, len(history)*2)
	for _, t := range history {
		lines = append(lines, "User: "+t.User, p.speaker()+": "+t.AI)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// TurnText is the text stored and embedded for a completed exchange.
func TurnText(p Persona, userMessage, reply string) string {
	return "User: " + userMessage + "\n" + p.speaker() + ": " + reply
}
