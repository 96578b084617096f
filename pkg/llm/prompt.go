package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mchmarny/permitctl/pkg/score"
)

const systemPrompt = "You are a City of Denver permitting assistant. You review food truck permit applications " +
	"for completeness and compliance and explain your findings to a human reviewer. Be concise and factual."

// ExplainPrompt renders the user prompt for Explain.
func ExplainPrompt(app score.Application, card *score.Scorecard, regulations []string) (string, error) {
	if card == nil {
		return "", fmt.Errorf("%w: scorecard is required", score.ErrInvalidInput)
	}

	b, err := json.MarshalIndent(app, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding application: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Review the following food truck permit application for completeness and compliance.\n\n")
	sb.WriteString("APPLICATION DATA:\n")
	sb.Write(b)
	fmt.Fprintf(&sb, "\n\nSCORECARD:\nCompleteness: %d%%\nCompliance: %d%%\nRisk: %s\nDecision: %s\n",
		card.Completeness, card.Compliance, card.Risk, card.Decision())

	writeRegulations(&sb, regulations)
	return sb.String(), nil
}

// AskPrompt appends the retrieved regulations to a free-form question.
func AskPrompt(prompt string, regulations []string) string {
	var sb strings.Builder
	sb.WriteString(prompt)
	writeRegulations(&sb, regulations)
	return sb.String()
}

func writeRegulations(sb *strings.Builder, regulations []string) {
	if len(regulations) == 0 {
		return
	}
	sb.WriteString("\n\nRELEVANT DENVER REGULATIONS:\n")
	sb.WriteString(strings.Join(regulations, "\n\n"))
	sb.WriteString("\n\nBase your response on the regulations provided above.")
}
