package slack

import (
	"fmt"
	"math"
	"strings"

	goslack "github.com/slack-go/slack"
)

const (
	maxBlockTextLength = 2900
	maxQuestionExcerpt = 200
	maxDissentItems    = 3
)

var stateEmoji = map[string]string{
	"complete":      ":white_check_mark:",
	"aborted":       ":no_entry_sign:",
	"timed_out":     ":hourglass:",
	"cost_rejected": ":moneybag:",
}

var stateLabel = map[string]string{
	"complete":      "Consultation Complete",
	"aborted":       "Consultation Aborted",
	"timed_out":     "Consultation Timed Out",
	"cost_rejected": "Consultation Rejected by Cost Gate",
}

func consultationURL(consultationID, dashboardURL string) string {
	return fmt.Sprintf("%s/consultations/%s", dashboardURL, consultationID)
}

// BuildVerdictMessage creates Block Kit blocks for a terminal consultation
// notification.
func BuildVerdictMessage(input ConsultationCompletedInput, dashboardURL string) []goslack.Block {
	emoji := stateEmoji[input.State]
	if emoji == "" {
		emoji = ":question:"
	}
	label := stateLabel[input.State]
	if label == "" {
		label = "Consultation " + input.State
	}

	headerText := fmt.Sprintf("%s *%s*", emoji, label)
	if input.Question != "" {
		headerText += fmt.Sprintf("\n> %s", questionExcerpt(input.Question))
	}

	var blocks []goslack.Block

	if input.State == "complete" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		))
		if input.Recommendation != "" {
			blocks = append(blocks, goslack.NewSectionBlock(
				goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(input.Recommendation), false, false),
				nil, nil,
			))
		}
		if meta := verdictMeta(input); meta != "" {
			blocks = append(blocks, goslack.NewSectionBlock(
				goslack.NewTextBlockObject(goslack.MarkdownType, meta, false, false),
				nil, nil,
			))
		}
	} else {
		if input.ErrorMessage != "" {
			headerText += fmt.Sprintf("\n\n*Error:*\n%s", truncateForSlack(input.ErrorMessage))
		}
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		))
	}

	url := consultationURL(input.ConsultationID, dashboardURL)
	buttonText := "View Full Verdict"
	if input.State != "complete" {
		buttonText = "View Details"
	}

	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, buttonText, false, false))
	btn.URL = url
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

// verdictMeta renders confidence, cost, and dissent as a single markdown
// section. Returns empty string when none are present.
func verdictMeta(input ConsultationCompletedInput) string {
	var lines []string
	if input.Confidence != nil {
		lines = append(lines, fmt.Sprintf("*Confidence:* %d%%", int(math.Round(*input.Confidence*100))))
	}
	if input.CostUSD > 0 {
		lines = append(lines, fmt.Sprintf("*Cost:* $%.4f", input.CostUSD))
	}
	if len(input.Dissent) > 0 {
		lines = append(lines, "*Dissent:*")
		shown := input.Dissent
		if len(shown) > maxDissentItems {
			shown = shown[:maxDissentItems]
		}
		for _, d := range shown {
			lines = append(lines, fmt.Sprintf("• %s", questionExcerpt(d)))
		}
		if len(input.Dissent) > maxDissentItems {
			lines = append(lines, fmt.Sprintf("_... and %d more_", len(input.Dissent)-maxDissentItems))
		}
	}
	return strings.Join(lines, "\n")
}

func questionExcerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxQuestionExcerpt {
		return text
	}
	return string(runes[:maxQuestionExcerpt]) + "..."
}

func truncateForSlack(text string) string {
	runes := []rune(text)
	if len(runes) <= maxBlockTextLength {
		return text
	}
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated — view full verdict in dashboard)_"
}
