package ai

import (
	"strings"

	"github.com/samber/lo"

	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
	"github.com/zhouzirui/z-haven/backend/internal/model/locale"
)

// BuildConversationPrompt renders the visible transcript, oldest first, between the locale's
// preamble and closing line. Each turn is tagged with the locale's speaker label. limit keeps
// only the most recent turns; zero or less keeps everything.
func BuildConversationPrompt(loc locale.Locale, messages []chat.Message, limit int) string {
	catalog := loc.Catalog()

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	lines := lo.Map(messages, func(msg chat.Message, _ int) string {
		label := catalog.BotLabel
		if msg.Direction == chat.Incoming {
			label = catalog.UserLabel
		}
		return label + ": " + msg.Text
	})

	var builder strings.Builder
	builder.WriteString(catalog.PromptPreamble)
	builder.WriteString("\n\n")
	builder.WriteString(strings.Join(lines, "\n"))
	builder.WriteString("\n\n")
	builder.WriteString(catalog.PromptClosing)
	return builder.String()
}
