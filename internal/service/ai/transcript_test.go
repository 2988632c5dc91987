package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
	"github.com/zhouzirui/z-haven/backend/internal/model/locale"
)

func transcript(texts ...string) []chat.Message {
	out := make([]chat.Message, 0, len(texts))
	for i, text := range texts {
		direction := chat.Incoming
		if i%2 == 1 {
			direction = chat.Outgoing
		}
		out = append(out, chat.Message{Direction: direction, Text: text})
	}
	return out
}

func TestBuildConversationPromptEnglish(t *testing.T) {
	got := BuildConversationPrompt(locale.English, transcript("hi", "hello, how can I help?", "What's a good recipe for pasta?"), 0)

	want := "Please respond to this conversation with empathy and clarity in English:\n\n" +
		"User: hi\nBot: hello, how can I help?\nUser: What's a good recipe for pasta?\n\n" +
		"Give a helpful and supportive response."
	require.Equal(t, want, got)
}

func TestBuildConversationPromptTamilLabels(t *testing.T) {
	got := BuildConversationPrompt(locale.Tamil, transcript("வணக்கம்", "hello"), 0)
	catalog := locale.Tamil.Catalog()
	require.True(t, strings.HasPrefix(got, catalog.PromptPreamble))
	require.Contains(t, got, catalog.UserLabel+": வணக்கம்")
	require.Contains(t, got, "Bot: hello")
}

func TestBuildConversationPromptKeepsMostRecentInOrder(t *testing.T) {
	got := BuildConversationPrompt(locale.English, transcript("one", "two", "three", "four", "five"), 3)
	require.NotContains(t, got, "User: one")
	require.NotContains(t, got, "Bot: two")
	require.Less(t, strings.Index(got, "User: three"), strings.Index(got, "Bot: four"))
	require.Less(t, strings.Index(got, "Bot: four"), strings.Index(got, "User: five"))
}
