package classifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-haven/backend/internal/analysis/crisis"
	"github.com/zhouzirui/z-haven/backend/internal/model/triage"
)

type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
	last    []*schema.Message
	temps   []*float32
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.last = input
	m.temps = append(m.temps, model.GetCommonOptions(&model.Options{}, opts...).Temperature)
	if m.err != nil {
		return nil, m.err
	}
	reply := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return schema.AssistantMessage(reply, nil), nil
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *scriptedModel) BindTools(_ []*schema.ToolInfo) error { return nil }

func newService(t *testing.T, m model.ChatModel, cfg Config) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), m, cfg, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestClassifyParsesJSONAndBareLabels(t *testing.T) {
	cases := []struct {
		reply string
		want  triage.Category
	}{
		{`{"category":"distress","reason":"user feels low"}`, triage.Distress},
		{"```json\n{\"category\": \"Emergency\", \"reason\": \"risk\"}\n```", triage.Emergency},
		{"neutral", triage.Neutral},
		{" Neutral.", triage.Neutral},
	}
	for _, tc := range cases {
		reply, want := tc.reply, tc.want
		m := &scriptedModel{replies: []string{reply}}
		got, err := newService(t, m, Config{}).Classify(context.Background(), "some text")
		require.NoError(t, err, reply)
		require.Equal(t, want, got, reply)
	}
}

func TestClassifyNeverDefaultsToNeutral(t *testing.T) {
	for _, m := range []*scriptedModel{
		{err: errors.New("upstream timeout")},
		{replies: []string{""}},
		{replies: []string{"I am not sure"}},
		{replies: []string{`{"category":"maybe"}`}},
		{replies: []string{`{"category":`}},
	} {
		got, err := newService(t, m, Config{}).Classify(context.Background(), "hello")
		require.ErrorIs(t, err, ErrClassificationFailure)
		require.Empty(t, got)
	}

	_, err := newService(t, &scriptedModel{replies: []string{"neutral"}}, Config{}).Classify(context.Background(), "   ")
	require.ErrorIs(t, err, ErrClassificationFailure)
}

func TestClassifyUsesTemperatureZeroAndSendsMessage(t *testing.T) {
	m := &scriptedModel{replies: []string{"neutral"}}
	_, err := newService(t, m, Config{}).Classify(context.Background(), "What's a good recipe for pasta?")
	require.NoError(t, err)

	require.Len(t, m.last, 2)
	require.Equal(t, schema.System, m.last[0].Role)
	require.Contains(t, m.last[1].Content, "What's a good recipe for pasta?")
	require.NotNil(t, m.temps[0])
	require.Zero(t, *m.temps[0])
}

func TestClassifyCachesVerdictPerNormalizedText(t *testing.T) {
	m := &scriptedModel{replies: []string{"distress", "neutral"}}
	svc := newService(t, m, Config{CacheTTL: time.Minute})

	first, err := svc.Classify(context.Background(), "I feel really down lately")
	require.NoError(t, err)
	second, err := svc.Classify(context.Background(), "  i feel REALLY down   lately ")
	require.NoError(t, err)

	require.Equal(t, triage.Distress, first)
	require.Equal(t, first, second)
	require.Equal(t, 1, m.calls)
}

func TestClassifyDoesNotCacheFailures(t *testing.T) {
	m := &scriptedModel{replies: []string{"garbage", "distress"}}
	svc := newService(t, m, Config{CacheTTL: time.Minute})

	_, err := svc.Classify(context.Background(), "help")
	require.ErrorIs(t, err, ErrClassificationFailure)
	got, err := svc.Classify(context.Background(), "help")
	require.NoError(t, err)
	require.Equal(t, triage.Distress, got)
}

func TestLexiconShortCircuitsEmergency(t *testing.T) {
	screen, err := crisis.NewScreen(nil)
	require.NoError(t, err)

	m := &scriptedModel{replies: []string{"neutral"}}
	svc := newService(t, m, Config{Screen: screen})

	got, err := svc.Classify(context.Background(), "I want to end my life")
	require.NoError(t, err)
	require.Equal(t, triage.Emergency, got)
	require.Zero(t, m.calls)

	got, err = svc.Classify(context.Background(), "I want to diet before summer")
	require.NoError(t, err)
	require.Equal(t, triage.Neutral, got)
	require.Equal(t, 1, m.calls)
}
