package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChatModel struct {
	reply  string
	err    error
	inputs [][]*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeChatModel) BindTools(_ []*schema.ToolInfo) error { return nil }

func TestCompletePassesPromptVerbatim(t *testing.T) {
	req := require.New(t)
	fake := &fakeChatModel{reply: "Try a simple aglio e olio."}
	svc, err := NewService(context.Background(), fake, zap.NewNop())
	req.NoError(err)

	prompt := "User: What's a good recipe for pasta? {not a placeholder}"
	got, err := svc.Complete(context.Background(), prompt)
	req.NoError(err)
	req.Equal("Try a simple aglio e olio.", got)

	req.Len(fake.inputs, 1)
	req.Len(fake.inputs[0], 1)
	req.Equal(schema.User, fake.inputs[0][0].Role)
	req.Equal(prompt, fake.inputs[0][0].Content)
}

func TestCompleteErrors(t *testing.T) {
	svc, err := NewService(context.Background(), &fakeChatModel{err: errors.New("boom")}, zap.NewNop())
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), "hi")
	require.Error(t, err)

	svc, err = NewService(context.Background(), &fakeChatModel{reply: "   "}, zap.NewNop())
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), "hi")
	require.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestNewServiceRequiresModel(t *testing.T) {
	_, err := NewService(context.Background(), nil, zap.NewNop())
	require.Error(t, err)
}
