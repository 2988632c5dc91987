package chat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	model "github.com/zhouzirui/z-haven/backend/internal/model/chat"
	chat "github.com/zhouzirui/z-haven/backend/internal/service/chat"
)

func TestServiceAppendListPreservesOrder(t *testing.T) {
	req := require.New(t)
	svc := chat.NewService(chat.NewMemoryStore(), zap.NewNop())
	ctx := context.Background()

	texts := []string{"hello", "hi, how can I help?", "just checking in"}
	directions := []model.Direction{model.Incoming, model.Outgoing, model.Incoming}
	for i, text := range texts {
		_, err := svc.Append(ctx, "owner-1", directions[i], text)
		req.NoError(err)
	}
	_, err := svc.Append(ctx, "owner-2", model.Incoming, "someone else")
	req.NoError(err)

	got, err := svc.ListByOwner(ctx, "owner-1")
	req.NoError(err)
	req.Len(got, 3)
	for i := range texts {
		req.Equal(texts[i], got[i].Text)
		req.Equal(directions[i], got[i].Direction)
		req.NotEmpty(got[i].ID)
		if i > 0 {
			req.True(got[i].CreatedAt.After(got[i-1].CreatedAt))
		}
	}
}

func TestServiceRejectsInvalidInput(t *testing.T) {
	svc := chat.NewService(chat.NewMemoryStore(), zap.NewNop())
	ctx := context.Background()

	_, err := svc.Append(ctx, "", model.Incoming, "x")
	require.ErrorIs(t, err, model.ErrOwnerRequired)

	_, err = svc.Append(ctx, "owner", model.Direction("sideways"), "x")
	require.ErrorIs(t, err, model.ErrInvalidDirection)
}

func TestServiceClearRemovesOnlyOwner(t *testing.T) {
	req := require.New(t)
	svc := chat.NewService(chat.NewMemoryStore(), zap.NewNop())
	ctx := context.Background()

	_, _ = svc.Append(ctx, "a", model.Incoming, "one")
	_, _ = svc.Append(ctx, "b", model.Incoming, "two")
	req.NoError(svc.Clear(ctx, "a"))

	got, err := svc.ListByOwner(ctx, "a")
	req.NoError(err)
	req.Empty(got)

	got, err = svc.ListByOwner(ctx, "b")
	req.NoError(err)
	req.Len(got, 1)
}

func TestServiceSubscribeDeliversEventsUntilUnsubscribed(t *testing.T) {
	req := require.New(t)
	svc := chat.NewService(chat.NewMemoryStore(), zap.NewNop())
	ctx := context.Background()

	var events []model.Event
	unsubscribe := svc.Subscribe("owner", func(e model.Event) { events = append(events, e) })
	req.Equal(1, svc.Subscribers("owner"))

	_, _ = svc.Append(ctx, "owner", model.Incoming, "hello")
	_, _ = svc.Append(ctx, "other", model.Incoming, "not mine")
	req.NoError(svc.Clear(ctx, "owner"))

	req.Len(events, 2)
	req.Equal(model.EventAppended, events[0].Kind)
	req.Equal("hello", events[0].Message.Text)
	req.Equal(model.EventCleared, events[1].Kind)

	unsubscribe()
	unsubscribe()
	req.Equal(0, svc.Subscribers("owner"))

	_, _ = svc.Append(ctx, "owner", model.Incoming, "after")
	req.Len(events, 2)
}

func TestServiceSurvivesPanickingSubscriber(t *testing.T) {
	req := require.New(t)
	svc := chat.NewService(chat.NewMemoryStore(), zap.NewNop())

	delivered := false
	svc.Subscribe("owner", func(model.Event) { panic("boom") })
	svc.Subscribe("owner", func(model.Event) { delivered = true })

	_, err := svc.Append(context.Background(), "owner", model.Incoming, "hello")
	req.NoError(err)
	req.True(delivered)
}
