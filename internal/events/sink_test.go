package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/repository/memory"
)

func TestRecordingSinkPersistsAndPublishes(t *testing.T) {
	store := memory.New()
	dispatcher := NewInMemoryDispatcher(zap.NewNop())

	var published []Event
	dispatcher.Subscribe(domain.EventCardAssigned, func(_ context.Context, e Event) error {
		published = append(published, e)
		return nil
	})
	dispatcher.Subscribe(domain.EventCardAssigned, func(context.Context, Event) error {
		return errors.New("subscriber down")
	})

	sink := NewRecordingSink(store.Repos().Events, dispatcher, zap.NewNop())
	uid, member := "UID1", "member-1"
	event, err := sink.LogEvent(context.Background(), LogEventInput{
		BranchID: "branch-1",
		Type:     domain.EventCardAssigned,
		CardUID:  &uid,
		MemberID: &member,
	})
	require.NoError(t, err)
	require.NotEmpty(t, event.ID)
	assert.NotNil(t, event.Metadata)

	stored := store.Events()
	require.Len(t, stored, 1)
	assert.Equal(t, domain.EventCardAssigned, stored[0].Type)

	require.Len(t, published, 1)
	assert.Equal(t, event.ID, published[0].ID)
	assert.Equal(t, "UID1", *published[0].CardUID)
}

func TestRecordingSinkRejectsIncompleteInput(t *testing.T) {
	sink := NewRecordingSink(memory.New().Repos().Events, nil, nil)
	_, err := sink.LogEvent(context.Background(), LogEventInput{Type: domain.EventAccessAllow})
	assert.Error(t, err)
}

func TestDispatcherOnlyNotifiesMatchingType(t *testing.T) {
	dispatcher := NewInMemoryDispatcher(nil)
	calls := 0
	dispatcher.Subscribe(domain.EventAccessAllow, func(context.Context, Event) error {
		calls++
		return nil
	})

	require.NoError(t, dispatcher.Publish(context.Background(), Event{Type: domain.EventAccessDenyUnknown}))
	require.NoError(t, dispatcher.Publish(context.Background(), Event{Type: domain.EventAccessAllow}))
	assert.Equal(t, 1, calls)
}
