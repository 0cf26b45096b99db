package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tOgg1/tasker/internal/models"
)

func TestEventRepositoryCreateAndQuery(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	repo := NewEventRepository(database)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	event := &models.Event{
		Type:       models.EventTypeMessageReadFailed,
		EntityType: models.EntityTypeMessage,
		EntityID:   "12",
		Timestamp:  base,
		Payload:    json.RawMessage(`{"partner_id":2,"error":"boom"}`),
		Metadata:   map[string]string{"source": "test"},
	}
	if err := repo.Create(ctx, event); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if event.ID == "" {
		t.Fatal("Create did not set event ID")
	}

	page, err := repo.Query(ctx, EventQuery{Type: &event.Type, Limit: 10})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(page.Events))
	}
	got := page.Events[0]
	if got.EntityID != "12" || !got.Timestamp.Equal(base) {
		t.Fatalf("unexpected event fields: %+v", got)
	}
	if string(got.Payload) != string(event.Payload) {
		t.Fatalf("unexpected payload: %s", string(got.Payload))
	}
	if got.Metadata["source"] != "test" {
		t.Fatalf("unexpected metadata: %+v", got.Metadata)
	}

	fetched, err := repo.Get(ctx, event.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.Type != models.EventTypeMessageReadFailed {
		t.Fatalf("unexpected type %q", fetched.Type)
	}
}

func TestEventRepositoryRejectsInvalid(t *testing.T) {
	database := setupTestDB(t)

	repo := NewEventRepository(database)
	err := repo.Create(context.Background(), &models.Event{Type: models.EventTypeInboxLoaded})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestEventRepositoryPaginationAndPrune(t *testing.T) {
	ctx := context.Background()
	database := setupTestDB(t)

	repo := NewEventRepository(database)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := repo.Create(ctx, &models.Event{
			Type:       models.EventTypeInboxUpdated,
			EntityType: models.EntityTypeInbox,
			EntityID:   "1",
			Timestamp:  base.Add(time.Duration(i) * time.Millisecond),
		})
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	first, err := repo.Query(ctx, EventQuery{Limit: 3})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(first.Events) != 3 || first.NextCursor == "" {
		t.Fatalf("unexpected first page: %d events, cursor %q", len(first.Events), first.NextCursor)
	}
	second, err := repo.Query(ctx, EventQuery{Limit: 3, Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("Query page 2: %v", err)
	}
	if len(second.Events) != 2 || second.NextCursor != "" {
		t.Fatalf("unexpected second page: %d events, cursor %q", len(second.Events), second.NextCursor)
	}

	deleted, err := repo.DeleteExcess(ctx, 2)
	if err != nil {
		t.Fatalf("DeleteExcess: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deleted, got %d", deleted)
	}
	remaining, err := repo.Query(ctx, EventQuery{})
	if err != nil {
		t.Fatalf("Query remaining: %v", err)
	}
	if len(remaining.Events) != 2 || !remaining.Events[0].Timestamp.Equal(base.Add(3*time.Millisecond)) {
		t.Fatalf("expected the newest two events to survive, got %+v", remaining.Events)
	}
}
