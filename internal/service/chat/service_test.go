package chat_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	chatmodel "github.com/agusgarcia3007/learnbase/backend/internal/model/chat"
	chat "github.com/agusgarcia3007/learnbase/backend/internal/service/chat"
	"github.com/agusgarcia3007/learnbase/backend/pkg/protocol"
)

func openConversation(t *testing.T, svc *chat.Service) string {
	t.Helper()
	conv, err := svc.Open(context.Background(), "tenant-1", "user-1", "")
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	return conv.ID
}

func preview(title string) protocol.CoursePreview {
	return protocol.CoursePreview{
		Title: title,
		Level: protocol.LevelBeginner,
		Modules: []protocol.PreviewModule{
			{ID: "m1", Title: "Basics"},
		},
	}
}

func TestServiceOpenAndGet(t *testing.T) {
	svc := chat.NewService(nil)
	ctx := context.Background()

	conv, err := svc.Open(ctx, "tenant-1", "user-1", "")
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	if conv.ID == "" || conv.Version != 1 {
		t.Fatalf("unexpected conversation: %+v", conv)
	}

	again, err := svc.Open(ctx, "tenant-1", "user-1", conv.ID)
	if err != nil {
		t.Fatalf("reopen err: %v", err)
	}
	if again.ID != conv.ID {
		t.Fatalf("reopen returned %s want %s", again.ID, conv.ID)
	}

	named, err := svc.Open(ctx, "tenant-1", "user-1", "client-chosen")
	if err != nil || named.ID != "client-chosen" {
		t.Fatalf("Open with unknown id = %+v, %v", named, err)
	}

	if _, err := svc.Get(ctx, "tenant-2", conv.ID); !errors.Is(err, chat.ErrConversationScope) {
		t.Fatalf("cross-tenant Get err = %v", err)
	}
	if _, err := svc.Open(ctx, "tenant-2", "user-9", conv.ID); !errors.Is(err, chat.ErrConversationScope) {
		t.Fatalf("cross-tenant Open err = %v", err)
	}
	if _, err := svc.Get(ctx, "tenant-1", "missing"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("missing Get err = %v", err)
	}
	if _, err := svc.Open(ctx, "", "user-1", ""); !errors.Is(err, chat.ErrTenantRequired) {
		t.Fatalf("Open without tenant err = %v", err)
	}
}

func TestServiceTurnGuard(t *testing.T) {
	svc := chat.NewService(nil)
	ctx := context.Background()
	id := openConversation(t, svc)

	if err := svc.BeginTurn(ctx, id); err != nil {
		t.Fatalf("BeginTurn err: %v", err)
	}
	if err := svc.BeginTurn(ctx, id); !errors.Is(err, chat.ErrTurnInProgress) {
		t.Fatalf("second BeginTurn err = %v", err)
	}
	if err := svc.EndTurn(ctx, id); err != nil {
		t.Fatalf("EndTurn err: %v", err)
	}
	if err := svc.BeginTurn(ctx, id); err != nil {
		t.Fatalf("BeginTurn after EndTurn err: %v", err)
	}
}

func TestServiceTurnGuardConcurrent(t *testing.T) {
	svc := chat.NewService(nil)
	id := openConversation(t, svc)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.BeginTurn(context.Background(), id); err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if started != 1 {
		t.Fatalf("expected exactly one turn to start, got %d", started)
	}
}

func TestServiceTurnLeaseExpires(t *testing.T) {
	svc := chat.NewService(nil, chat.WithTurnLease(time.Millisecond))
	ctx := context.Background()
	id := openConversation(t, svc)

	if err := svc.BeginTurn(ctx, id); err != nil {
		t.Fatalf("BeginTurn err: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := svc.BeginTurn(ctx, id); err != nil {
		t.Fatalf("stale turn should not block: %v", err)
	}
}

func TestServiceConfirmationGate(t *testing.T) {
	svc := chat.NewService(nil)
	ctx := context.Background()
	id := openConversation(t, svc)

	if _, err := svc.ClaimCourse(ctx, id); !errors.Is(err, chat.ErrPreviewRequired) {
		t.Fatalf("claim without preview err = %v", err)
	}
	if _, err := svc.Confirm(ctx, "tenant-1", id); !errors.Is(err, chat.ErrPreviewRequired) {
		t.Fatalf("confirm without preview err = %v", err)
	}

	if err := svc.RecordPreview(ctx, id, preview("Go 101")); err != nil {
		t.Fatalf("RecordPreview err: %v", err)
	}
	if _, err := svc.ClaimCourse(ctx, id); !errors.Is(err, chat.ErrNotConfirmed) {
		t.Fatalf("claim before confirmation err = %v", err)
	}

	conv, err := svc.Confirm(ctx, "tenant-1", id)
	if err != nil {
		t.Fatalf("Confirm err: %v", err)
	}
	if !conv.Confirmed || conv.LastPreview == nil || conv.LastPreview.Title != "Go 101" {
		t.Fatalf("unexpected confirmed conversation: %+v", conv)
	}

	claim, err := svc.ClaimCourse(ctx, id)
	if err != nil {
		t.Fatalf("ClaimCourse err: %v", err)
	}
	if _, err := svc.ClaimCourse(ctx, id); !errors.Is(err, chat.ErrNotConfirmed) {
		t.Fatalf("confirmation must be consumed, got %v", err)
	}

	if err := svc.ReleaseClaim(ctx, id, claim); err != nil {
		t.Fatalf("ReleaseClaim err: %v", err)
	}
	if _, err := svc.ClaimCourse(ctx, id); err != nil {
		t.Fatalf("released claim should be reusable: %v", err)
	}
	if err := svc.CourseCreated(ctx, id, "course-1"); err != nil {
		t.Fatalf("CourseCreated err: %v", err)
	}

	got, err := svc.Get(ctx, "tenant-1", id)
	if err != nil {
		t.Fatalf("Get err: %v", err)
	}
	if got.Confirmed || len(got.CourseIDs) != 1 || got.CourseIDs[0] != "course-1" {
		t.Fatalf("unexpected final state: %+v", got)
	}
}

func TestServiceNewPreviewClearsConfirmation(t *testing.T) {
	svc := chat.NewService(nil)
	ctx := context.Background()
	id := openConversation(t, svc)

	if err := svc.RecordPreview(ctx, id, preview("First")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Confirm(ctx, "tenant-1", id); err != nil {
		t.Fatal(err)
	}
	claim, err := svc.ClaimCourse(ctx, id)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.RecordPreview(ctx, id, preview("Second")); err != nil {
		t.Fatal(err)
	}
	if err := svc.ReleaseClaim(ctx, id, claim); err != nil {
		t.Fatal(err)
	}

	got, _ := svc.Get(ctx, "tenant-1", id)
	if got.Confirmed {
		t.Fatal("a claim for an older preview must not confirm the newer one")
	}
	if got.PreviewCount != 2 || got.LastPreview.Title != "Second" {
		t.Fatalf("unexpected preview state: %+v", got)
	}
}

func TestServiceConfirmationOptional(t *testing.T) {
	svc := chat.NewService(nil, chat.WithRequireConfirmation(false))
	ctx := context.Background()
	id := openConversation(t, svc)

	if _, err := svc.ClaimCourse(ctx, id); !errors.Is(err, chat.ErrPreviewRequired) {
		t.Fatalf("preview stays mandatory, got %v", err)
	}
	if err := svc.RecordPreview(ctx, id, preview("Go 101")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ClaimCourse(ctx, id); err != nil {
		t.Fatalf("claim without confirmation err = %v", err)
	}
}

func TestMemoryStoreVersionConflict(t *testing.T) {
	store := chat.NewMemoryStore()
	ctx := context.Background()

	conv := &chatmodel.Conversation{ID: "c1", TenantID: "t"}
	if err := store.Create(ctx, conv); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, &chatmodel.Conversation{ID: "c1"}); !errors.Is(err, chat.ErrExists) {
		t.Fatalf("duplicate Create err = %v", err)
	}

	a, _ := store.Get(ctx, "c1")
	b, _ := store.Get(ctx, "c1")
	if err := store.Update(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := store.Update(ctx, b); !errors.Is(err, chat.ErrVersionConflict) {
		t.Fatalf("stale Update err = %v", err)
	}
	if err := store.Update(ctx, &chatmodel.Conversation{ID: "nope"}); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("missing Update err = %v", err)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()

	store, err := chat.NewStore(ctx, chat.DriverRedis, chat.RedisOptions{Addr: addr, TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewStore err: %v", err)
	}
	defer store.Close()

	svc := chat.NewService(store)
	id := openConversation(t, svc)

	if err := svc.BeginTurn(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := svc.BeginTurn(ctx, id); !errors.Is(err, chat.ErrTurnInProgress) {
		t.Fatalf("second BeginTurn err = %v", err)
	}
	if err := svc.RecordPreview(ctx, id, preview("Go 101")); err != nil {
		t.Fatal(err)
	}
	conv, err := svc.Confirm(ctx, "tenant-1", id)
	if err != nil {
		t.Fatal(err)
	}
	if !conv.Confirmed || conv.LastPreview.Title != "Go 101" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
}
