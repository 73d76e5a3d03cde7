package checkpoint

import (
	"context"
	"testing"

	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/kurious/kurio/internal/model"
)

// startPostgres starts a PostgreSQL testcontainer and returns its DSN.
// Integration tests are skipped when Docker is unavailable.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("kurio_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("pg connection string: %v", err)
	}
	return dsn
}

func openSaver(t *testing.T, dsn string) *Saver {
	t.Helper()
	ctx := context.Background()
	saver, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { saver.Close(ctx) })
	return saver
}

func TestSetupIsIdempotent(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()
	saver := openSaver(t, dsn)

	for i := 0; i < 3; i++ {
		if err := saver.Setup(ctx); err != nil {
			t.Fatalf("Setup run %d: %v", i+1, err)
		}
	}
}

func TestAppendAndLoadPreserveOrder(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()
	saver := openSaver(t, dsn)
	if err := saver.Setup(ctx); err != nil {
		t.Fatal(err)
	}

	turn := []model.Message{
		{Role: model.RoleUser, Content: "hello"},
		{
			Role: model.RoleAssistant,
			ToolCalls: []model.ToolCall{{
				ID:       "abc",
				Type:     "function",
				Function: model.ToolCallFunction{Name: "lookup", Arguments: `{"q":"x"}`},
			}},
		},
		{Role: model.RoleTool, Content: "42", ToolCallID: "abc"},
		{Role: model.RoleAssistant, Content: "done"},
	}
	if err := saver.AppendMessages(ctx, "conv-1", turn); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	got, err := saver.LoadThread(ctx, "conv-1")
	if err != nil {
		t.Fatalf("LoadThread: %v", err)
	}
	if len(got) != len(turn) {
		t.Fatalf("expected %d messages, got %d", len(turn), len(got))
	}
	for i, msg := range got {
		if msg.Role != turn[i].Role {
			t.Errorf("message %d: role %q, want %q", i, msg.Role, turn[i].Role)
		}
	}
	if got[1].ToolCalls[0].ID != "abc" {
		t.Errorf("tool call lost in round trip: %+v", got[1])
	}
	if got[2].ToolCallID != "abc" {
		t.Errorf("tool_call_id lost in round trip: %+v", got[2])
	}
}

func TestThreadsAreIsolated(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()
	saver := openSaver(t, dsn)
	if err := saver.Setup(ctx); err != nil {
		t.Fatal(err)
	}

	saver.AppendMessages(ctx, "a", []model.Message{{Role: model.RoleUser, Content: "for a"}})
	saver.AppendMessages(ctx, "b", []model.Message{{Role: model.RoleUser, Content: "for b"}})

	got, err := saver.LoadThread(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "for a" {
		t.Errorf("thread a leaked: %+v", got)
	}
}

func TestDeleteThreadRemovesAllRows(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()
	saver := openSaver(t, dsn)
	if err := saver.Setup(ctx); err != nil {
		t.Fatal(err)
	}

	msgs := []model.Message{
		{Role: model.RoleUser, Content: "one"},
		{Role: model.RoleAssistant, Content: "two"},
	}
	saver.AppendMessages(ctx, "conv-1", msgs)
	saver.AppendMessages(ctx, "conv-keep", msgs)

	if err := saver.DeleteThread(ctx, "conv-1"); err != nil {
		t.Fatalf("DeleteThread: %v", err)
	}

	got, err := saver.LoadThread(ctx, "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected zero rows for conv-1, got %d", len(got))
	}

	kept, err := saver.LoadThread(ctx, "conv-keep")
	if err != nil {
		t.Fatal(err)
	}
	if len(kept) != 2 {
		t.Errorf("other threads must be untouched, got %d rows", len(kept))
	}
}

func TestReplaceThread(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()
	saver := openSaver(t, dsn)
	if err := saver.Setup(ctx); err != nil {
		t.Fatal(err)
	}

	var long []model.Message
	for i := 0; i < 20; i++ {
		long = append(long, model.Message{Role: model.RoleUser, Content: "old"})
	}
	saver.AppendMessages(ctx, "conv", long)

	compacted := []model.Message{
		{Role: model.RoleSystem, Content: "summary"},
		{Role: model.RoleUser, Content: "recent"},
	}
	if err := saver.ReplaceThread(ctx, "conv", compacted); err != nil {
		t.Fatalf("ReplaceThread: %v", err)
	}

	got, err := saver.LoadThread(ctx, "conv")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Role != model.RoleSystem {
		t.Errorf("unexpected replaced thread: %+v", got)
	}
}
