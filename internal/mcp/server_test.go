package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/biz"
	"github.com/orderrelay/feishu-order-relay/internal/biz/usecase"
	"github.com/orderrelay/feishu-order-relay/internal/data"
)

func newTestSession(t *testing.T) (*mcpsdk.ClientSession, *data.Repositories) {
	t.Helper()
	ctx := context.Background()

	repos, err := data.NewStoreRepositories(ctx, data.Options{DBPath: filepath.Join(t.TempDir(), "relay.db")}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { repos.Close() })

	log := zerolog.Nop()
	uc := biz.NewUsecases(repos.Stores(), biz.Config{
		Classifier: usecase.ClassifierConfig{DefaultPrompt: "default prompt"},
		Location:   time.UTC,
	}, log)

	srv := NewServer(uc.Admin, "mcp-test", "test", log)
	serverT, clientT := mcpsdk.NewInMemoryTransports()
	if _, err := srv.Connect(ctx, serverT); err != nil {
		t.Fatalf("server connect failed: %v", err)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect failed: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session, repos
}

func call(t *testing.T, session *mcpsdk.ClientSession, name string, args map[string]any, out any) *mcpsdk.CallToolResult {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("%s: call failed: %v", name, err)
	}
	if out != nil && !res.IsError {
		b, _ := json.Marshal(res.StructuredContent)
		if err := json.Unmarshal(b, out); err != nil {
			t.Fatalf("%s: failed to decode output: %v", name, err)
		}
	}
	return res
}

func TestToolsListed(t *testing.T) {
	session, _ := newTestSession(t)
	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	names := map[string]bool{}
	for _, tool := range res.Tools {
		names[tool.Name] = true
	}
	for _, want := range []string{"list_keywords", "add_keyword", "block_user", "add_room", "set_prompt", "get_stats", "recent_orders"} {
		if !names[want] {
			t.Errorf("Expected tool %s to be registered", want)
		}
	}
}

func TestKeywordTools(t *testing.T) {
	session, repos := newTestSession(t)

	var kw Keyword
	res := call(t, session, "add_keyword", map[string]any{"word": "Reklama", "category": "exclude"}, &kw)
	if res.IsError {
		t.Fatalf("Expected success, got error result")
	}
	if kw.Word != "reklama" || kw.OwnerID != "mcp-test" {
		t.Errorf("Expected normalized word owned by mcp-test, got %+v", kw)
	}

	if res := call(t, session, "add_keyword", map[string]any{"word": "reklama", "category": "exclude"}, nil); !res.IsError {
		t.Error("Expected duplicate keyword to be a tool error")
	}
	if res := call(t, session, "add_keyword", map[string]any{"word": "x", "category": "other"}, nil); !res.IsError {
		t.Error("Expected unknown category to be a tool error")
	}

	var list ListKeywordsOutput
	call(t, session, "list_keywords", map[string]any{}, &list)
	if len(list.Keywords) != 1 {
		t.Fatalf("Expected 1 keyword, got %d", len(list.Keywords))
	}

	call(t, session, "remove_keyword", map[string]any{"id": kw.ID}, nil)
	rules, _ := repos.Rules.ListKeywords(context.Background(), "")
	if len(rules) != 0 {
		t.Errorf("Expected keyword removed, got %d", len(rules))
	}
}

func TestRoomAndBlockTools(t *testing.T) {
	session, repos := newTestSession(t)

	var status StatusOutput
	call(t, session, "add_room", map[string]any{"kind": "source", "room_id": "oc_src", "title": "Taxi"}, &status)
	if status.Status != "added" {
		t.Errorf("Expected 'added', got '%s'", status.Status)
	}
	if res := call(t, session, "add_room", map[string]any{"kind": "destination", "room_id": "oc_src"}, nil); !res.IsError {
		t.Error("Expected source as destination to be rejected")
	}
	if res := call(t, session, "add_room", map[string]any{"kind": "lobby", "room_id": "oc_x"}, nil); !res.IsError {
		t.Error("Expected unknown kind to be rejected")
	}
	call(t, session, "add_room", map[string]any{"kind": "destination", "room_id": "oc_dst"}, nil)

	var toggled ToggleSourceOutput
	call(t, session, "toggle_source", map[string]any{"room_id": "oc_src"}, &toggled)
	if toggled.Active {
		t.Error("Expected source paused after toggle")
	}

	var rooms ListRoomsOutput
	call(t, session, "list_rooms", map[string]any{}, &rooms)
	if len(rooms.Sources) != 1 || len(rooms.Destinations) != 1 {
		t.Errorf("Expected 1 source and 1 destination, got %+v", rooms)
	}

	call(t, session, "block_user", map[string]any{"user_id": "ou_spam", "reason": "ads"}, nil)
	blocked, _ := repos.Rules.ListBlocked(context.Background())
	if len(blocked) != 1 || blocked[0].BlockedBy != "mcp-test" {
		t.Errorf("Expected ou_spam blocked by mcp-test, got %+v", blocked)
	}
	if res := call(t, session, "block_user", map[string]any{"user_id": "spam"}, nil); !res.IsError {
		t.Error("Expected malformed user id to be rejected")
	}
	call(t, session, "unblock_user", map[string]any{"user_id": "ou_spam"}, nil)
	blocked, _ = repos.Rules.ListBlocked(context.Background())
	if len(blocked) != 0 {
		t.Errorf("Expected block list empty, got %d", len(blocked))
	}
}

func TestPromptTools(t *testing.T) {
	session, _ := newTestSession(t)

	call(t, session, "set_prompt", map[string]any{"prompt": "custom"}, nil)
	var got PromptOutput
	call(t, session, "get_prompt", map[string]any{}, &got)
	if got.Prompt != "custom" || !got.Custom {
		t.Errorf("Expected custom prompt, got %+v", got)
	}

	call(t, session, "set_prompt", map[string]any{}, nil)
	call(t, session, "get_prompt", map[string]any{}, &got)
	if got.Prompt != "default prompt" || got.Custom {
		t.Errorf("Expected default prompt after reset, got %+v", got)
	}
}
