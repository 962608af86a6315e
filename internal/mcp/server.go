package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/biz/usecase"
)

// Server exposes the admin operations as MCP tools
type Server struct {
	server   *mcpsdk.Server
	admin    *usecase.AdminUsecase
	operator string
	log      zerolog.Logger
}

// NewServer creates the MCP admin server. operator is recorded as the
// owner of keywords and blocks added through it.
func NewServer(admin *usecase.AdminUsecase, operator, version string, log zerolog.Logger) *Server {
	s := &Server{
		server: mcpsdk.NewServer(&mcpsdk.Implementation{
			Name:    "order-relay-admin",
			Version: version,
		}, nil),
		admin:    admin,
		operator: operator,
		log:      log.With().Str("component", "mcp").Logger(),
	}
	s.registerTools()
	return s
}

// Run serves over stdio until ctx is done or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcpsdk.StdioTransport{})
}

// Connect serves over an arbitrary transport
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

func (s *Server) registerTools() {
	// keywords
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "list_keywords",
		Description: "List keyword rules. Exclude rules drop a message, force rules accept it as a rider order.",
	}, s.listKeywords)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "add_keyword",
		Description: "Add a keyword rule of category exclude or force.",
	}, s.addKeyword)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "remove_keyword",
		Description: "Remove a keyword rule by id.",
	}, s.removeKeyword)

	// block list
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "list_blocked",
		Description: "List blocked users, newest first.",
	}, s.listBlocked)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "block_user",
		Description: "Block a user by open_id; their messages are dropped before classification.",
	}, s.blockUser)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "unblock_user",
		Description: "Remove a user from the block list.",
	}, s.unblockUser)

	// rooms
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "list_rooms",
		Description: "List source, destination and monitored rooms.",
	}, s.listRooms)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "add_room",
		Description: "Add a room. kind is source, destination or monitored. A room cannot be both a source and a destination.",
	}, s.addRoom)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "toggle_source",
		Description: "Pause or resume a source room.",
	}, s.toggleSource)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "remove_room",
		Description: "Remove a source, destination or monitored room.",
	}, s.removeRoom)

	// prompt
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "get_prompt",
		Description: "Show the classifier system prompt in effect.",
	}, s.getPrompt)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "set_prompt",
		Description: "Override the classifier system prompt. An empty prompt resets to the default.",
	}, s.setPrompt)

	// stats & orders
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "get_stats",
		Description: "Show today's and all-time processed, forwarded and filtered counters.",
	}, s.getStats)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "recent_orders",
		Description: "List the most recent accepted orders.",
	}, s.recentOrders)
}

// ============ Keywords ============

type ListKeywordsInput struct {
	Category string `json:"category,omitempty" jsonschema:"exclude or force; all categories when empty"`
}

type Keyword struct {
	ID       int64  `json:"id"`
	Word     string `json:"word"`
	Category string `json:"category"`
	OwnerID  string `json:"owner_id,omitempty"`
}

type ListKeywordsOutput struct {
	Keywords []Keyword `json:"keywords"`
}

func (s *Server) listKeywords(ctx context.Context, req *mcpsdk.CallToolRequest, in ListKeywordsInput) (*mcpsdk.CallToolResult, ListKeywordsOutput, error) {
	rules, err := s.admin.ListKeywords(ctx, domain.KeywordCategory(in.Category))
	if err != nil {
		return nil, ListKeywordsOutput{}, err
	}
	out := ListKeywordsOutput{Keywords: make([]Keyword, len(rules))}
	for i, k := range rules {
		out.Keywords[i] = Keyword{ID: k.ID, Word: k.Word, Category: string(k.Category), OwnerID: k.OwnerID}
	}
	return nil, out, nil
}

type AddKeywordInput struct {
	Word     string `json:"word" jsonschema:"the keyword, matched case-insensitively as a substring"`
	Category string `json:"category" jsonschema:"exclude or force"`
}

func (s *Server) addKeyword(ctx context.Context, req *mcpsdk.CallToolRequest, in AddKeywordInput) (*mcpsdk.CallToolResult, Keyword, error) {
	rule, err := s.admin.AddKeyword(ctx, in.Word, domain.KeywordCategory(in.Category), s.operator)
	if err != nil {
		return nil, Keyword{}, err
	}
	return nil, Keyword{ID: rule.ID, Word: rule.Word, Category: string(rule.Category), OwnerID: rule.OwnerID}, nil
}

type RemoveKeywordInput struct {
	ID int64 `json:"id" jsonschema:"keyword id from list_keywords"`
}

// StatusOutput acknowledges a write
type StatusOutput struct {
	Status string `json:"status"`
}

func (s *Server) removeKeyword(ctx context.Context, req *mcpsdk.CallToolRequest, in RemoveKeywordInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	if err := s.admin.RemoveKeyword(ctx, in.ID); err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, StatusOutput{Status: "removed"}, nil
}

// ============ Block list ============

type Empty struct{}

type Blocked struct {
	UserID    string `json:"user_id"`
	BlockedBy string `json:"blocked_by,omitempty"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

type ListBlockedOutput struct {
	Blocked []Blocked `json:"blocked"`
}

func (s *Server) listBlocked(ctx context.Context, req *mcpsdk.CallToolRequest, _ Empty) (*mcpsdk.CallToolResult, ListBlockedOutput, error) {
	entries, err := s.admin.ListBlocked(ctx)
	if err != nil {
		return nil, ListBlockedOutput{}, err
	}
	out := ListBlockedOutput{Blocked: make([]Blocked, len(entries))}
	for i, e := range entries {
		out.Blocked[i] = Blocked{
			UserID: e.UserID, BlockedBy: e.BlockedBy, Reason: e.Reason,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

type BlockUserInput struct {
	UserID string `json:"user_id" jsonschema:"Feishu open_id (ou_...)"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) blockUser(ctx context.Context, req *mcpsdk.CallToolRequest, in BlockUserInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	if err := s.admin.Block(ctx, in.UserID, s.operator, in.Reason); err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, StatusOutput{Status: "blocked"}, nil
}

type UserInput struct {
	UserID string `json:"user_id" jsonschema:"Feishu open_id (ou_...)"`
}

func (s *Server) unblockUser(ctx context.Context, req *mcpsdk.CallToolRequest, in UserInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	if err := s.admin.Unblock(ctx, in.UserID); err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, StatusOutput{Status: "unblocked"}, nil
}

// ============ Rooms ============

type Source struct {
	RoomID string `json:"room_id"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

type ListRoomsOutput struct {
	Sources      []Source `json:"sources"`
	Destinations []string `json:"destinations"`
	Monitored    []string `json:"monitored"`
}

func (s *Server) listRooms(ctx context.Context, req *mcpsdk.CallToolRequest, _ Empty) (*mcpsdk.CallToolResult, ListRoomsOutput, error) {
	reg, err := s.admin.Rooms(ctx)
	if err != nil {
		return nil, ListRoomsOutput{}, err
	}
	out := ListRoomsOutput{
		Sources:      make([]Source, len(reg.Sources)),
		Destinations: append([]string{}, reg.Destinations...),
		Monitored:    append([]string{}, reg.Monitored...),
	}
	for i, src := range reg.Sources {
		out.Sources[i] = Source{RoomID: src.RoomID, Title: src.Title, Active: src.Active}
	}
	return nil, out, nil
}

type RoomInput struct {
	Kind   string `json:"kind" jsonschema:"source, destination or monitored"`
	RoomID string `json:"room_id" jsonschema:"Feishu chat id (oc_...)"`
	Title  string `json:"title,omitempty" jsonschema:"display title, sources only"`
}

func (s *Server) addRoom(ctx context.Context, req *mcpsdk.CallToolRequest, in RoomInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	var err error
	switch domain.RoomKind(in.Kind) {
	case domain.RoomSource:
		var added bool
		added, err = s.admin.AddSource(ctx, in.RoomID, in.Title, s.operator)
		if err == nil && !added {
			return nil, StatusOutput{Status: "exists"}, nil
		}
	case domain.RoomDestination:
		err = s.admin.AddDestination(ctx, in.RoomID)
	case domain.RoomMonitored:
		err = s.admin.AddMonitored(ctx, in.RoomID)
	default:
		err = fmt.Errorf("unknown room kind %q", in.Kind)
	}
	if err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, StatusOutput{Status: "added"}, nil
}

type ToggleSourceInput struct {
	RoomID string `json:"room_id" jsonschema:"Feishu chat id (oc_...)"`
}

type ToggleSourceOutput struct {
	Active bool `json:"active"`
}

func (s *Server) toggleSource(ctx context.Context, req *mcpsdk.CallToolRequest, in ToggleSourceInput) (*mcpsdk.CallToolResult, ToggleSourceOutput, error) {
	active, err := s.admin.ToggleSource(ctx, in.RoomID)
	if err != nil {
		return nil, ToggleSourceOutput{}, err
	}
	return nil, ToggleSourceOutput{Active: active}, nil
}

func (s *Server) removeRoom(ctx context.Context, req *mcpsdk.CallToolRequest, in RoomInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	kind := domain.RoomKind(in.Kind)
	switch kind {
	case domain.RoomSource, domain.RoomDestination, domain.RoomMonitored:
	default:
		return nil, StatusOutput{}, fmt.Errorf("unknown room kind %q", in.Kind)
	}
	if err := s.admin.RemoveRoom(ctx, kind, in.RoomID); err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, StatusOutput{Status: "removed"}, nil
}

// ============ Prompt ============

type PromptOutput struct {
	Prompt string `json:"prompt"`
	Custom bool   `json:"custom"`
}

func (s *Server) getPrompt(ctx context.Context, req *mcpsdk.CallToolRequest, _ Empty) (*mcpsdk.CallToolResult, PromptOutput, error) {
	prompt, custom, err := s.admin.Prompt(ctx)
	if err != nil {
		return nil, PromptOutput{}, err
	}
	return nil, PromptOutput{Prompt: prompt, Custom: custom}, nil
}

type SetPromptInput struct {
	Prompt string `json:"prompt,omitempty" jsonschema:"new system prompt; empty resets to the default"`
}

func (s *Server) setPrompt(ctx context.Context, req *mcpsdk.CallToolRequest, in SetPromptInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	if in.Prompt == "" {
		if err := s.admin.ResetPrompt(ctx); err != nil {
			return nil, StatusOutput{}, err
		}
		return nil, StatusOutput{Status: "reset"}, nil
	}
	if err := s.admin.SetPrompt(ctx, in.Prompt); err != nil {
		return nil, StatusOutput{}, err
	}
	return nil, StatusOutput{Status: "updated"}, nil
}

// ============ Stats & orders ============

type StatsOutput struct {
	Today domain.StatsAggregate `json:"today"`
	Total domain.StatsAggregate `json:"total"`
}

func (s *Server) getStats(ctx context.Context, req *mcpsdk.CallToolRequest, _ Empty) (*mcpsdk.CallToolResult, StatsOutput, error) {
	today, total, err := s.admin.Stats(ctx)
	if err != nil {
		return nil, StatsOutput{}, err
	}
	return nil, StatsOutput{Today: *today, Total: *total}, nil
}

type RecentOrdersInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum orders to return, default 20, at most 100"`
}

type Order struct {
	UserName  string `json:"user_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Text      string `json:"text"`
	RoomTitle string `json:"room_title,omitempty"`
	Intent    string `json:"intent"`
	Delivered int    `json:"delivered"`
	CreatedAt string `json:"created_at"`
}

type RecentOrdersOutput struct {
	Orders []Order `json:"orders"`
}

func (s *Server) recentOrders(ctx context.Context, req *mcpsdk.CallToolRequest, in RecentOrdersInput) (*mcpsdk.CallToolResult, RecentOrdersOutput, error) {
	orders, err := s.admin.RecentOrders(ctx, in.Limit)
	if err != nil {
		return nil, RecentOrdersOutput{}, err
	}
	out := RecentOrdersOutput{Orders: make([]Order, len(orders))}
	for i, o := range orders {
		out.Orders[i] = Order{
			UserName: o.UserName, Phone: o.Phone, Text: o.Text, RoomTitle: o.RoomTitle,
			Intent: string(o.Intent), Delivered: o.Delivered, CreatedAt: o.CreatedAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}
