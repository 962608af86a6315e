package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkcontact "github.com/larksuite/oapi-sdk-go/v3/service/contact/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"github.com/rs/zerolog"
)

// Message represents a received Feishu message
type Message struct {
	ChatID     string
	MsgID      string
	MsgType    string // text, post, image, file, audio, media, sticker
	ChatType   string // p2p, group
	Content    string // text content, empty for pure media
	HasMedia   bool
	Sender     *Sender
	CreateTime int64 // milliseconds
}

// Sender represents the message sender
type Sender struct {
	SenderID   string // open_id
	SenderType string // user, app
	TenantKey  string
}

// ChatInfo represents information about a chat
type ChatInfo struct {
	ChatID      string `json:"chat_id"`
	Name        string `json:"name"`
	ChatType    string `json:"chat_type"`
	MemberCount int    `json:"user_count"`
}

// UserInfo is the part of a contact profile the relay uses
type UserInfo struct {
	OpenID string
	Name   string
	Mobile string
}

// APIError is a non-success response from the open platform
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("feishu api error %d: %s", e.Code, e.Msg)
}

// MessageHandler is the callback for received messages.
// It runs on the SDK's event goroutine and must return quickly.
type MessageHandler func(msg *Message)

// Client is the Feishu API client
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	wsCli     *larkws.Client
	onMessage MessageHandler
	log       zerolog.Logger
	cancel    context.CancelFunc
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string, log zerolog.Logger) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret),
		log:       log.With().Str("component", "feishu").Logger(),
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// Start connects via WebSocket and blocks while listening for messages
func (c *Client) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	// The handler only parses and hands off, so the SDK can ACK promptly
	// and messages of one chat are handed off in arrival order.
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			c.handleMessage(event)
			return nil
		})

	c.wsCli = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.log.Info().Msg("starting websocket connection")
	return c.wsCli.Start(ctx)
}

// Stop disconnects from Feishu
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return
	}
	rawMsg := event.Event.Message

	// messages sent by apps, including this one, never enter the pipeline
	if event.Event.Sender != nil && event.Event.Sender.SenderType != nil {
		if *event.Event.Sender.SenderType == "app" {
			return
		}
	}

	msg := &Message{
		ChatID:  deref(rawMsg.ChatId),
		MsgID:   deref(rawMsg.MessageId),
		MsgType: deref(rawMsg.MessageType),
	}
	if msg.ChatID == "" || msg.MsgID == "" {
		return
	}

	if rawMsg.CreateTime != nil {
		if ts, err := strconv.ParseInt(*rawMsg.CreateTime, 10, 64); err == nil {
			msg.CreateTime = ts
		}
	}
	msg.ChatType = deref(rawMsg.ChatType)

	if event.Event.Sender != nil {
		msg.Sender = &Sender{SenderType: deref(event.Event.Sender.SenderType)}
		if event.Event.Sender.SenderId != nil {
			msg.Sender.SenderID = deref(event.Event.Sender.SenderId.OpenId)
		}
		msg.Sender.TenantKey = deref(event.Event.Sender.TenantKey)
	}

	mentionMap := make(map[string]string)
	for _, mention := range rawMsg.Mentions {
		if mention.Key != nil && mention.Name != nil {
			mentionMap[*mention.Key] = *mention.Name
		}
	}

	content := deref(rawMsg.Content)
	switch msg.MsgType {
	case "text":
		msg.Content = parseTextContent(content, mentionMap)
	case "post":
		msg.Content, msg.HasMedia = parsePostContent(content, mentionMap)
	case "image", "file", "audio", "media", "sticker":
		msg.HasMedia = true
	default:
		c.log.Debug().Str("msg_type", msg.MsgType).Str("chat_id", msg.ChatID).Msg("unsupported message type")
		return
	}

	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// parseTextContent extracts text from a text message, replacing mention
// placeholders (@_user_1) with real names
func parseTextContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return replaceMentions(parsed.Text, mentionMap)
}

// parsePostContent flattens a rich text message and reports embedded media
func parsePostContent(content string, mentionMap map[string]string) (string, bool) {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag      string `json:"tag"`
			Text     string `json:"text,omitempty"`
			ImageKey string `json:"image_key,omitempty"`
			FileKey  string `json:"file_key,omitempty"`
			UserID   string `json:"user_id,omitempty"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", false
	}

	var textParts []string
	hasMedia := false
	if parsed.Title != "" {
		textParts = append(textParts, parsed.Title)
	}
	for _, line := range parsed.Content {
		var lineParts []string
		for _, elem := range line {
			switch elem.Tag {
			case "text", "a":
				if elem.Text != "" {
					lineParts = append(lineParts, elem.Text)
				}
			case "at":
				if name, ok := mentionMap[elem.UserID]; ok {
					lineParts = append(lineParts, "@"+name)
				}
			case "img", "media":
				hasMedia = true
			}
		}
		if len(lineParts) > 0 {
			textParts = append(textParts, strings.Join(lineParts, ""))
		}
	}
	return replaceMentions(strings.Join(textParts, "\n"), mentionMap), hasMedia
}

func replaceMentions(text string, mentionMap map[string]string) string {
	for key, name := range mentionMap {
		text = strings.ReplaceAll(text, key, "@"+name)
	}
	return text
}

// SendText sends a plain text message to a chat
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	contentJSON, _ := json.Marshal(map[string]string{"text": text})
	return c.send(ctx, chatID, larkim.MsgTypeText, string(contentJSON))
}

// SendCard sends an interactive card; card is the card JSON
func (c *Client) SendCard(ctx context.Context, chatID, card string) error {
	return c.send(ctx, chatID, larkim.MsgTypeInteractive, card)
}

func (c *Client) send(ctx context.Context, chatID, msgType, content string) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send %s message: %w", msgType, err)
	}
	if !resp.Success() {
		return &APIError{Code: resp.Code, Msg: resp.Msg}
	}
	return nil
}

// GetChatInfo retrieves information about a chat
func (c *Client) GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, error) {
	req := larkim.NewGetChatReqBuilder().
		ChatId(chatID).
		Build()

	resp, err := c.larkCli.Im.Chat.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat info: %w", err)
	}
	if !resp.Success() {
		return nil, &APIError{Code: resp.Code, Msg: resp.Msg}
	}

	info := &ChatInfo{
		ChatID:   chatID,
		Name:     deref(resp.Data.Name),
		ChatType: deref(resp.Data.ChatMode),
	}
	if resp.Data.UserCount != nil {
		info.MemberCount, _ = strconv.Atoi(*resp.Data.UserCount)
	}
	return info, nil
}

// ListChats returns every chat the bot has joined
func (c *Client) ListChats(ctx context.Context) ([]*ChatInfo, error) {
	var chats []*ChatInfo
	var pageToken string

	for {
		reqBuilder := larkim.NewListChatReqBuilder().PageSize(100)
		if pageToken != "" {
			reqBuilder = reqBuilder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.Chat.List(ctx, reqBuilder.Build())
		if err != nil {
			return nil, fmt.Errorf("list chats: %w", err)
		}
		if !resp.Success() {
			return nil, &APIError{Code: resp.Code, Msg: resp.Msg}
		}

		for _, item := range resp.Data.Items {
			if item.ChatId == nil {
				continue
			}
			chats = append(chats, &ChatInfo{ChatID: *item.ChatId, Name: deref(item.Name)})
		}

		if resp.Data.HasMore == nil || !*resp.Data.HasMore || resp.Data.PageToken == nil {
			break
		}
		pageToken = *resp.Data.PageToken
	}
	return chats, nil
}

// GetUser looks up a user's contact profile by open_id
func (c *Client) GetUser(ctx context.Context, openID string) (*UserInfo, error) {
	req := larkcontact.NewGetUserReqBuilder().
		UserId(openID).
		UserIdType("open_id").
		Build()

	resp, err := c.larkCli.Contact.User.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !resp.Success() {
		return nil, &APIError{Code: resp.Code, Msg: resp.Msg}
	}

	info := &UserInfo{OpenID: openID}
	if resp.Data != nil && resp.Data.User != nil {
		info.Name = deref(resp.Data.User.Name)
		info.Mobile = deref(resp.Data.User.Mobile)
	}
	return info, nil
}

// ChatLink returns an app link that opens chatID in the Feishu client
func ChatLink(chatID string) string {
	return "https://applink.feishu.cn/client/chat/open?openChatId=" + chatID
}

// MessageTime converts a Feishu millisecond timestamp
func MessageTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
