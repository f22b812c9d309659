package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jbcub/studentdir/internal/domain/access"
	"github.com/jbcub/studentdir/internal/infrastructure/external/telegram"
	"github.com/jbcub/studentdir/internal/interface/telegram/handler"
	"github.com/jbcub/studentdir/internal/interface/telegram/handler/callback"
	"github.com/jbcub/studentdir/internal/interface/telegram/middleware"
	"github.com/jbcub/studentdir/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables debug logging for routing decisions.
	Debug bool
}

// Messenger is the part of the Bot API client the router talks to.
type Messenger interface {
	SendMessage(ctx context.Context, params telegram.SendMessageParams) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int64, text string, parseMode string, keyboard *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string, showAlert bool) error
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT TYPES
// These types carry context information through the routing process.
// ══════════════════════════════════════════════════════════════════════════════

// CommandContext contains context for command handling.
type CommandContext struct {
	// TelegramID is the user's Telegram ID.
	TelegramID int64

	// Username is the user's Telegram username, without "@".
	Username string

	// FirstName is the user's first name.
	FirstName string

	// ChatID is the chat ID where the command was sent.
	ChatID int64

	// Args is the command arguments (text after the command).
	Args string

	// Role is the sender's access role.
	Role access.Role

	// Message is the original Telegram message.
	Message *telegram.Message

	// Client is used for sending responses.
	Client Messenger
}

// CallbackContext contains context for callback query handling.
type CallbackContext struct {
	// TelegramID is the user's Telegram ID.
	TelegramID int64

	// ChatID is the chat ID where the callback originated.
	ChatID int64

	// MessageID is the ID of the message with the inline keyboard.
	MessageID int64

	// QueryID is the callback query ID (for answering).
	QueryID string

	// Data is the callback data string.
	Data string

	// Role is the sender's access role.
	Role access.Role

	// Client is used for sending responses.
	Client Messenger
}

// TextInputContext contains context for free text (search queries).
type TextInputContext struct {
	TelegramID int64
	ChatID     int64
	Text       string
	Role       access.Role
	Client     Messenger
}

// DocumentContext contains context for an uploaded document.
type DocumentContext struct {
	TelegramID int64
	ChatID     int64
	Document   *telegram.Document
	Caption    string
	Client     Messenger
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// Routes incoming updates to appropriate handlers.
// ══════════════════════════════════════════════════════════════════════════════

type commandRoute struct {
	handler any
	need    middleware.Requirement
}

type callbackRoute struct {
	handler any
	need    middleware.Requirement
}

// Router routes Telegram updates to appropriate handlers.
type Router struct {
	config RouterConfig
	logger *slog.Logger

	commandHandlers   map[string]commandRoute
	commandHandlersMu sync.RWMutex

	callbackPrefixHandlers   map[string]callbackRoute
	callbackPrefixHandlersMu sync.RWMutex

	searchHandler   *handler.SearchHandler
	documentHandler *handler.ImportHandler
}

// NewRouter creates a new router.
func NewRouter(config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Router{
		config:                 config,
		logger:                 config.Logger,
		commandHandlers:        make(map[string]commandRoute),
		callbackPrefixHandlers: make(map[string]callbackRoute),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION METHODS
// ══════════════════════════════════════════════════════════════════════════════

// RegisterCommand registers a handler for a command (without the leading "/").
func (r *Router) RegisterCommand(command string, h any, need middleware.Requirement) {
	r.commandHandlersMu.Lock()
	defer r.commandHandlersMu.Unlock()

	r.commandHandlers[command] = commandRoute{handler: h, need: need}

	if r.config.Debug {
		r.logger.Debug("registered command handler", "command", command)
	}
}

// RegisterCallbackPrefix registers a handler for callbacks matching a prefix.
// The prefix should include the trailing delimiter (e.g., "courses:").
func (r *Router) RegisterCallbackPrefix(prefix string, h any, need middleware.Requirement) {
	r.callbackPrefixHandlersMu.Lock()
	defer r.callbackPrefixHandlersMu.Unlock()

	r.callbackPrefixHandlers[prefix] = callbackRoute{handler: h, need: need}

	if r.config.Debug {
		r.logger.Debug("registered callback prefix handler", "prefix", prefix)
	}
}

// SetSearchHandler sets the handler for free text.
func (r *Router) SetSearchHandler(h *handler.SearchHandler) {
	r.searchHandler = h
}

// SetDocumentHandler sets the handler for uploaded documents.
func (r *Router) SetDocumentHandler(h *handler.ImportHandler) {
	r.documentHandler = h
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUIREMENTS
// The bot checks access before routing; unknown commands are public so the
// user gets the command list.
// ══════════════════════════════════════════════════════════════════════════════

// CommandRequirement returns what the command needs from the sender.
func (r *Router) CommandRequirement(command string) middleware.Requirement {
	r.commandHandlersMu.RLock()
	defer r.commandHandlersMu.RUnlock()

	if route, ok := r.commandHandlers[command]; ok {
		return route.need
	}
	return middleware.RequireNothing
}

// CallbackRequirement returns what the callback needs from the sender.
func (r *Router) CallbackRequirement(data string) middleware.Requirement {
	if _, route, ok := r.matchCallback(data); ok {
		return route.need
	}
	return middleware.RequireMember
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING METHODS
// ══════════════════════════════════════════════════════════════════════════════

// HandleCommand routes a command to its handler.
func (r *Router) HandleCommand(ctx context.Context, command string, cmdCtx CommandContext) error {
	r.commandHandlersMu.RLock()
	route, ok := r.commandHandlers[command]
	r.commandHandlersMu.RUnlock()

	if !ok {
		if r.config.Debug {
			r.logger.Debug("no handler for command", "command", command)
		}
		return r.handleUnknownCommand(ctx, cmdCtx)
	}

	return r.executeCommandHandler(ctx, route.handler, command, cmdCtx)
}

// executeCommandHandler executes a command handler based on its type.
func (r *Router) executeCommandHandler(ctx context.Context, h any, command string, cmdCtx CommandContext) error {
	var (
		v   *presenter.View
		err error
	)

	switch hd := h.(type) {
	case *handler.StartHandler:
		v, err = hd.Handle(ctx, handler.StartRequest{FirstName: cmdCtx.FirstName, Role: cmdCtx.Role})
	case *handler.HelpHandler:
		v, err = hd.Handle(ctx, handler.HelpRequest{Role: cmdCtx.Role})
	case *handler.JoinHandler:
		v, err = hd.Handle(ctx, handler.JoinRequest{
			TelegramID: cmdCtx.TelegramID,
			Username:   cmdCtx.Username,
			Code:       cmdCtx.Args,
		})
	case *handler.ImportHandler:
		v, err = r.importCommand(ctx, hd, command, cmdCtx)
	default:
		r.logger.Warn("unknown handler type", "command", command, "type", fmt.Sprintf("%T", h))
		return r.handleUnknownCommand(ctx, cmdCtx)
	}

	if v != nil {
		if sendErr := r.sendResponse(ctx, cmdCtx.Client, cmdCtx.ChatID, v); sendErr != nil && err == nil {
			err = sendErr
		}
	}
	return err
}

func (r *Router) importCommand(ctx context.Context, h *handler.ImportHandler, command string, cmdCtx CommandContext) (*presenter.View, error) {
	if command == "report" {
		return h.LastReport(ctx, cmdCtx.ChatID)
	}
	return h.Instructions(), nil
}

// HandleCallback routes a callback to its handler.
func (r *Router) HandleCallback(ctx context.Context, data string, cbCtx CallbackContext) error {
	prefix, route, ok := r.matchCallback(data)
	if !ok {
		r.logger.Warn("unknown callback", "data", data)
		return cbCtx.Client.AnswerCallbackQuery(ctx, cbCtx.QueryID, "", false)
	}

	switch hd := route.handler.(type) {
	case *callback.CardHandler:
		return r.handleCardCallback(ctx, hd, cbCtx)
	default:
		r.logger.Warn("unknown callback handler type", "prefix", prefix, "type", fmt.Sprintf("%T", route.handler))
		return cbCtx.Client.AnswerCallbackQuery(ctx, cbCtx.QueryID, "", false)
	}
}

// matchCallback finds the longest registered prefix of data.
func (r *Router) matchCallback(data string) (string, callbackRoute, bool) {
	r.callbackPrefixHandlersMu.RLock()
	defer r.callbackPrefixHandlersMu.RUnlock()

	var (
		matchedPrefix string
		matched       callbackRoute
		found         bool
	)
	for prefix, route := range r.callbackPrefixHandlers {
		if strings.HasPrefix(data, prefix) && len(prefix) > len(matchedPrefix) {
			matchedPrefix, matched, found = prefix, route, true
		}
	}
	return matchedPrefix, matched, found
}

func (r *Router) handleCardCallback(ctx context.Context, h *callback.CardHandler, cbCtx CallbackContext) error {
	resp, err := h.Handle(ctx, callback.CardRequest{Data: cbCtx.Data, Role: cbCtx.Role})
	if resp == nil {
		resp = &callback.CardResponse{}
	}

	// Ответ на callback снимает индикатор загрузки на кнопке.
	if answerErr := cbCtx.Client.AnswerCallbackQuery(ctx, cbCtx.QueryID, resp.AnswerText, false); answerErr != nil {
		r.logger.Debug("failed to answer callback", "error", answerErr)
	}

	if resp.View != nil {
		var sendErr error
		if resp.NewMessage || cbCtx.MessageID == 0 {
			sendErr = r.sendResponse(ctx, cbCtx.Client, cbCtx.ChatID, resp.View)
		} else {
			sendErr = r.editResponse(ctx, cbCtx.Client, cbCtx.ChatID, cbCtx.MessageID, resp.View)
		}
		if sendErr != nil && err == nil {
			err = sendErr
		}
	}
	return err
}

// HandleTextInput routes free text to the search handler.
func (r *Router) HandleTextInput(ctx context.Context, inputCtx TextInputContext) error {
	if r.searchHandler == nil {
		return nil
	}

	v, err := r.searchHandler.Handle(ctx, handler.SearchRequest{
		TelegramID: inputCtx.TelegramID,
		Text:       inputCtx.Text,
		Role:       inputCtx.Role,
	})
	if v != nil {
		if sendErr := r.sendResponse(ctx, inputCtx.Client, inputCtx.ChatID, v); sendErr != nil && err == nil {
			err = sendErr
		}
	}
	return err
}

// HandleDocument routes an uploaded document to the import handler.
func (r *Router) HandleDocument(ctx context.Context, docCtx DocumentContext) error {
	if r.documentHandler == nil {
		return nil
	}

	v, err := r.documentHandler.HandleDocument(ctx, handler.DocumentRequest{
		TelegramID: docCtx.TelegramID,
		ChatID:     docCtx.ChatID,
		Document:   docCtx.Document,
		Caption:    docCtx.Caption,
	})
	if v != nil {
		if sendErr := r.sendResponse(ctx, docCtx.Client, docCtx.ChatID, v); sendErr != nil && err == nil {
			err = sendErr
		}
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleUnknownCommand handles commands that don't have a registered handler.
func (r *Router) handleUnknownCommand(ctx context.Context, cmdCtx CommandContext) error {
	text := "❓ <b>Unknown command</b>\n\nSend a name to search, or /help for the list of commands."
	return r.sendResponse(ctx, cmdCtx.Client, cmdCtx.ChatID, &presenter.View{Text: text, ParseMode: presenter.ParseModeHTML})
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// sendResponse sends a new message with optional inline keyboard.
func (r *Router) sendResponse(ctx context.Context, client Messenger, chatID int64, v *presenter.View) error {
	params := telegram.SendMessageParams{
		ChatID:                chatID,
		Text:                  v.Text,
		ParseMode:             v.ParseMode,
		DisableWebPreview:     true,
		ReplyMarkup:           convertKeyboard(v.Keyboard),
	}

	_, err := client.SendMessage(ctx, params)
	return err
}

// editResponse edits an existing message with optional inline keyboard.
func (r *Router) editResponse(ctx context.Context, client Messenger, chatID, messageID int64, v *presenter.View) error {
	_, err := client.EditMessageText(ctx, chatID, messageID, v.Text, v.ParseMode, convertKeyboard(v.Keyboard))
	return err
}

// convertKeyboard converts presenter.InlineKeyboard to telegram.InlineKeyboardMarkup.
func convertKeyboard(kb *presenter.InlineKeyboard) *telegram.InlineKeyboardMarkup {
	if kb.IsEmpty() {
		return nil
	}

	markup := &telegram.InlineKeyboardMarkup{
		InlineKeyboard: make([][]telegram.InlineKeyboardButton, len(kb.Rows)),
	}

	for i, row := range kb.Rows {
		markup.InlineKeyboard[i] = make([]telegram.InlineKeyboardButton, len(row))
		for j, btn := range row {
			markup.InlineKeyboard[i][j] = telegram.InlineKeyboardButton{
				Text:         btn.Text,
				CallbackData: btn.CallbackData,
				URL:          btn.URL,
			}
		}
	}

	return markup
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTE INFO (for introspection)
// ══════════════════════════════════════════════════════════════════════════════

// GetRegisteredCommands returns a list of registered command names.
func (r *Router) GetRegisteredCommands() []string {
	r.commandHandlersMu.RLock()
	defer r.commandHandlersMu.RUnlock()

	commands := make([]string, 0, len(r.commandHandlers))
	for cmd := range r.commandHandlers {
		commands = append(commands, cmd)
	}
	return commands
}
