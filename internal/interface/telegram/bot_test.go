package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbcub/studentdir/internal/application/command"
	"github.com/jbcub/studentdir/internal/application/query"
	"github.com/jbcub/studentdir/internal/domain/access"
	"github.com/jbcub/studentdir/internal/domain/resolution"
	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/infrastructure/external/telegram"
	"github.com/jbcub/studentdir/internal/interface/telegram/middleware"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type sentMessage struct {
	ChatID   int64
	Text     string
	Keyboard *telegram.InlineKeyboardMarkup
}

type editedMessage struct {
	ChatID    int64
	MessageID int64
	Text      string
}

type answeredCallback struct {
	ID    string
	Text  string
	Alert bool
}

type fakeAPI struct {
	mu       sync.Mutex
	sent     []sentMessage
	edited   []editedMessage
	answered []answeredCallback
	webhook  string
}

func (f *fakeAPI) SendMessage(_ context.Context, p telegram.SendMessageParams) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{ChatID: p.ChatID, Text: p.Text, Keyboard: p.ReplyMarkup})
	return &telegram.Message{MessageID: int64(len(f.sent))}, nil
}

func (f *fakeAPI) EditMessageText(_ context.Context, chatID, messageID int64, text, _ string, _ *telegram.InlineKeyboardMarkup) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, editedMessage{ChatID: chatID, MessageID: messageID, Text: text})
	return &telegram.Message{MessageID: messageID}, nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, id, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, answeredCallback{ID: id, Text: text, Alert: alert})
	return nil
}

func (f *fakeAPI) GetFile(_ context.Context, fileID string) (*telegram.File, error) {
	return &telegram.File{FileID: fileID, FilePath: "documents/" + fileID}, nil
}

func (f *fakeAPI) DownloadFile(context.Context, string, int64) ([]byte, error) {
	return []byte("First name,Last name\nIvan,Petrov\n"), nil
}

func (f *fakeAPI) GetMe(context.Context) (*telegram.User, error) {
	return &telegram.User{ID: 1, Username: "directory_bot"}, nil
}

func (f *fakeAPI) SetWebhook(_ context.Context, url, _ string, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhook = url
	return nil
}

func (f *fakeAPI) DeleteWebhook(context.Context, bool) error { return nil }

func (f *fakeAPI) StartPolling(ctx context.Context, _ telegram.UpdateHandler) error {
	<-ctx.Done()
	return nil
}

func (f *fakeAPI) lastSent(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "no message was sent")
	return f.sent[len(f.sent)-1]
}

type fakeSearch struct {
	result *query.SearchStudentsResult
	err    error
	panics bool
	last   query.SearchStudentsQuery
}

func (f *fakeSearch) Handle(_ context.Context, q query.SearchStudentsQuery) (*query.SearchStudentsResult, error) {
	if f.panics {
		panic("index corrupted")
	}
	f.last = q
	return f.result, f.err
}

type fakeCards struct {
	cards map[string]*query.StudentCardDTO
}

func (f *fakeCards) Handle(_ context.Context, q query.GetStudentCardQuery) (*query.StudentCardDTO, error) {
	card, ok := f.cards[q.StudentID]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return card, nil
}

type fakeAccess struct {
	roles map[int64]access.Role
}

func (f *fakeAccess) Handle(_ context.Context, q query.CheckAccessQuery) (access.Role, error) {
	return f.roles[q.TelegramID], nil
}

type fakeImporter struct {
	calls []command.ImportStudentsCommand
}

func (f *fakeImporter) Handle(_ context.Context, cmd command.ImportStudentsCommand) (*resolution.Report, error) {
	f.calls = append(f.calls, cmd)
	return &resolution.Report{RunID: "run-1", DryRun: cmd.DryRun, Rows: len(cmd.Rows), Created: len(cmd.Rows)}, nil
}

type fakeReports struct{}

func (fakeReports) Handle(context.Context, int64) (*resolution.Report, error) { return nil, nil }

type denyAll struct{}

func (denyAll) Check(context.Context, int64) *middleware.RateLimitResult {
	return &middleware.RateLimitResult{Allowed: false, RetryAfter: time.Minute, ResponseMessage: middleware.RateLimitMessage(time.Minute)}
}

type countingDenials struct{ n int }

func (c *countingDenials) AccessDenied() { c.n++ }

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

const (
	adminID    int64 = 100
	memberID   int64 = 200
	strangerID int64 = 300
	cardID           = "0b8e8f9c-3f5e-4d1a-9a7e-1f2d3c4b5a69"
)

type botFixture struct {
	bot      *Bot
	api      *fakeAPI
	search   *fakeSearch
	importer *fakeImporter
	denials  *countingDenials
}

func newBotFixture(t *testing.T, mutate func(*BotDependencies)) *botFixture {
	t.Helper()

	f := &botFixture{
		api: &fakeAPI{},
		search: &fakeSearch{result: &query.SearchStudentsResult{
			Outcome: query.OutcomeUnique,
			Card:    &query.StudentCardDTO{StudentID: cardID, FullName: "Ivan Petrov"},
			Total:   1,
		}},
		importer: &fakeImporter{},
		denials:  &countingDenials{},
	}

	deps := BotDependencies{
		Search: f.search,
		Cards: &fakeCards{cards: map[string]*query.StudentCardDTO{
			cardID: {
				StudentID: cardID,
				FullName:  "Ivan Petrov",
				Courses:   []query.CourseDTO{{Name: "Algebra", Grade: 5}},
			},
		}},
		CheckAccess: &fakeAccess{roles: map[int64]access.Role{
			adminID:  access.RoleAdmin,
			memberID: access.RoleMember,
		}},
		Import:       f.importer,
		LastReport:   fakeReports{},
		RedeemInvite: nil,
		Denials:      f.denials,
		RateLimit:    middleware.RateLimitConfig{RequestsPerMinute: 600, BurstSize: 100},
	}
	if mutate != nil {
		mutate(&deps)
	}

	bot, err := NewBotWithAPI(BotConfig{Logger: nil}, deps, f.api)
	require.NoError(t, err)
	t.Cleanup(func() {
		if bot.ownLimiter != nil {
			bot.ownLimiter.Close()
		}
	})
	f.bot = bot
	return f
}

func textUpdate(from int64, text string) *telegram.Update {
	msg := &telegram.Message{
		MessageID: 10,
		From:      &telegram.User{ID: from, FirstName: "Ann"},
		Chat:      &telegram.Chat{ID: from, Type: "private"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmdLen := len(text)
		if i := strings.IndexByte(text, ' '); i > 0 {
			cmdLen = i
		}
		msg.Entities = []telegram.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}}
	}
	return &telegram.Update{UpdateID: 1, Message: msg}
}

func callbackUpdate(from int64, data string) *telegram.Update {
	return &telegram.Update{
		UpdateID: 2,
		CallbackQuery: &telegram.CallbackQuery{
			ID:   "cb-1",
			From: &telegram.User{ID: from},
			Data: data,
			Message: &telegram.Message{
				MessageID: 42,
				Chat:      &telegram.Chat{ID: from, Type: "private"},
			},
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestBot_SearchByMemberSendsCard(t *testing.T) {
	f := newBotFixture(t, nil)

	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(memberID, "ivan petrov")))

	msg := f.api.lastSent(t)
	assert.Equal(t, memberID, msg.ChatID)
	assert.Contains(t, msg.Text, "<b>Ivan Petrov</b>")
	require.NotNil(t, msg.Keyboard)
	assert.Equal(t, "courses:"+cardID, msg.Keyboard.InlineKeyboard[0][0].CallbackData)

	assert.Equal(t, "ivan petrov", f.search.last.Text)
	assert.False(t, f.search.last.IncludeSecret)
}

func TestBot_SearchByAdminIncludesSecret(t *testing.T) {
	f := newBotFixture(t, nil)

	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(adminID, "ivan")))
	assert.True(t, f.search.last.IncludeSecret)
}

func TestBot_StrangerIsDenied(t *testing.T) {
	f := newBotFixture(t, nil)

	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(strangerID, "ivan")))

	assert.Equal(t, middleware.DefaultAuthConfig().DeniedMessage, f.api.lastSent(t).Text)
	assert.Equal(t, 1, f.denials.n)
	assert.Empty(t, f.search.last.Text)
}

func TestBot_StartIsPublic(t *testing.T) {
	f := newBotFixture(t, nil)

	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(strangerID, "/start")))

	assert.Contains(t, f.api.lastSent(t).Text, "Ann")
	assert.Zero(t, f.denials.n)
}

func TestBot_ReportNeedsAdmin(t *testing.T) {
	f := newBotFixture(t, nil)

	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(memberID, "/report")))
	assert.Equal(t, middleware.DefaultAuthConfig().AdminOnlyMessage, f.api.lastSent(t).Text)

	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(adminID, "/report")))
	assert.NotEqual(t, middleware.DefaultAuthConfig().AdminOnlyMessage, f.api.lastSent(t).Text)
}

func TestBot_UnknownCommand(t *testing.T) {
	f := newBotFixture(t, nil)

	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(memberID, "/top")))
	assert.Contains(t, f.api.lastSent(t).Text, "Unknown command")
}

func TestBot_DocumentImportByAdmin(t *testing.T) {
	f := newBotFixture(t, nil)

	update := &telegram.Update{
		UpdateID: 3,
		Message: &telegram.Message{
			MessageID: 11,
			From:      &telegram.User{ID: adminID},
			Chat:      &telegram.Chat{ID: adminID, Type: "private"},
			Document:  &telegram.Document{FileID: "f1", FileName: "students.csv", FileSize: 64},
			Caption:   "dry",
		},
	}
	require.NoError(t, f.bot.HandleUpdate(context.Background(), update))

	require.Len(t, f.importer.calls, 1)
	call := f.importer.calls[0]
	assert.True(t, call.DryRun)
	assert.Equal(t, adminID, call.ChatID)
	assert.Len(t, call.Rows, 1)
	assert.Contains(t, f.api.lastSent(t).Text, "Dry run")
}

func TestBot_DocumentFromMemberIsRefused(t *testing.T) {
	f := newBotFixture(t, nil)

	update := &telegram.Update{Message: &telegram.Message{
		From:     &telegram.User{ID: memberID},
		Chat:     &telegram.Chat{ID: memberID},
		Document: &telegram.Document{FileID: "f1", FileName: "students.csv"},
	}}
	require.NoError(t, f.bot.HandleUpdate(context.Background(), update))

	assert.Empty(t, f.importer.calls)
	assert.Equal(t, middleware.DefaultAuthConfig().AdminOnlyMessage, f.api.lastSent(t).Text)
}

func TestBot_CoursesCallbackEditsMessage(t *testing.T) {
	f := newBotFixture(t, nil)

	require.NoError(t, f.bot.HandleUpdate(context.Background(), callbackUpdate(memberID, "courses:"+cardID)))

	f.api.mu.Lock()
	defer f.api.mu.Unlock()
	require.Len(t, f.api.answered, 1)
	require.Len(t, f.api.edited, 1)
	assert.Equal(t, int64(42), f.api.edited[0].MessageID)
	assert.Contains(t, f.api.edited[0].Text, "Algebra")
	assert.Empty(t, f.api.sent)
}

func TestBot_PickCallbackSendsNewMessage(t *testing.T) {
	f := newBotFixture(t, nil)

	require.NoError(t, f.bot.HandleUpdate(context.Background(), callbackUpdate(memberID, "pick:"+cardID)))

	assert.Contains(t, f.api.lastSent(t).Text, "Ivan Petrov")
	f.api.mu.Lock()
	defer f.api.mu.Unlock()
	assert.Empty(t, f.api.edited)
}

func TestBot_CallbackFromStrangerAlerts(t *testing.T) {
	f := newBotFixture(t, nil)

	require.NoError(t, f.bot.HandleUpdate(context.Background(), callbackUpdate(strangerID, "pick:"+cardID)))

	f.api.mu.Lock()
	defer f.api.mu.Unlock()
	require.Len(t, f.api.answered, 1)
	assert.True(t, f.api.answered[0].Alert)
	assert.Empty(t, f.api.sent)
}

func TestBot_RateLimitedUser(t *testing.T) {
	f := newBotFixture(t, func(d *BotDependencies) { d.Limiter = denyAll{} })

	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(memberID, "ivan")))

	assert.Contains(t, f.api.lastSent(t).Text, "Too many requests")
	assert.Empty(t, f.search.last.Text)
}

func TestBot_PanicIsRecovered(t *testing.T) {
	f := newBotFixture(t, nil)
	f.search.panics = true

	require.NoError(t, f.bot.HandleUpdate(context.Background(), textUpdate(memberID, "ivan")))

	assert.Equal(t, middleware.DefaultRecoveryConfig().UserErrorMessage, f.api.lastSent(t).Text)

	stats := f.bot.GetStats()
	require.NotNil(t, stats.Actions)
	require.Len(t, stats.Actions.Actions, 1)
	assert.Equal(t, int64(1), stats.Actions.Actions[0].Statuses[middleware.StatusPanic])
}

func TestBot_SearchErrorIsCounted(t *testing.T) {
	f := newBotFixture(t, nil)
	f.search.err = errors.New("database is down")

	err := f.bot.HandleUpdate(context.Background(), textUpdate(memberID, "ivan"))
	require.Error(t, err)

	assert.Equal(t, int64(1), f.bot.GetStats().ErrorsCount)
}

func TestBot_HandleTelegramUpdate(t *testing.T) {
	f := newBotFixture(t, nil)

	require.Error(t, f.bot.HandleTelegramUpdate(context.Background(), []byte("{not json")))

	payload := []byte(`{"update_id":5,"message":{"message_id":1,"from":{"id":200,"first_name":"Ann"},"chat":{"id":200,"type":"private"},"text":"ivan"}}`)
	require.NoError(t, f.bot.HandleTelegramUpdate(context.Background(), payload))

	f.bot.wg.Wait()
	assert.Contains(t, f.api.lastSent(t).Text, "Ivan Petrov")
}

func TestBot_WebhookModeRegistersURL(t *testing.T) {
	api := &fakeAPI{}
	deps := BotDependencies{
		Search:      &fakeSearch{},
		Cards:       &fakeCards{},
		CheckAccess: &fakeAccess{},
	}
	bot, err := NewBotWithAPI(BotConfig{Mode: ModeWebhook, WebhookURL: "https://example.org/telegram/webhook"}, deps, api)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Start(ctx) }()

	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return api.webhook != ""
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, bot.Stop(context.Background()))
	assert.False(t, bot.IsRunning())
}

func TestNewBotWithAPI_RequiresDependencies(t *testing.T) {
	_, err := NewBotWithAPI(BotConfig{}, BotDependencies{}, &fakeAPI{})
	assert.Error(t, err)

	_, err = NewBot(BotConfig{}, BotDependencies{})
	assert.Error(t, err)
}

func TestCallbackAction(t *testing.T) {
	assert.Equal(t, "callback_courses", callbackAction("courses:abc"))
	assert.Equal(t, "callback", callbackAction("garbage"))
}
