package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/open-builders/adkamai/internal/common/errors"
	"github.com/open-builders/adkamai/internal/features/bot/models"
)

const testToken = "123:abc"

type apiCall struct {
	method string
	params map[string]string
}

// fakeBotAPI is a minimal Bot API server. Responses are keyed by method name.
type fakeBotAPI struct {
	mu        sync.Mutex
	calls     []apiCall
	responses map[string]string
	server    *httptest.Server
}

func newFakeBotAPI(t *testing.T) *fakeBotAPI {
	t.Helper()
	f := &fakeBotAPI{responses: map[string]string{
		"getMe":               `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Kamai","username":"kamai_bot"}}`,
		"sendMessage":         `{"ok":true,"result":{"message_id":42,"date":0,"chat":{"id":5,"type":"private"}}}`,
		"getChatMember":       `{"ok":true,"result":{"status":"member","user":{"id":5,"is_bot":false,"first_name":"A"}}}`,
		"answerCallbackQuery": `{"ok":true,"result":true}`,
		"deleteWebhook":       `{"ok":true,"result":true}`,
		"setWebhook":          `{"ok":true,"result":true}`,
	}}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBotAPI) serve(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	params := map[string]string{}
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{method: method, params: params})
	body, ok := f.responses[method]
	f.mu.Unlock()

	if !ok {
		body = `{"ok":false,"error_code":404,"description":"Not Found"}`
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, body)
}

func (f *fakeBotAPI) respond(method, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method] = body
}

func (f *fakeBotAPI) last(method string) (apiCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].method == method {
			return f.calls[i], true
		}
	}
	return apiCall{}, false
}

func (f *fakeBotAPI) client(t *testing.T, group string) *Client {
	t.Helper()
	c, err := NewClientWithEndpoint(testToken, group, f.server.URL+"/bot%s/%s", f.server.Client(), false)
	require.NoError(t, err)
	return c
}

func TestNewClientReadsUsername(t *testing.T) {
	f := newFakeBotAPI(t)
	c := f.client(t, "-100123")
	assert.Equal(t, "kamai_bot", c.Username())
}

func TestNewClientRejectsBadToken(t *testing.T) {
	f := newFakeBotAPI(t)
	f.respond("getMe", `{"ok":false,"error_code":401,"description":"Unauthorized"}`)

	_, err := NewClientWithEndpoint(testToken, "-100123", f.server.URL+"/bot%s/%s", f.server.Client(), false)
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeTelegramAPI, appErr.Code)
}

func TestSendWithMenu(t *testing.T) {
	f := newFakeBotAPI(t)
	c := f.client(t, "-100123")

	id, err := c.Send(context.Background(), 5, models.Message{
		Text:                "<b>hi</b>",
		HTML:                true,
		Menu:                [][]string{{"💰 Balance", "🎬 Watch Ad"}},
		DisableLinkPreviews: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	call, ok := f.last("sendMessage")
	require.True(t, ok)
	assert.Equal(t, "5", call.params["chat_id"])
	assert.Equal(t, "<b>hi</b>", call.params["text"])
	assert.Equal(t, "HTML", call.params["parse_mode"])
	assert.Equal(t, "true", call.params["disable_web_page_preview"])

	var markup struct {
		Keyboard [][]struct {
			Text string `json:"text"`
		} `json:"keyboard"`
		Resize bool `json:"resize_keyboard"`
	}
	require.NoError(t, json.Unmarshal([]byte(call.params["reply_markup"]), &markup))
	assert.True(t, markup.Resize)
	require.Len(t, markup.Keyboard, 1)
	assert.Equal(t, "💰 Balance", markup.Keyboard[0][0].Text)
	assert.Equal(t, "🎬 Watch Ad", markup.Keyboard[0][1].Text)
}

func TestSendWithInlineButtons(t *testing.T) {
	f := newFakeBotAPI(t)
	c := f.client(t, "-100123")

	_, err := c.Send(context.Background(), 5, models.Message{
		Text: "pick",
		Inline: [][]models.InlineButton{
			{{Text: "Open", URL: "https://example.com"}},
			{{Text: "Go", CallbackData: "pre_ad"}, {Text: "Share", SwitchQuery: "join me"}},
		},
	})
	require.NoError(t, err)

	call, _ := f.last("sendMessage")
	_, hasParseMode := call.params["parse_mode"]
	assert.False(t, hasParseMode)

	var markup struct {
		Inline [][]struct {
			Text         string  `json:"text"`
			URL          *string `json:"url"`
			CallbackData *string `json:"callback_data"`
			Switch       *string `json:"switch_inline_query"`
		} `json:"inline_keyboard"`
	}
	require.NoError(t, json.Unmarshal([]byte(call.params["reply_markup"]), &markup))
	require.Len(t, markup.Inline, 2)
	require.NotNil(t, markup.Inline[0][0].URL)
	assert.Equal(t, "https://example.com", *markup.Inline[0][0].URL)
	require.NotNil(t, markup.Inline[1][0].CallbackData)
	assert.Equal(t, "pre_ad", *markup.Inline[1][0].CallbackData)
	require.NotNil(t, markup.Inline[1][1].Switch)
	assert.Equal(t, "join me", *markup.Inline[1][1].Switch)
}

func TestSendForceReplyWinsOverMenu(t *testing.T) {
	f := newFakeBotAPI(t)
	c := f.client(t, "-100123")

	_, err := c.Send(context.Background(), 5, models.Message{
		Text:       "address?",
		ForceReply: true,
		Menu:       [][]string{{"💰 Balance"}},
	})
	require.NoError(t, err)

	call, _ := f.last("sendMessage")
	assert.Contains(t, call.params["reply_markup"], `"force_reply":true`)
	assert.NotContains(t, call.params["reply_markup"], "keyboard")
}

func TestSendErrorIsTelegramAPIError(t *testing.T) {
	f := newFakeBotAPI(t)
	c := f.client(t, "-100123")
	f.respond("sendMessage", `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`)

	_, err := c.Send(context.Background(), 5, models.Message{Text: "x"})
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeTelegramAPI, appErr.Code)
	assert.Equal(t, int64(5), appErr.Details["chat_id"])
}

func TestSendHonoursCancelledContext(t *testing.T) {
	f := newFakeBotAPI(t)
	c := f.client(t, "-100123")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Send(ctx, 5, models.Message{Text: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	_, sent := f.last("sendMessage")
	assert.False(t, sent)
}

func TestPostToGroupTarget(t *testing.T) {
	cases := []struct {
		group  string
		chatID string
	}{
		{group: "-100123", chatID: "-100123"},
		{group: "@kamai_group", chatID: "@kamai_group"},
	}
	for _, tc := range cases {
		t.Run(tc.group, func(t *testing.T) {
			f := newFakeBotAPI(t)
			c := f.client(t, tc.group)

			require.NoError(t, c.PostToGroup(context.Background(), models.Message{Text: "hello group"}))
			call, ok := f.last("sendMessage")
			require.True(t, ok)
			assert.Equal(t, tc.chatID, call.params["chat_id"])
			assert.Equal(t, "hello group", call.params["text"])
		})
	}
}

func TestIsMemberStatuses(t *testing.T) {
	cases := []struct {
		status   string
		isMember bool
		want     bool
	}{
		{status: "creator", want: true},
		{status: "administrator", want: true},
		{status: "member", want: true},
		{status: "restricted", isMember: true, want: true},
		{status: "restricted", isMember: false, want: false},
		{status: "left", want: false},
		{status: "kicked", want: false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s/%v", tc.status, tc.isMember), func(t *testing.T) {
			f := newFakeBotAPI(t)
			f.respond("getChatMember", fmt.Sprintf(
				`{"ok":true,"result":{"status":%q,"is_member":%v,"user":{"id":5,"is_bot":false,"first_name":"A"}}}`,
				tc.status, tc.isMember))
			c := f.client(t, "-100123")

			got, err := c.IsMember(context.Background(), 5)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			call, _ := f.last("getChatMember")
			assert.Equal(t, "-100123", call.params["chat_id"])
			assert.Equal(t, "5", call.params["user_id"])
		})
	}
}

func TestIsMemberByGroupUsername(t *testing.T) {
	f := newFakeBotAPI(t)
	c := f.client(t, "kamai_group")

	ok, err := c.IsMember(context.Background(), 9)
	require.NoError(t, err)
	assert.True(t, ok)

	call, _ := f.last("getChatMember")
	assert.Equal(t, "@kamai_group", call.params["chat_id"])
}

func TestIsMemberAPIError(t *testing.T) {
	f := newFakeBotAPI(t)
	f.respond("getChatMember", `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	c := f.client(t, "-100123")

	ok, err := c.IsMember(context.Background(), 5)
	require.Error(t, err)
	assert.False(t, ok)
	appErr, isApp := apperrors.AsAppError(err)
	require.True(t, isApp)
	assert.Equal(t, int64(5), appErr.UserID)
}

func TestSetWebhook(t *testing.T) {
	f := newFakeBotAPI(t)
	c := f.client(t, "-100123")

	require.NoError(t, c.SetWebhook("https://kamai.example/telegram/webhook", "hook_secret"))
	call, ok := f.last("setWebhook")
	require.True(t, ok)
	assert.Equal(t, "https://kamai.example/telegram/webhook", call.params["url"])
	assert.Equal(t, "hook_secret", call.params["secret_token"])

	require.NoError(t, c.DeleteWebhook())
	_, ok = f.last("deleteWebhook")
	assert.True(t, ok)
}
