package lark

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coffee-booking-backend/config"
	"coffee-booking-backend/internal/invitation"
	"coffee-booking-backend/internal/model"
	"coffee-booking-backend/internal/notification"
)

var testInvitation = model.Invitation{
	ID:          "inv-1",
	SenderID:    "ou_me",
	RecipientID: "ou_friend",
	Status:      model.InvitationPending,
	Message:     "latte?",
}

func TestEventCard(t *testing.T) {
	data, err := json.Marshal(EventCard(notification.Event{Title: "☕ 新的咖啡预约", Body: "**预约人**：Alice"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"config": {"wide_screen_mode": true},
		"header": {"template": "blue", "title": {"tag": "plain_text", "content": "☕ 新的咖啡预约"}},
		"elements": [{"tag": "div", "text": {"tag": "lark_md", "content": "**预约人**：Alice"}}]
	}`, string(data))
}

func TestInvitationCard(t *testing.T) {
	t.Run("inline card carries the id in both buttons", func(t *testing.T) {
		data, err := json.Marshal(InvitationCard(testInvitation, ""))
		require.NoError(t, err)

		var card struct {
			Elements []struct {
				Tag     string `json:"tag"`
				Actions []struct {
					Value map[string]string `json:"value"`
				} `json:"actions"`
			} `json:"elements"`
		}
		require.NoError(t, json.Unmarshal(data, &card))
		require.Len(t, card.Elements, 2)
		actions := card.Elements[1].Actions
		require.Len(t, actions, 2)
		assert.Equal(t, map[string]string{"action_type": "accept", "invitation_id": "inv-1"}, actions[0].Value)
		assert.Equal(t, map[string]string{"action_type": "reject", "invitation_id": "inv-1"}, actions[1].Value)
		assert.Contains(t, string(data), "latte?")
	})

	t.Run("template card", func(t *testing.T) {
		data, err := json.Marshal(InvitationCard(testInvitation, "AAq123"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"template","data":{"template_id":"AAq123","template_variable":{
			"open_id":"ou_friend","sender_id":"ou_me","invitation_id":"inv-1","message":"latte?"}}}`, string(data))
	})
}

func TestCheckResult(t *testing.T) {
	testCases := []struct {
		name      string
		status    int
		body      string
		wantErr   bool
		permanent bool
	}{
		{name: "ok", status: 200, body: `{"code":0,"msg":"success"}`},
		{name: "business error", status: 200, body: `{"code":230002,"msg":"bot not in chat"}`, wantErr: true},
		{name: "bad request is permanent", status: 400, body: `{"code":99992361,"msg":"open_id cross app"}`, wantErr: true, permanent: true},
		{name: "rate limited is retried", status: 429, body: `{"code":99991400,"msg":"too many requests"}`, wantErr: true},
		{name: "garbage", status: 502, body: `<html>`, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkResult(tc.status, []byte(tc.body))
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.permanent, notification.IsPermanent(err))
		})
	}
}

const messagesPath = "/open-apis/im/v1/messages"

// fakeOpenAPI serves the token and message endpoints of the open platform.
type fakeOpenAPI struct {
	mu       sync.Mutex
	messages []map[string]string
	queries  []string
}

func (f *fakeOpenAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasPrefix(r.URL.Path, "/open-apis/auth/v3/"):
		io.WriteString(w, `{"code":0,"msg":"ok","tenant_access_token":"t-test","app_access_token":"a-test","expire":7200}`)
	case r.URL.Path == messagesPath:
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.messages = append(f.messages, body)
		f.queries = append(f.queries, r.URL.RawQuery)
		f.mu.Unlock()
		io.WriteString(w, `{"code":0,"msg":"success","data":{"message_id":"om_1"}}`)
	default:
		http.NotFound(w, r)
	}
}

func TestClient_SendsCards(t *testing.T) {
	api := &fakeOpenAPI{}
	server := httptest.NewServer(api)
	defer server.Close()

	client := NewClient(config.LarkConfig{
		AppID:         "cli_" + uuid.NewString(),
		AppSecret:     "secret",
		BaseURL:       server.URL,
		ReceiveID:     "oc_group",
		ReceiveIDType: "chat_id",
	})

	require.NoError(t, client.Send(context.Background(), notification.Event{Title: "t", Body: "b"}))
	require.NoError(t, client.Send(context.Background(), notification.Event{Title: "t", Body: "b", ReceiveID: "ou_me"}))
	require.NoError(t, client.SendInvitationCard(context.Background(), testInvitation))

	require.Len(t, api.messages, 3)
	assert.Equal(t, "oc_group", api.messages[0]["receive_id"])
	assert.Equal(t, "receive_id_type=chat_id", api.queries[0])
	assert.Equal(t, "ou_me", api.messages[1]["receive_id"])
	assert.Equal(t, "receive_id_type=open_id", api.queries[1])
	assert.Equal(t, "ou_friend", api.messages[2]["receive_id"])
	assert.Equal(t, "interactive", api.messages[2]["msg_type"])
	assert.Contains(t, api.messages[2]["content"], `"invitation_id":"inv-1"`)
}

func TestClient_NoReceiver(t *testing.T) {
	client := NewClient(config.LarkConfig{AppID: "cli_x", AppSecret: "s", ReceiveIDType: "open_id"})
	err := client.Send(context.Background(), notification.Event{})
	assert.True(t, notification.IsPermanent(err))
}

func TestWebhookSink(t *testing.T) {
	testCases := []struct {
		name      string
		status    int
		reply     string
		wantErr   bool
		permanent bool
	}{
		{name: "accepted", status: 200, reply: `{"code":0,"msg":"success","data":{}}`},
		{name: "legacy reply", status: 200, reply: `{"StatusCode":0,"StatusMessage":"success"}`},
		{name: "signature rejected", status: 200, reply: `{"code":19021,"msg":"sign match fail"}`, wantErr: true, permanent: true},
		{name: "server error", status: 503, reply: `busy`, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got webhookMessage
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.reply)
			}))
			defer server.Close()

			sink := NewWebhookSink(server.URL)
			err := sink.Send(context.Background(), notification.Event{Title: "Booked", Body: "Week 1", Color: "green"})
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, tc.permanent, notification.IsPermanent(err))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, "interactive", got.MsgType)
			assert.Equal(t, "green", got.Card.Header.Template)
			assert.Equal(t, "Booked", got.Card.Header.Title.Content)
		})
	}
}

type mockCallbackHandler struct {
	mock.Mock
}

func (m *mockCallbackHandler) HandleCallback(ctx context.Context, id, action, operatorID string) (model.Invitation, error) {
	args := m.Called(id, action, operatorID)
	return args.Get(0).(model.Invitation), args.Error(1)
}

func buttonPress(action, id string) cardAction {
	raw := `{"action":{"tag":"button","value":{"action_type":"` + action + `","invitation_id":"` + id + `"}},"operator":{"open_id":"ou_friend"}}`
	a, err := decodeCardAction([]byte(raw))
	if err != nil {
		panic(err)
	}
	return a
}

func TestListener_Respond(t *testing.T) {
	accepted := testInvitation
	accepted.Status = model.InvitationAccepted
	rejected := testInvitation
	rejected.Status = model.InvitationRejected

	testCases := []struct {
		name    string
		press   cardAction
		inv     model.Invitation
		err     error
		wantZh  string
		wantEn  string
		wantTyp string
	}{
		{name: "accept", press: buttonPress("accept", "inv-1"), inv: accepted, wantTyp: "success", wantZh: "已接受邀请", wantEn: "Invitation accepted"},
		{name: "reject", press: buttonPress("reject", "inv-1"), inv: rejected, wantTyp: "success", wantZh: "已婉拒邀请", wantEn: "Invitation declined"},
		{name: "replay with the other button", press: buttonPress("reject", "inv-1"), inv: accepted, wantTyp: "info", wantZh: "邀请已经回复过了", wantEn: "Invitation already answered"},
		{name: "unknown invitation", press: buttonPress("accept", "gone"), err: invitation.ErrNotFound, wantTyp: "error", wantZh: "邀请不存在", wantEn: "Invitation not found"},
		{name: "someone else pressed", press: buttonPress("accept", "inv-1"), err: invitation.ErrNotRecipient, wantTyp: "error", wantZh: "只有受邀人可以回复", wantEn: "Only the invitee can respond"},
		{name: "store failure", press: buttonPress("accept", "inv-1"), err: errors.New("db down"), wantTyp: "error", wantZh: "系统错误", wantEn: "System error"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := &mockCallbackHandler{}
			handler.On("HandleCallback",
				tc.press.Action.Value["invitation_id"], tc.press.Action.Value["action_type"], "ou_friend").
				Return(tc.inv, tc.err).Once()

			l := NewListener("cli_x", "secret", handler)
			toast := l.respond(context.Background(), tc.press)
			assert.Equal(t, tc.wantTyp, toast.Type)
			assert.Equal(t, tc.wantZh, toast.Content)
			assert.Equal(t, map[string]string{"zh_cn": tc.wantZh, "en_us": tc.wantEn}, toast.I18n)
			handler.AssertExpectations(t)
		})
	}

	t.Run("non-button actions are acknowledged", func(t *testing.T) {
		handler := &mockCallbackHandler{}
		l := NewListener("cli_x", "secret", handler)
		a, err := decodeCardAction([]byte(`{"action":{"tag":"select_static"}}`))
		require.NoError(t, err)
		toast := l.respond(context.Background(), a)
		assert.Equal(t, "卡片交互成功", toast.Content)
		handler.AssertNotCalled(t, "HandleCallback", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestToastResponse(t *testing.T) {
	resp, err := toastResponse(newToast("success", "已接受邀请", "Invitation accepted"))
	require.NoError(t, err)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"content":"已接受邀请"`)
	assert.Contains(t, string(data), `"en_us":"Invitation accepted"`)
}
