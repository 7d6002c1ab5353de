package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/xiaot623/tgrelay/internal/classify"
	"github.com/xiaot623/tgrelay/internal/domain"
	"github.com/xiaot623/tgrelay/internal/messenger"
	"github.com/xiaot623/tgrelay/internal/notify"
	"github.com/xiaot623/tgrelay/internal/policy"
	"github.com/xiaot623/tgrelay/internal/presence"
	"github.com/xiaot623/tgrelay/internal/relay"
	store "github.com/xiaot623/tgrelay/internal/repository"
	"github.com/xiaot623/tgrelay/internal/service"
	"github.com/xiaot623/tgrelay/internal/tempstore"
	"github.com/xiaot623/tgrelay/internal/testutil"
)

func newTestHandler(t *testing.T, platform *messenger.MockPlatform) (*Handler, store.Store) {
	db := testutil.NewTestSQLiteStore(t)
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	temp, err := tempstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("tempstore failed: %v", err)
	}
	loop := testutil.StartLoop(t, platform)
	bridge := relay.NewBridge(loop, db, notify.Nop{}, temp, classify.New(), policyEngine, relay.Config{SendTimeout: time.Second}, zerolog.Nop())
	svc := service.New(db, presence.NewStoreTracker(db, 0), service.Config{ChannelURL: "https://t.me/news"}, zerolog.Nop())
	return NewHandler(svc, bridge, "test"), db
}

func TestHealth(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, messenger.NewMockPlatform())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Health(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestSendOne(t *testing.T) {
	e := echo.New()
	platform := messenger.NewMockPlatform()
	h, db := newTestHandler(t, platform)

	req := httptest.NewRequest(http.MethodPost, "/send_one", bytes.NewBufferString(`{"user_id":42,"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SendOne(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	msgs, err := db.ListRecent(context.Background(), 42, 10)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != domain.RoleAdmin {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if len(platform.CallsTo("SendText")) != 1 {
		t.Fatalf("expected one platform send")
	}
}

func TestSendOneValidation(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, messenger.NewMockPlatform())

	req := httptest.NewRequest(http.MethodPost, "/send_one", bytes.NewBufferString(`{"user_id":42}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SendOne(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSendOnePlatformFailure(t *testing.T) {
	e := echo.New()
	platform := messenger.NewMockPlatform()
	platform.SendTextFunc = func(context.Context, int64, string) (*messenger.PlatformMessage, error) {
		return nil, context.DeadlineExceeded
	}
	h, _ := newTestHandler(t, platform)

	req := httptest.NewRequest(http.MethodPost, "/send_one", strings.NewReader("user_id=42&message=hello"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SendOne(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["status"] != "error" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func multipartRequest(t *testing.T, target, message string, files map[string][]byte, mimes map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if message != "" {
		_ = w.WriteField("message", message)
	}
	for name, data := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		header.Set("Content-Type", mimes[name])
		part, err := w.CreatePart(header)
		if err != nil {
			t.Fatalf("CreatePart failed: %v", err)
		}
		_, _ = part.Write(data)
	}
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestSendChatWithFile(t *testing.T) {
	e := echo.New()
	platform := messenger.NewMockPlatform()
	h, db := newTestHandler(t, platform)

	req := multipartRequest(t, "/chat/5", "look",
		map[string][]byte{"b.dat": []byte("GIF89a......")},
		map[string]string{"b.dat": "image/gif"})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("user_id")
	c.SetParamValues("5")

	if err := h.SendChat(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	msgs, err := db.ListRecent(context.Background(), 5, 10)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Body.Text != "look" || msgs[1].Body.Kind != domain.MediaKindGIF {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestSendChatNothingToSend(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, messenger.NewMockPlatform())

	req := multipartRequest(t, "/chat/5", "", nil, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("user_id")
	c.SetParamValues("5")

	if err := h.SendChat(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No message or files sent") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestSendAll(t *testing.T) {
	e := echo.New()
	h, db := newTestHandler(t, messenger.NewMockPlatform())
	ctx := context.Background()
	for _, id := range []int64{1, 2} {
		if _, err := db.UpsertUser(ctx, &domain.User{ID: id, JoinDate: time.Now()}); err != nil {
			t.Fatalf("UpsertUser failed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/send_all", bytes.NewBufferString(`{"message":"hi all"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SendAll(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["count"] != float64(2) {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestUserEndpoints(t *testing.T) {
	e := echo.New()
	h, db := newTestHandler(t, messenger.NewMockPlatform())
	ctx := context.Background()
	if _, err := db.UpsertUser(ctx, &domain.User{ID: 3, FullName: "Cy", JoinDate: time.Now()}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	// label
	req := httptest.NewRequest(http.MethodPost, "/user/3/label", bytes.NewBufferString(`{"label":"vip"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("user_id")
	c.SetParamValues("3")
	if err := h.SetLabel(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// status of unknown user
	req = httptest.NewRequest(http.MethodGet, "/user-status/404", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("user_id")
	c.SetParamValues("404")
	if err := h.GetUserStatus(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	// directory
	req = httptest.NewRequest(http.MethodGet, "/dashboard-users?page=1&page_size=5", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if err := h.ListUsers(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var page service.UsersPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if page.Total != 1 || page.PageSize != 5 || page.Users[0].Label != "vip" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestStatsAndInviteLink(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, messenger.NewMockPlatform())

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/dashboard-stats", nil), rec)
	if err := h.GetStats(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total_users":0`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/get_channel_invite_link", nil), rec)
	if err := h.GetChannelInviteLink(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "https://t.me/news") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}
