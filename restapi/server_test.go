package restapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/listora/listora"
	"github.com/listora/listora/commands"
	"github.com/listora/listora/lock"
	"github.com/listora/listora/mocks"
	"github.com/listora/listora/registry"
	"github.com/listora/listora/write"
)

func newTestServer(t *testing.T) (*Server, *mocks.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := mocks.NewStore()
	opts := listora.DefaultOptions()
	opts.RetryBaseDelay = time.Millisecond
	orch := write.NewOrchestrator(store, lock.NewManager(time.Minute), opts)

	reg, err := registry.Open(filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reg.Close() })
	if err := reg.Upsert(context.Background(), registry.Channel{
		ChannelID: "chan-1", TableName: "groceries",
	}); err != nil {
		t.Fatal(err)
	}
	return NewServer(commands.NewService(store, orch, reg), reg), store
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestGetChannels(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(t, s, http.MethodGet, "/channels", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
	var chans []registry.Channel
	if err := json.Unmarshal(w.Body.Bytes(), &chans); err != nil {
		t.Fatal(err)
	}
	if len(chans) != 1 || chans[0].ChannelID != "chan-1" {
		t.Errorf("unexpected channels: %+v", chans)
	}
}

func TestPutChannel(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(t, s, http.MethodPut, "/channels/chan-2", `{"table_name":"errands","timezone":"Europe/Paris"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", w.Code, w.Body.String())
	}
	w = doRequest(t, s, http.MethodGet, "/channels", "")
	var chans []registry.Channel
	json.Unmarshal(w.Body.Bytes(), &chans)
	if len(chans) != 2 {
		t.Errorf("got %d channels, want 2", len(chans))
	}
}

func TestPostItemsAndGetItems(t *testing.T) {
	s, store := newTestServer(t)
	w := doRequest(t, s, http.MethodPost, "/channels/chan-1/items", `{"input":"milk | 1\nbread"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", w.Code, w.Body.String())
	}
	if got := len(store.Rows("groceries")); got != 2 {
		t.Errorf("got %d rows, want 2", got)
	}

	w = doRequest(t, s, http.MethodGet, "/channels/chan-1/items", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
	var rows []listora.Row
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Errorf("got %d rows, want 2", len(rows))
	}
}

func TestPostItemsDuplicateConflict(t *testing.T) {
	s, _ := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/channels/chan-1/items", `{"input":"milk"}`)
	w := doRequest(t, s, http.MethodPost, "/channels/chan-1/items", `{"input":"milk"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("got status %d, want 409", w.Code)
	}
}

func TestDeleteItem(t *testing.T) {
	s, store := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/channels/chan-1/items", `{"input":"milk"}`)
	w := doRequest(t, s, http.MethodDelete, "/channels/chan-1/items/milk", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", w.Code, w.Body.String())
	}
	if got := len(store.Rows("groceries")); got != 0 {
		t.Errorf("got %d rows, want 0", got)
	}
}

func TestPostItemsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	w := doRequest(t, s, http.MethodPost, "/channels/chan-1/items", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", w.Code)
	}
}
