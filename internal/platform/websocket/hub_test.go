package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthflow/fhirsync/internal/platform/events"
)

func newClient(id string, topics ...string) *Client {
	return &Client{ID: id, Topics: topics, Send: make(chan []byte, sendBuffer)}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c1", TopicSync)

	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount(TopicSync) != 1 {
		t.Fatalf("expected 1 subscriber on sync, got %d", hub.TopicCount(TopicSync))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount(TopicSync) != 0 {
		t.Fatal("expected hub to be empty after unregister")
	}
	if _, ok := <-client.Send; ok {
		t.Fatal("expected Send channel to be closed")
	}

	// Second unregister is a no-op.
	hub.Unregister(client)
}

func TestHub_PublishRoutesSubjectEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	all := newClient("all", TopicSync)
	p1 := newClient("p1", SubjectTopic("p1"))
	p2 := newClient("p2", SubjectTopic("p2"))
	hub.Register(all)
	hub.Register(p1)
	hub.Register(p2)

	err := hub.Publish(context.Background(), events.Event{Type: events.TypeSubjectSynced, SubjectID: "p1", ResourceCount: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(all.Send) != 1 {
		t.Errorf("expected sync subscriber to receive the event, got %d", len(all.Send))
	}
	if len(p1.Send) != 1 {
		t.Errorf("expected p1 subscriber to receive the event, got %d", len(p1.Send))
	}
	if len(p2.Send) != 0 {
		t.Errorf("expected p2 subscriber to receive nothing, got %d", len(p2.Send))
	}

	var got events.Event
	json.Unmarshal(<-p1.Send, &got)
	if got.ResourceCount != 5 {
		t.Errorf("expected resourceCount 5, got %d", got.ResourceCount)
	}
}

func TestHub_BulkEventGoesToSyncTopicOnly(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	all := newClient("all", TopicSync)
	hub.Register(all)

	hub.Publish(context.Background(), events.Event{Type: events.TypeBulkCompleted, Synced: 3})
	if len(all.Send) != 1 {
		t.Errorf("expected 1 message, got %d", len(all.Send))
	}
}

func TestHub_FullBufferDropsMessage(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	slow := &Client{ID: "slow", Topics: []string{TopicSync}, Send: make(chan []byte, 1)}
	hub.Register(slow)

	if n := hub.Broadcast(TopicSync, []byte(`1`)); n != 1 {
		t.Fatalf("expected first message delivered, got %d", n)
	}
	if n := hub.Broadcast(TopicSync, []byte(`2`)); n != 0 {
		t.Fatalf("expected second message dropped, got %d", n)
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient("c1")
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"subject/a", "subject/b", "subject/a"}})
	if len(client.Topics) != 2 {
		t.Fatalf("expected 2 topics without duplicates, got %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{"subject/a"}})
	if hub.TopicCount("subject/a") != 0 || hub.TopicCount("subject/b") != 1 {
		t.Fatalf("unexpected subscriptions after unsubscribe: %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "bogus", Topics: []string{"x"}})
	if hub.TopicCount("x") != 0 {
		t.Fatal("expected unknown action to be ignored")
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newClient("c", TopicSync)
			hub.Register(c)
			hub.Publish(context.Background(), events.Event{Type: events.TypeSubjectFailed, SubjectID: "x"})
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHandler_HandleConnectRequiresWebSocket(t *testing.T) {
	handler := NewHandler(NewHub(zerolog.Nop()), nil)
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws", nil), rec)

	err := handler.HandleConnect(c)
	if err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("expected upgrade to fail for non-websocket request")
	}
}

func TestHandler_RejectsUnknownOrigin(t *testing.T) {
	handler := NewHandler(NewHub(zerolog.Nop()), []string{"https://console.example"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://evil.example")
	if handler.upgrader.CheckOrigin(req) {
		t.Fatal("expected origin to be rejected")
	}
	req.Header.Set("Origin", "https://console.example")
	if !handler.upgrader.CheckOrigin(req) {
		t.Fatal("expected allowed origin to pass")
	}
}

func TestHandler_FullUpgradeWithDialer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, nil).RegisterRoutes(e)

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?topics=subject/p7"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(SubjectTopic("p7")) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount(SubjectTopic("p7")) != 1 {
		t.Fatal("expected client subscribed to subject/p7")
	}

	hub.Publish(context.Background(), events.Event{Type: events.TypeSubjectSynced, SubjectID: "p7", ResourceCount: 2})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received events.Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.Type != events.TypeSubjectSynced || received.SubjectID != "p7" {
		t.Fatalf("unexpected event %+v", received)
	}
}
