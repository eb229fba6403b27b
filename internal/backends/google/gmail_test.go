package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/workmate/config"
)

func TestListMessagesSkipsFailedHydration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/users/me/messages":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"messages": []map[string]string{
					{"id": "m1", "threadId": "t1"},
					{"id": "m2", "threadId": "t2"},
					{"id": "m3", "threadId": "t3"},
				},
			})
		case strings.HasSuffix(r.URL.Path, "/messages/m2"):
			http.Error(w, "not found", http.StatusNotFound)
		default:
			id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(Message{ID: id, Snippet: "hello"})
		}
	}))
	defer srv.Close()

	client := NewClient(config.GoogleConfig{StaticToken: "tok"}, nil)
	gmail := NewGmail(client, srv.URL)

	messages, err := gmail.ListMessages(context.Background(), "alice", "hello", 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 hydrated messages, got %d", len(messages))
	}
	if messages[0].ID != "m1" || messages[1].ID != "m3" {
		t.Fatalf("wrong messages survived: %+v", messages)
	}
}
