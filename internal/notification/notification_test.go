package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookNotifier_PostsJSON(t *testing.T) {
	var got Alert
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s, want POST", r.Method)
		}
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{
		Level:   AlertWarning,
		Symbol:  "AAPL",
		Title:   "AAPL trend flipped",
		Message: "bullish -> bearish",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if contentType != "application/json" {
		t.Errorf("content-type: got %q", contentType)
	}
	if got.Symbol != "AAPL" || got.Level != AlertWarning || got.Title != "AAPL trend flipped" {
		t.Errorf("unexpected payload %+v", got)
	}
	if got.TS.IsZero() {
		t.Error("expected ts to be stamped")
	}
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestTelegramNotifier_Send(t *testing.T) {
	var path string
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.APIBase = srv.URL
	if err := n.Send(context.Background(), Alert{Level: AlertCritical, Title: "MSFT", Message: "down 3.5%"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path: got %q", path)
	}
	if body["chat_id"] != "42" || body["parse_mode"] != "MarkdownV2" {
		t.Errorf("unexpected body %v", body)
	}
	if !strings.Contains(body["text"], `down 3\.5%`) {
		t.Errorf("text not escaped: %q", body["text"])
	}
}

func TestEscapeMarkdown(t *testing.T) {
	cases := map[string]string{
		"plain":        "plain",
		"a.b":          `a\.b`,
		"(1+2)=3!":     `\(1\+2\)\=3\!`,
		"snake_case-x": `snake\_case\-x`,
		`a\b`:          `a\\b`,
		`C:\tmp\_x`:    `C:\\tmp\\\_x`,
	}
	for in, want := range cases {
		if got := escapeMarkdown(in); got != want {
			t.Errorf("escapeMarkdown(%q): got %q, want %q", in, got, want)
		}
	}
}

type recordingNotifier struct {
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Send(ctx context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	errBoom := errors.New("boom")
	a := &recordingNotifier{}
	b := &recordingNotifier{err: errBoom}
	c := &recordingNotifier{}

	err := Multi{a, b, c}.Send(context.Background(), Alert{Title: "t"})
	if !errors.Is(err, errBoom) {
		t.Errorf("expected joined errBoom, got %v", err)
	}
	for i, r := range []*recordingNotifier{a, b, c} {
		if len(r.alerts) != 1 {
			t.Errorf("notifier %d: got %d alerts, want 1", i, len(r.alerts))
		}
	}
	if err := (Multi{}).Send(context.Background(), Alert{}); err != nil {
		t.Errorf("empty Multi: %v", err)
	}
}

func TestLogNotifier_NeverFails(t *testing.T) {
	for _, lvl := range []AlertLevel{AlertInfo, AlertWarning, AlertCritical} {
		if err := NewLogNotifier().Send(context.Background(), Alert{Level: lvl, Title: "t"}); err != nil {
			t.Errorf("level %s: %v", lvl, err)
		}
	}
}
