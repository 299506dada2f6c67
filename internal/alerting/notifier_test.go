package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wallet-activity/internal/activity"
)

func sampleNote() Notification {
	amount := decimal.RequireFromString("3")
	tickets := int64(3)
	deposit := decimal.RequireFromString("250.5")
	return Notification{
		Address: "0xuser",
		Records: []activity.ClassifiedTransaction{
			{Hash: "0xaaa", Timestamp: 1_700_000_100, Kind: activity.KindTicketPurchase, Amount: &amount, TicketCount: &tickets},
			{Hash: "0xbbb", Timestamp: 1_700_000_000, Kind: activity.KindDeposit, Amount: &deposit},
			{Hash: "0xccc", Kind: activity.KindWinningsClaim},
		},
		Symbol:     "USDC",
		TxURL:      "https://basescan.org/tx",
		DetectedAt: time.Unix(1_700_000_200, 0),
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottoken/sendMessage") {
			t.Errorf("路径应以 sendMessage 结尾, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNote()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	text, _ := received["text"].(string)
	for _, want := range []string{
		"Address: 0xuser",
		"New transactions: 3",
		"Bought 3 tickets 3.00 USDC",
		"Deposited 250.50 USDC",
		"Claimed winnings --",
		"https://basescan.org/tx/0xbbb",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("消息缺少 %q:\n%s", want, text)
		}
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNote()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramNotifierSkipsEmpty(t *testing.T) {
	notifier := NewTelegramNotifier("token", "chat", "http://127.0.0.1:1", time.Second, testLogger())
	if err := notifier.Notify(context.Background(), Notification{Address: "0xuser"}); err != nil {
		t.Fatalf("空通知不应发送: %v", err)
	}
}

func TestRenderMessageTruncates(t *testing.T) {
	note := Notification{Address: "0xuser"}
	for i := 0; i < maxListed+3; i++ {
		note.Records = append(note.Records, activity.ClassifiedTransaction{Hash: "0x1", Kind: activity.KindWinningsClaim})
	}
	if msg := renderMessage(note); !strings.Contains(msg, "... and 3 more") {
		t.Fatalf("应截断列表:\n%s", msg)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
