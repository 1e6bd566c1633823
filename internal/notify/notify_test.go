package notify

import (
	"context"
	"net/http"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/stellarlinkco/quizpilot/internal/config"
	"github.com/stellarlinkco/quizpilot/internal/session"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		res  session.Result
		want []string
	}{
		{
			"solved",
			session.Result{URL: "https://q/1", Status: session.StatusSolved, Answer: "852", NextURL: "https://q/2", Turns: 5},
			[]string{"solved https://q/1", "answer: 852", "next: https://q/2", "5 turns"},
		},
		{
			"failed",
			session.Result{URL: "https://q/1", Status: session.StatusFailed, Reason: "budget exhausted", Turns: 12},
			[]string{"failed https://q/1", "budget exhausted"},
		},
		{
			"abandoned",
			session.Result{URL: "https://q/1", Status: session.StatusAbandoned, Reason: "gave up", Turns: 2},
			[]string{"abandoned https://q/1", "gave up"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Format(&tt.res)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("Format() = %q, missing %q", got, want)
				}
			}
		})
	}
}

type fakeBot struct {
	sent []tgbotapi.Chattable
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.sent = append(b.sent, c)
	return tgbotapi.Message{}, nil
}

func TestTelegramNotify(t *testing.T) {
	bot := &fakeBot{}
	tg, err := NewTelegramWithFactory(config.TelegramConfig{
		Enabled: true,
		Token:   "123:abc",
		ChatID:  "42",
	}, func(token string, client *http.Client) (TelegramBot, error) {
		return bot, nil
	})
	if err != nil {
		t.Fatalf("NewTelegramWithFactory: %v", err)
	}

	res := &session.Result{URL: "https://q/1", Status: session.StatusSolved, Answer: "7", Turns: 3}
	if err := tg.Notify(context.Background(), res); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("bot sent %d messages", len(bot.sent))
	}
	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T, want MessageConfig", bot.sent[0])
	}
	if msg.ChatID != 42 {
		t.Errorf("chat id = %d", msg.ChatID)
	}
	if !strings.Contains(msg.Text, "answer: 7") {
		t.Errorf("text = %q", msg.Text)
	}
}

func TestTelegramConfigValidation(t *testing.T) {
	if _, err := NewTelegram(config.TelegramConfig{ChatID: "42"}); err == nil {
		t.Error("missing token accepted")
	}
	if _, err := NewTelegramWithFactory(config.TelegramConfig{Token: "t", ChatID: "not-a-number"},
		func(string, *http.Client) (TelegramBot, error) { return &fakeBot{}, nil }); err == nil {
		t.Error("non-numeric chat id accepted")
	}
}
