package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"voltfarm/internal/domain"
	"voltfarm/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeService struct {
	registered map[int64]string
	rejected   map[int64]string
	checkout   error
	confirmed  []domain.PaymentEvent
}

func (f *fakeService) Register(_ context.Context, userID int64, ref string) (*service.MinerView, error) {
	if f.registered == nil {
		f.registered = map[int64]string{}
	}
	_, seen := f.registered[userID]
	f.registered[userID] = ref
	return &service.MinerView{State: domain.NewMiningState(userID, time.Now()), Created: !seen}, nil
}

func (f *fakeService) ValidateCheckout(context.Context, string, int64, int64) error { return f.checkout }

func (f *fakeService) ConfirmPayment(_ context.Context, ev domain.PaymentEvent) (bool, *service.MinerView, error) {
	f.confirmed = append(f.confirmed, ev)
	return true, nil, nil
}

func (f *fakeService) Stats(context.Context) (*service.Stats, error) {
	return &service.Stats{TotalMiners: 12, PendingWithdraws: 2, ActiveTasks: 4}, nil
}

func (f *fakeService) Leaderboard(context.Context, int) ([]service.LeaderboardEntry, error) {
	return []service.LeaderboardEntry{{Rank: 1, UserID: 7, Balance: 99.5, GPUCount: 3}}, nil
}

func (f *fakeService) PendingWithdrawals(context.Context, int) ([]*domain.Withdrawal, error) {
	return nil, nil
}

func (f *fakeService) ApproveWithdrawal(_ context.Context, id int64) (*domain.Withdrawal, error) {
	if id == 404 {
		return nil, domain.ErrWithdrawalNotFound
	}
	return &domain.Withdrawal{ID: id}, nil
}

func (f *fakeService) RejectWithdrawal(_ context.Context, id int64, reason string) (*domain.Withdrawal, error) {
	if f.rejected == nil {
		f.rejected = map[int64]string{}
	}
	f.rejected[id] = reason
	return &domain.Withdrawal{ID: id}, nil
}

func (f *fakeService) ReferralLink(int64) string { return "https://t.me/VoltFarmBot/farm?startapp=ref_7" }

func TestRespond(t *testing.T) {
	svc := &fakeService{}
	b := New(nil, svc, []int64{1}, App{Username: "VoltFarmBot", ShortName: "farm"})
	ctx := context.Background()

	tests := []struct {
		name    string
		from    int64
		command string
		args    string
		want    string
	}{
		{"start", 5, "start", "ref_7", "Добро пожаловать"},
		{"user help", 5, "help", "", "/start"},
		{"admin help", 1, "help", "", "/withdrawals"},
		{"stats ignored for users", 5, "stats", "", ""},
		{"stats", 1, "stats", "", "Майнеров: 12"},
		{"top", 1, "top", "5", "99.50"},
		{"no withdrawals", 1, "withdrawals", "", "Нет ожидающих"},
		{"approve", 1, "approve", "3", "#3 одобрен"},
		{"approve missing", 1, "approve", "404", "withdrawal not found"},
		{"approve usage", 1, "approve", "", "Использование"},
		{"reject usage", 1, "reject", "3", "Использование"},
		{"reject", 1, "reject", "3 duplicate account", "#3 отклонён"},
		{"unknown", 1, "nope", "", "Неизвестная команда"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := b.respond(ctx, tt.from, tt.command, tt.args)
			if tt.want == "" {
				if got != "" {
					t.Fatalf("got %q, want no reply", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Fatalf("got %q, want it to contain %q", got, tt.want)
			}
		})
	}

	if svc.registered[5] != "ref_7" {
		t.Fatalf("register ref = %q", svc.registered[5])
	}
	if svc.rejected[3] != "duplicate account" {
		t.Fatalf("reject reason = %q", svc.rejected[3])
	}
}

func TestStartButton(t *testing.T) {
	tests := []struct {
		name string
		app  App
		want string
	}{
		{"explicit url", App{URL: "https://example.com/farm", Username: "VoltFarmBot", ShortName: "farm"}, "https://example.com/farm"},
		{"built from username", App{Username: "VoltFarmBot", ShortName: "farm"}, "https://t.me/VoltFarmBot/farm"},
		{"no short name", App{Username: "VoltFarmBot"}, ""},
		{"nothing", App{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(nil, &fakeService{}, nil, tt.app)
			_, markup := b.respond(context.Background(), 5, "start", "")
			if tt.want == "" {
				if markup != nil {
					t.Fatalf("unexpected markup %+v", markup)
				}
				return
			}
			if markup == nil || len(markup.InlineKeyboard) != 1 {
				t.Fatalf("markup = %+v", markup)
			}
			if u := markup.InlineKeyboard[0][0].URL; u == nil || *u != tt.want {
				t.Fatalf("button url = %v, want %s", u, tt.want)
			}
		})
	}
}

func TestCheckoutAnswer(t *testing.T) {
	from := &tgbotapi.User{ID: 5}
	tests := []struct {
		name string
		q    tgbotapi.PreCheckoutQuery
		err  error
		ok   bool
	}{
		{"valid", tgbotapi.PreCheckoutQuery{ID: "q", From: from, Currency: StarsCurrency, TotalAmount: 50, InvoicePayload: "inv"}, nil, true},
		{"wrong currency", tgbotapi.PreCheckoutQuery{ID: "q", From: from, Currency: "USD", TotalAmount: 50}, nil, false},
		{"mismatch", tgbotapi.PreCheckoutQuery{ID: "q", From: from, Currency: StarsCurrency, TotalAmount: 1}, domain.ErrInvoiceMismatch, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := checkoutAnswer(context.Background(), &fakeService{checkout: tt.err}, &tt.q)
			if cfg.OK != tt.ok || cfg.PreCheckoutQueryID != "q" {
				t.Fatalf("answer = %+v", cfg)
			}
			if !cfg.OK && cfg.ErrorMessage == "" {
				t.Fatalf("rejection without message")
			}
		})
	}
}

func TestPaymentEvent(t *testing.T) {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: 5},
		SuccessfulPayment: &tgbotapi.SuccessfulPayment{
			Currency:                StarsCurrency,
			TotalAmount:             50,
			InvoicePayload:          "inv-1",
			TelegramPaymentChargeID: "charge-1",
		},
	}
	ev := paymentEvent(msg)
	want := domain.PaymentEvent{PaymentID: "charge-1", UserID: 5, InvoiceID: "inv-1", Amount: 50}
	if ev != want {
		t.Fatalf("event = %+v, want %+v", ev, want)
	}
}

func TestInvoiceParams(t *testing.T) {
	params, err := invoiceParams(&domain.Invoice{ID: "inv-1", PriceStars: 50}, "GPU x1")
	if err != nil {
		t.Fatal(err)
	}
	if params["payload"] != "inv-1" || params["currency"] != "XTR" {
		t.Fatalf("params = %v", params)
	}
	if _, ok := params["provider_token"]; ok {
		t.Fatalf("stars invoice must not carry a provider token")
	}
	if params["prices"] != `[{"label":"GPU x1","amount":50}]` {
		t.Fatalf("prices = %s", params["prices"])
	}
}
