package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"voltfarm/internal/domain"
	"voltfarm/internal/logger"
	"voltfarm/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Service is what the bot needs from the mining service.
type Service interface {
	Register(ctx context.Context, userID int64, ref string) (*service.MinerView, error)
	ValidateCheckout(ctx context.Context, invoiceID string, userID, amount int64) error
	ConfirmPayment(ctx context.Context, ev domain.PaymentEvent) (bool, *service.MinerView, error)
	Stats(ctx context.Context) (*service.Stats, error)
	Leaderboard(ctx context.Context, limit int) ([]service.LeaderboardEntry, error)
	PendingWithdrawals(ctx context.Context, limit int) ([]*domain.Withdrawal, error)
	ApproveWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error)
	RejectWithdrawal(ctx context.Context, id int64, reason string) (*domain.Withdrawal, error)
	ReferralLink(userID int64) string
}

// Bot handles /start, Stars payments and admin commands via Telegram
type Bot struct {
	client   *Client
	svc      Service
	adminIDs []int64
	app      App
	stopCh   chan struct{}
	wg       sync.WaitGroup
	log      *slog.Logger
}

// App locates the mini app opened from /start. URL wins when set, otherwise
// the t.me direct link is built from Username and ShortName.
type App struct {
	URL       string
	Username  string
	ShortName string
}

func (a App) Link() string {
	if a.URL != "" {
		return a.URL
	}
	if a.Username == "" || a.ShortName == "" {
		return ""
	}
	return "https://t.me/" + a.Username + "/" + a.ShortName
}

// New creates the update handler.
func New(client *Client, svc Service, adminIDs []int64, app App) *Bot {
	log := logger.With("component", "bot")
	if client != nil {
		log.Info("bot authorized", "username", client.Username())
		if app.Username == "" {
			app.Username = client.Username()
		}
	}
	return &Bot{
		client:   client,
		svc:      svc,
		adminIDs: adminIDs,
		app:      app,
		stopCh:   make(chan struct{}),
		log:      log,
	}
}

// Start starts listening for updates
func (b *Bot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "pre_checkout_query"}

	updates := b.client.api.GetUpdatesChan(u)
	b.log.Info("starting bot update loop")

	for {
		select {
		case <-b.stopCh:
			b.log.Info("stopping bot update loop")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.wg.Add(1)
			go func(upd tgbotapi.Update) {
				defer b.wg.Done()
				b.handleUpdate(upd)
			}(update)
		}
	}
}

// Stop gracefully stops the bot
func (b *Bot) Stop() {
	b.log.Info("stopping bot...")
	close(b.stopCh)
	b.client.api.StopReceivingUpdates()

	// Wait for pending handlers with timeout
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Info("bot stopped gracefully")
	case <-time.After(10 * time.Second):
		b.log.Warn("bot shutdown timeout, some handlers may not have completed")
	}
}

func (b *Bot) handleUpdate(upd tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch {
	case upd.PreCheckoutQuery != nil:
		b.answerPreCheckout(ctx, upd.PreCheckoutQuery)
	case upd.Message != nil && upd.Message.SuccessfulPayment != nil:
		b.handlePayment(ctx, upd.Message)
	case upd.Message != nil && upd.Message.IsCommand() && upd.Message.From != nil:
		b.handleCommand(ctx, upd.Message)
	}
}

// answerPreCheckout must reply within 10 seconds or Telegram cancels the payment.
func (b *Bot) answerPreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) {
	cfg := checkoutAnswer(ctx, b.svc, q)
	if !cfg.OK {
		b.log.Warn("pre-checkout rejected", "invoice_id", q.InvoicePayload, "reason", cfg.ErrorMessage)
	}
	if _, err := b.client.api.Request(cfg); err != nil {
		b.log.Error("answer pre-checkout failed", "error", err)
	}
}

func checkoutAnswer(ctx context.Context, svc Service, q *tgbotapi.PreCheckoutQuery) tgbotapi.PreCheckoutConfig {
	cfg := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: true}
	if q.Currency != StarsCurrency || q.From == nil {
		cfg.OK = false
		cfg.ErrorMessage = "unsupported currency"
		return cfg
	}
	if err := svc.ValidateCheckout(ctx, q.InvoicePayload, q.From.ID, int64(q.TotalAmount)); err != nil {
		cfg.OK = false
		cfg.ErrorMessage = domain.ReasonOf(err)
	}
	return cfg
}

func paymentEvent(msg *tgbotapi.Message) domain.PaymentEvent {
	p := msg.SuccessfulPayment
	return domain.PaymentEvent{
		PaymentID: p.TelegramPaymentChargeID,
		UserID:    msg.From.ID,
		InvoiceID: p.InvoicePayload,
		Amount:    int64(p.TotalAmount),
	}
}

func (b *Bot) handlePayment(ctx context.Context, msg *tgbotapi.Message) {
	ev := paymentEvent(msg)
	applied, _, err := b.svc.ConfirmPayment(ctx, ev)
	if err != nil {
		// деньги списаны, апгрейд не применён: нужен ручной разбор
		b.log.Error("payment not applied", "payment_id", ev.PaymentID, "invoice_id", ev.InvoiceID, "error", err)
		b.notifyAdmins(fmt.Sprintf("⚠️ Платёж %s (invoice %s) не применён: %v", ev.PaymentID, ev.InvoiceID, err))
		return
	}
	if !applied {
		b.log.Info("payment already applied", "payment_id", ev.PaymentID)
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	for _, id := range b.adminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	response, markup := b.respond(ctx, msg.From.ID, msg.Command(), msg.CommandArguments())
	if response == "" {
		return
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, response)
	reply.ParseMode = "HTML"
	reply.ReplyToMessageID = msg.MessageID
	if markup != nil {
		reply.ReplyMarkup = *markup
	}

	if _, err := b.client.api.Send(reply); err != nil {
		b.log.Error("error sending message", "error", err)
	}
}

// respond builds the reply for a command. Admin commands from others are ignored.
func (b *Bot) respond(ctx context.Context, from int64, command, args string) (string, *tgbotapi.InlineKeyboardMarkup) {
	switch command {
	case "start":
		return b.handleStart(ctx, from, strings.TrimSpace(args))
	case "help":
		if b.isAdmin(from) {
			return adminHelp, nil
		}
		return userHelp, nil
	}

	if !b.isAdmin(from) {
		return "", nil
	}

	switch command {
	case "stats":
		return b.handleStats(ctx), nil
	case "top":
		return b.handleTop(ctx, args), nil
	case "withdrawals":
		return b.handleWithdrawals(ctx), nil
	case "approve":
		return b.handleApproveWithdrawal(ctx, args), nil
	case "reject":
		return b.handleRejectWithdrawal(ctx, args), nil
	default:
		return "❌ Неизвестная команда. Используйте /help для списка команд.", nil
	}
}

const userHelp = `<b>⚡ VoltFarm</b>

/start - Открыть ферму
/help - Помощь`

const adminHelp = `<b>🤖 Команды администратора</b>

<b>📊 Статистика:</b>
/stats - Статистика фермы
/top [лимит] - Топ майнеров по балансу

<b>💸 Выводы:</b>
/withdrawals - Ожидающие выводы
/approve &lt;id&gt; - Одобрить вывод
/reject &lt;id&gt; &lt;причина&gt; - Отклонить вывод`

// handleStart registers the user. The payload of t.me/bot?start=ref_<id> links is the referral.
func (b *Bot) handleStart(ctx context.Context, from int64, payload string) (string, *tgbotapi.InlineKeyboardMarkup) {
	view, err := b.svc.Register(ctx, from, payload)
	if err != nil {
		b.log.Error("register from /start failed", "user_id", from, "error", err)
		return "❌ Не удалось открыть ферму, попробуйте позже.", nil
	}

	text := fmt.Sprintf("⚡ <b>VoltFarm</b>\n\n🖥 GPU: %d\n💰 Баланс: %.2f\n\nПриглашайте друзей: %s",
		view.State.GPUCount, view.State.Balance, b.svc.ReferralLink(from))
	if view.Created {
		text = "👋 Добро пожаловать!\n\n" + text
	}

	link := b.app.Link()
	if link == "" {
		return text, nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("⛏ Открыть ферму", link)),
	)
	return text, &markup
}

func (b *Bot) handleStats(ctx context.Context) string {
	stats, err := b.svc.Stats(ctx)
	if err != nil {
		return fmt.Sprintf("❌ Ошибка: %v", err)
	}

	return fmt.Sprintf(`<b>📊 Статистика фермы</b>

• 👥 Майнеров: %d
• 📋 Активных заданий: %d
• 💸 Ожидает вывода: %d`,
		stats.TotalMiners,
		stats.ActiveTasks,
		stats.PendingWithdraws,
	)
}

func (b *Bot) handleTop(ctx context.Context, args string) string {
	limit := 10
	if args != "" {
		if n, err := strconv.Atoi(args); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	top, err := b.svc.Leaderboard(ctx, limit)
	if err != nil {
		return fmt.Sprintf("❌ Ошибка: %v", err)
	}
	if len(top) == 0 {
		return "Пока никого нет"
	}

	var sb strings.Builder
	sb.WriteString("<b>🏆 Топ майнеров</b>\n\n")
	for _, e := range top {
		sb.WriteString(fmt.Sprintf("%d. <code>%d</code> - %.2f (GPU %d)\n", e.Rank, e.UserID, e.Balance, e.GPUCount))
	}
	return sb.String()
}

func (b *Bot) handleWithdrawals(ctx context.Context) string {
	withdrawals, err := b.svc.PendingWithdrawals(ctx, 20)
	if err != nil {
		return fmt.Sprintf("❌ Ошибка: %v", err)
	}

	if len(withdrawals) == 0 {
		return "✅ Нет ожидающих выводов"
	}

	var sb strings.Builder
	sb.WriteString("<b>💸 Ожидающие выводы</b>\n\n")

	for _, w := range withdrawals {
		sb.WriteString(fmt.Sprintf("🆔 #%d | TG: <code>%d</code>\n", w.ID, w.UserID))
		sb.WriteString(fmt.Sprintf("💰 Сумма: %.2f\n", w.Amount))
		sb.WriteString(fmt.Sprintf("📅 %s\n\n", w.CreatedAt.Format("02.01.2006 15:04")))
	}

	sb.WriteString("\n/approve <id> - одобрить\n/reject <id> <причина> - отклонить")

	return sb.String()
}

func (b *Bot) handleApproveWithdrawal(ctx context.Context, args string) string {
	parts := strings.Fields(args)
	if len(parts) < 1 {
		return "❌ Использование: /approve <id>"
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return "❌ Неверный ID вывода"
	}

	if _, err := b.svc.ApproveWithdrawal(ctx, id); err != nil {
		return fmt.Sprintf("❌ Ошибка: %s", domain.ReasonOf(err))
	}
	return fmt.Sprintf("✅ Вывод #%d одобрен", id)
}

func (b *Bot) handleRejectWithdrawal(ctx context.Context, args string) string {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(parts) < 2 {
		return "❌ Использование: /reject <id> <причина>"
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return "❌ Неверный ID вывода"
	}

	if _, err := b.svc.RejectWithdrawal(ctx, id, parts[1]); err != nil {
		return fmt.Sprintf("❌ Ошибка: %s", domain.ReasonOf(err))
	}
	return fmt.Sprintf("❌ Вывод #%d отклонён. Средства возвращены.", id)
}

func (b *Bot) notifyAdmins(message string) {
	for _, adminID := range b.adminIDs {
		if err := b.client.SendNotification(adminID, message); err != nil {
			b.log.Error("failed to notify admin", "admin_id", adminID, "error", err)
		}
	}
}
