package integration

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"voltfarm/internal/config"
	"voltfarm/internal/domain"
	httpserver "voltfarm/internal/http"
	"voltfarm/internal/http/handlers"
	"voltfarm/internal/http/middleware"
	"voltfarm/internal/ledger"
	"voltfarm/internal/repository"
	"voltfarm/internal/service"
	"voltfarm/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func TestE2E_ReferralNotification(t *testing.T) {
	pool := connect(t)
	gin.SetMode(gin.TestMode)

	hub := ws.NewHub()
	svc := service.NewMiningService(service.Deps{
		States:       repository.NewMinerRepository(pool),
		Tasks:        repository.NewTaskRepository(pool),
		Invoices:     repository.NewInvoiceRepository(pool),
		Withdrawals:  repository.NewWithdrawalRepository(pool),
		Transactions: repository.NewTransactionRepository(pool),
		Notifier:     hub,
	}, service.DefaultOptions())
	tokens := service.NewTokenIssuer("test-secret", time.Hour)

	cfg := &config.Config{APIRateLimit: 1000, APIRateWindow: time.Minute, AuthRateLimit: 100, AuthRateWindow: time.Minute, ActionRateLimit: 100, ActionRateWindow: time.Minute}
	r := gin.New()
	httpserver.RegisterRoutes(r, httpserver.Server{
		Config:  cfg,
		Handler: handlers.NewHandler(svc, tokens, "unused"),
		Health:  handlers.NewHealthHandler("test", handlers.Check{Name: "database", Ping: pool.Ping}),
		Limiter: middleware.NewLimiter(nil),
		Hub:     hub,
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx := context.Background()
	inviter, invitee := uniqueID(), uniqueID()
	if _, err := svc.Register(ctx, inviter, ""); err != nil {
		t.Fatalf("register inviter: %v", err)
	}

	token, err := tokens.Generate(inviter)
	if err != nil {
		t.Fatal(err)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if env := read(t, conn); env.Type != ws.MsgReady {
		t.Fatalf("first frame = %s", env.Type)
	}

	if _, err := svc.Register(ctx, invitee, ledger.ReferralPrefix+strconv.FormatInt(inviter, 10)); err != nil {
		t.Fatalf("register invitee: %v", err)
	}

	env := read(t, conn)
	if env.Type != ws.MsgNotification {
		t.Fatalf("frame = %s %s", env.Type, env.Payload)
	}
	var n service.Notification
	if err := json.Unmarshal(env.Payload, &n); err != nil {
		t.Fatal(err)
	}
	if n.Kind != service.NotifyReferral {
		t.Fatalf("notification = %+v", n)
	}

	svc.Wait()
	v, err := svc.GetState(ctx, inviter)
	if err != nil {
		t.Fatal(err)
	}
	if v.State.ReferralCount != 1 || v.State.Balance != svc.Options().ReferralBonus {
		t.Fatalf("inviter state = %+v", v.State)
	}

	txs, err := svc.History(ctx, inviter, 10)
	if err != nil || len(txs) == 0 || txs[0].Type != domain.TxReferralBonus {
		t.Fatalf("history = %+v, err = %v", txs, err)
	}
}

func read(t *testing.T, conn *websocket.Conn) ws.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env ws.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("decode %s: %v", msg, err)
	}
	return env
}
