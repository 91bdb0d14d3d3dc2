package http

import (
	"voltfarm/internal/config"
	"voltfarm/internal/http/handlers"
	"voltfarm/internal/http/middleware"
	"voltfarm/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server bundles what the router needs.
type Server struct {
	Config  *config.Config
	Handler *handlers.Handler
	Health  *handlers.HealthHandler
	Limiter *middleware.Limiter
	Hub     *ws.Hub
}

func RegisterRoutes(r *gin.Engine, s Server) {
	cfg := s.Config
	h := s.Handler

	r.Use(middleware.Metrics())

	// Health checks (no rate limiting)
	r.GET("/health", s.Health.Health)
	r.GET("/healthz", s.Health.Liveness)
	r.GET("/readyz", s.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Payment provider callback, authenticated by shared secret
	r.POST("/payments/callback", h.PaymentCallback)

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(s.Limiter.PerIP(cfg.APIRateLimit, cfg.APIRateWindow))
	registerAPIRoutes(v1, s)

	// Legacy /api routes
	api := r.Group("/api")
	api.Use(s.Limiter.PerIP(cfg.APIRateLimit, cfg.APIRateWindow))
	api.GET("/health", s.Health.Health)
	registerAPIRoutes(api, s)

	if s.Hub != nil {
		r.GET("/ws", ws.HandleWS(s.Hub, h.Tokens, cfg.AllowedOrigin))
	}
}

func registerAPIRoutes(api *gin.RouterGroup, s Server) {
	cfg := s.Config
	h := s.Handler
	auth := middleware.JWT(h.Tokens)
	// per user, not per IP
	actionRL := s.Limiter.PerUser(cfg.ActionRateLimit, cfg.ActionRateWindow)

	api.POST("/auth", s.Limiter.PerIP(cfg.AuthRateLimit, cfg.AuthRateWindow), h.Auth)

	// Rig
	api.GET("/miner", auth, h.GetMiner)
	api.POST("/miner/save", auth, actionRL, h.SaveMiner)
	api.POST("/miner/collect", auth, actionRL, h.Collect)
	api.POST("/miner/cooldown", auth, actionRL, h.CoolDown)
	api.POST("/miner/checkin", auth, actionRL, h.CheckIn)
	api.GET("/history", auth, h.History)

	// Tasks
	api.GET("/tasks", middleware.OptionalJWT(h.Tokens), h.ListTasks)
	api.POST("/tasks/:id/complete", auth, actionRL, h.CompleteTask)

	// Shop (Telegram Stars)
	api.GET("/shop/offers", h.Offers)
	api.POST("/shop/invoice", auth, actionRL, h.CreateInvoice)

	// Wallet
	api.POST("/wallet/withdraw", auth, actionRL, h.Withdraw)
	api.GET("/wallet/withdrawals", auth, h.Withdrawals)

	api.GET("/leaderboard", h.GetLeaderboard)
	api.GET("/referral/link", auth, h.GetReferralLink)

	admin := api.Group("/admin")
	admin.Use(auth, middleware.Admin(cfg.IsAdmin))
	{
		admin.GET("/stats", h.AdminStats)
		admin.GET("/tasks", h.AdminListTasks)
		admin.POST("/tasks", h.AdminCreateTask)
		admin.PUT("/tasks/:id", h.AdminUpdateTask)
		admin.DELETE("/tasks/:id", h.AdminDeleteTask)
		admin.GET("/withdrawals", h.AdminPendingWithdrawals)
		admin.POST("/withdrawals/:id/approve", h.AdminApproveWithdrawal)
		admin.POST("/withdrawals/:id/reject", h.AdminRejectWithdrawal)
	}
}
