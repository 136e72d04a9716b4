package handler

import (
	"golang.org/x/time/rate"

	"fullchat/internal/app/account"
	"fullchat/internal/app/chat"
	"fullchat/internal/configs"
	"fullchat/internal/pkg/limiter"
)

const (
	AuthRate     = 0.2
	AuthBurst    = 5
	MessageRate  = 1
	MessageBurst = 10
	ConnectRate  = 0.5
	ConnectBurst = 10
)

// AppDeps carries everything the handlers need.
type AppDeps struct {
	Chat     *chat.Service
	Accounts *account.Service
	Config   *configs.AppConfig
	Limiters *Limiters
}

// Limiters groups the per-IP rate limiters of the HTTP surface.
type Limiters struct {
	Auth    *limiter.IPRateLimiter
	Message *limiter.IPRateLimiter
	Connect *limiter.IPRateLimiter
}

// NewLimiters starts the limiters with the default rates. Call Stop on shutdown.
func NewLimiters() *Limiters {
	return &Limiters{
		Auth:    limiter.NewIPRateLimiter("auth", rate.Limit(AuthRate), AuthBurst),
		Message: limiter.NewIPRateLimiter("message", rate.Limit(MessageRate), MessageBurst),
		Connect: limiter.NewIPRateLimiter("connect", rate.Limit(ConnectRate), ConnectBurst),
	}
}

// Stop ends the cleanup loops of every limiter.
func (l *Limiters) Stop() {
	l.Auth.Stop()
	l.Message.Stop()
	l.Connect.Stop()
}
