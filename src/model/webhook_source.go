package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TradeModeReal       = "real"
	TradeModeSimulation = "simulation"
)

// WebhookSource is one inbound signal source (a chart alert endpoint).
// The opaque Code is the URL path key callers use to reach it.
type WebhookSource struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"index" json:"user_id"`
	Code   string `gorm:"size:64;uniqueIndex;not null" json:"code"`
	Name   string `gorm:"size:120" json:"name"`

	TradeMode string `gorm:"size:20;not null;default:simulation" json:"trade_mode"`

	// AllowedIPs is a comma separated list. Empty or containing "*"
	// means unrestricted.
	AllowedIPs string `gorm:"size:512" json:"allowed_ips"`

	// SigningSecret, when set, requires an HMAC-SHA256 signature over
	// the raw request body.
	SigningSecret string `gorm:"size:128" json:"-"`

	RateLimitPerMinute int  `gorm:"not null;default:60" json:"rate_limit_per_minute"`
	Active             bool `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Bindings []AccountBinding `gorm:"foreignKey:SourceID" json:"bindings,omitempty"`
}

func (WebhookSource) TableName() string {
	return "webhook_sources"
}

// AllowsIP checks the source IP against the allow-list.
func (s *WebhookSource) AllowsIP(ip string) bool {
	list := strings.TrimSpace(s.AllowedIPs)
	if list == "" {
		return true
	}
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "*" || entry == ip {
			return true
		}
	}
	return false
}

// AccountBinding links a WebhookSource to an ExchangeAccount that should
// receive its signals. Weight scales the signal quantity per account.
type AccountBinding struct {
	ID        uint `gorm:"primaryKey" json:"id"`
	SourceID  uint `gorm:"not null;index:idx_binding_source_account,unique" json:"source_id"`
	AccountID uint `gorm:"not null;index:idx_binding_source_account,unique" json:"account_id"`

	Weight decimal.Decimal `gorm:"type:numeric(10,4);not null;default:1" json:"weight"`
	Active bool            `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Account *ExchangeAccount `gorm:"constraint:OnDelete:CASCADE" json:"account,omitempty"`
}

func (AccountBinding) TableName() string {
	return "account_bindings"
}
