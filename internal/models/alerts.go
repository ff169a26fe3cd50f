package models

import "time"

// Alert types a user can subscribe to.
const (
	AlertTypeMaterialChange = "MATERIAL_CHANGE"
	AlertTypePriceChange    = "PRICE_CHANGE"
	AlertTypeNewFiling      = "NEW_FILING"
)

// Delivery methods.
const (
	MethodEmail = "EMAIL"
	MethodSMS   = "SMS"
	MethodPush  = "PUSH"
)

// Delivery frequencies.
const (
	FrequencyImmediate = "IMMEDIATE"
	FrequencyHourly    = "HOURLY"
	FrequencyDaily     = "DAILY"
	FrequencyWeekly    = "WEEKLY"
)

// Outbox alert statuses. Alerts are append-only and terminal after SENT or FAILED.
const (
	AlertStatusPending = "PENDING"
	AlertStatusSent    = "SENT"
	AlertStatusFailed  = "FAILED"
)

// Watchlist links a user to a company they watch. Unique on (UserID, CompanyID).
type Watchlist struct {
	ID                   string    `json:"id" badgerhold:"unique"`
	UserID               string    `json:"user_id" badgerhold:"index"`
	CompanyID            string    `json:"company_id" badgerhold:"index"`
	AlertTypes           []string  `json:"alert_types"`
	PriceChangeThreshold float64   `json:"price_change_threshold"` // percent
	IsActive             bool      `json:"is_active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// WatchlistKey returns the storage key for a watchlist entry.
func WatchlistKey(userID, companyID string) string {
	return userID + ":" + companyID
}

// QuietHours suppresses immediate delivery inside a local-time window.
type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"` // "HH:MM"
	End      string `json:"end"`   // "HH:MM"
	Timezone string `json:"timezone"`
}

// AlertRule configures how one alert type reaches one user.
type AlertRule struct {
	ID         string      `json:"id" badgerhold:"unique"`
	UserID     string      `json:"user_id" badgerhold:"index"`
	AlertType  string      `json:"alert_type"`
	Method     string      `json:"method"`
	Recipient  string      `json:"recipient"`
	IsEnabled  bool        `json:"is_enabled"`
	Threshold  float64     `json:"threshold,omitempty"`
	Frequency  string      `json:"frequency"`
	QuietHours *QuietHours `json:"quiet_hours,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// AlertRuleKey returns the storage key for a rule: one rule per
// (user, alertType, method).
func AlertRuleKey(userID, alertType, method string) string {
	return userID + ":" + alertType + ":" + method
}

// OutboxAlert is one materialized notification awaiting external delivery.
type OutboxAlert struct {
	ID           string    `json:"id" badgerhold:"unique"`
	UserID       string    `json:"user_id" badgerhold:"index"`
	Method       string    `json:"method"`
	Recipient    string    `json:"recipient"`
	AlertType    string    `json:"alert_type"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Priority     int       `json:"priority"`
	DedupKey     string    `json:"dedup_key" badgerhold:"index"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Attempts     int       `json:"attempts"`
	MaxAttempts  int       `json:"max_attempts"`
	Status       string    `json:"status" badgerhold:"index"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	SentAt       time.Time `json:"sent_at,omitempty"`
}

// IsTerminal reports whether the alert has reached a final status.
func (a *OutboxAlert) IsTerminal() bool {
	return a.Status == AlertStatusSent || a.Status == AlertStatusFailed
}

// DispatchResult is returned by the external delivery dispatcher.
type DispatchResult struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Error             string `json:"error,omitempty"`
}
