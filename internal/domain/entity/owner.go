package entity

import (
	"time"

	"gorm.io/datatypes"
)

// SubscriptionStatus 订阅状态，由支付方 webhook 驱动
type SubscriptionStatus string

const (
	SubscriptionNone     SubscriptionStatus = "none"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// GrantsPremium 只有 active 享有付费权益
func (s SubscriptionStatus) GrantsPremium() bool {
	return s == SubscriptionActive
}

// Owner 故事所有者的配额视图
type Owner struct {
	ID                 string             `json:"id" gorm:"type:varchar(64);primaryKey"`
	Premium            bool               `json:"premium" gorm:"not null;default:false"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status" gorm:"type:varchar(32);not null;default:'none'"`
	// SubscriptionChangedAt 最后一次生效的订阅事件时间，乱序事件据此丢弃
	SubscriptionChangedAt *time.Time `json:"subscription_changed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt             time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Owner) TableName() string {
	return "owners"
}

// ProcessedEvent 已处理的外部事件，(provider, event_id) 唯一
type ProcessedEvent struct {
	Provider    string         `json:"provider" gorm:"type:varchar(64);primaryKey"`
	EventID     string         `json:"event_id" gorm:"type:varchar(255);primaryKey"`
	EventType   string         `json:"event_type" gorm:"type:varchar(128)"`
	Payload     datatypes.JSON `json:"payload,omitempty"`
	ProcessedAt time.Time      `json:"processed_at"`
}

// TableName 指定表名
func (ProcessedEvent) TableName() string {
	return "processed_events"
}
