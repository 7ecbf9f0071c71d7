package access

import (
	"context"
	"time"
)

// Source 标识授权记录的来源。
type Source string

const (
	SourcePayment  Source = "payment"
	SourceAdmin    Source = "admin"
	SourceReferral Source = "referral"
)

// Record 一条授权记录。日志只追加：同一用户可出现多行，生效的是“出现过”。
type Record struct {
	UserID          int64
	Username        string
	Source          Source
	GrantedAt       time.Time
	ReferralProgram string
	Broker          string
	BrokerUID       string
}

// RecordStore 追加式外部存储。实现方负责限流重试。
type RecordStore interface {
	Append(ctx context.Context, rec Record) error
	All(ctx context.Context) ([]Record, error)
}
