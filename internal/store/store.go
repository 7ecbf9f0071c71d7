package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"advisor/internal/access"
	storemodel "advisor/internal/store/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	_ "modernc.org/sqlite"
)

const (
	lockRetries = 3
	lockBackoff = 200 * time.Millisecond
)

// AccessLog 基于 gorm + SQLite（WAL）的追加式授权名单。
type AccessLog struct {
	db *gorm.DB
}

func Open(path string) (*AccessLog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("access log: db path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	// DriverName 指向 modernc 的纯 Go 驱动，避免 cgo。
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("access log: open %s failed: %w", path, err)
	}
	if err := db.AutoMigrate(&storemodel.AccessRecordModel{}); err != nil {
		return nil, fmt.Errorf("access log: migrate failed: %w", err)
	}
	return &AccessLog{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Append 追加一条授权记录；遇到 database is locked 做固定间隔重试。
func (l *AccessLog) Append(ctx context.Context, rec access.Record) error {
	row, err := toModel(rec)
	if err != nil {
		return err
	}
	return withLockedRetry(ctx, "append", func() error {
		return l.db.WithContext(ctx).Create(row).Error
	})
}

// All 返回全部记录，按写入顺序。读和写一样可能撞上锁，同样重试。
func (l *AccessLog) All(ctx context.Context) ([]access.Record, error) {
	var rows []storemodel.AccessRecordModel
	err := withLockedRetry(ctx, "read", func() error {
		rows = rows[:0]
		return l.db.WithContext(ctx).Order("id asc").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]access.Record, 0, len(rows))
	for i := range rows {
		out = append(out, fromModel(&rows[i]))
	}
	return out, nil
}

// withLockedRetry 只重试 SQLite 的锁冲突，其他错误立即上抛。
func withLockedRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < lockRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isLocked(lastErr) {
			return fmt.Errorf("access log: %s failed: %w", op, lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockBackoff):
		}
	}
	return fmt.Errorf("access log: %s failed after retries: %w", op, lastErr)
}

func isLocked(err error) bool {
	return err != nil && strings.Contains(err.Error(), "database is locked")
}

type recordMeta struct {
	ReferralProgram string `json:"referral_program,omitempty"`
	Broker          string `json:"broker,omitempty"`
	BrokerUID       string `json:"broker_uid,omitempty"`
}

func toModel(rec access.Record) (*storemodel.AccessRecordModel, error) {
	meta, err := json.Marshal(recordMeta{
		ReferralProgram: rec.ReferralProgram,
		Broker:          rec.Broker,
		BrokerUID:       rec.BrokerUID,
	})
	if err != nil {
		return nil, fmt.Errorf("access log: encode meta failed: %w", err)
	}
	granted := rec.GrantedAt
	if granted.IsZero() {
		granted = time.Now()
	}
	return &storemodel.AccessRecordModel{
		UserID:        rec.UserID,
		Username:      rec.Username,
		Source:        string(rec.Source),
		GrantedAtUnix: granted.Unix(),
		MetaJSON:      meta,
	}, nil
}

func fromModel(row *storemodel.AccessRecordModel) access.Record {
	var meta recordMeta
	_ = json.Unmarshal(row.MetaJSON, &meta)
	return access.Record{
		UserID:          row.UserID,
		Username:        row.Username,
		Source:          access.Source(row.Source),
		GrantedAt:       time.Unix(row.GrantedAtUnix, 0),
		ReferralProgram: meta.ReferralProgram,
		Broker:          meta.Broker,
		BrokerUID:       meta.BrokerUID,
	}
}
