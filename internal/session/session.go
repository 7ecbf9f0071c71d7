// Package session holds per-user transient dialog state. Nothing here is
// durable: a process restart drops every session by design of the product,
// the access log is the only persistent record.
package session

import "sync"

// Session 单个用户的易失状态。同一时刻至多一个活跃流程。
type Session struct {
	UserID     int64
	ActiveFlow string
	StepIndex  int
	Fields     map[string]string
	// Generation 每次流程启动/结束/中止递增；慢回调用它判断
	// 自己是否已经过期，过期结果直接丢弃。
	Generation uint64
}

// Store 线程安全的会话表，惰性创建。
type Store struct {
	mu        sync.Mutex
	sessions  map[int64]*Session
	preserved map[string]struct{}
}

// NewStore preserved 列出跨流程存活的字段名（所选市场、所选策略等）。
func NewStore(preservedKeys []string) *Store {
	p := make(map[string]struct{}, len(preservedKeys))
	for _, k := range preservedKeys {
		p[k] = struct{}{}
	}
	return &Store{
		sessions:  make(map[int64]*Session),
		preserved: p,
	}
}

// Mutate 在锁内对会话执行 fn；会话不存在则先创建。
func (s *Store) Mutate(userID int64, fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.locked(userID))
}

// View 在锁内读取会话快照字段。
func (s *Store) View(userID int64, fn func(*Session)) {
	s.Mutate(userID, fn)
}

func (s *Store) locked(userID int64) *Session {
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{UserID: userID, Fields: make(map[string]string)}
		s.sessions[userID] = sess
	}
	return sess
}

// ResetFields 清空字段，保留白名单键。调用方需已持有 Mutate 回调上下文。
func (s *Store) ResetFields(sess *Session) {
	kept := make(map[string]string, len(s.preserved))
	for k := range s.preserved {
		if v, ok := sess.Fields[k]; ok {
			kept[k] = v
		}
	}
	sess.Fields = kept
}
