package store

import "sync/atomic"

// Store 当前发布的快照。读者拿到的永远是某一次完整构建的快照，写者只做指针替换
type Store struct {
	current atomic.Pointer[Snapshot]
}

// New 初始为空快照
func New() *Store {
	s := &Store{}
	s.current.Store(Empty())
	return s
}

// Publish 原子替换当前快照；nil 被忽略
func (s *Store) Publish(snap *Snapshot) {
	if snap == nil {
		return
	}
	s.current.Store(snap)
}

// Current 当前快照，永不为 nil
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}
