package session

import (
	"context"
	"fmt"
)

// sessionImpl 實作 ISession 介面
// 只有在資料被修改過時 Save 才會寫回儲存層
type sessionImpl struct {
	id    string
	ctx   context.Context
	data  map[string]string
	dirty bool
	store IStore
}

// NewSession 建立新的 session 實例
func NewSession(ctx context.Context, id string, store IStore) ISession {
	if ctx == nil {
		ctx = context.Background()
	}
	return &sessionImpl{
		id:    id,
		ctx:   ctx,
		store: store,
	}
}

func (s *sessionImpl) ID() string {
	return s.id
}

// Load 從儲存層載入 session 資料，已載入時不重複讀取
func (s *sessionImpl) Load() error {
	const op = "sessionImpl.Load"
	if s.data != nil {
		return nil
	}

	data, err := s.store.Load(s.ctx, s.id)
	if err != nil {
		return fmt.Errorf("[%s] Fail to load session, err=%w", op, err)
	}

	s.data = data
	if s.data == nil {
		s.data = make(map[string]string)
	}
	return nil
}

func (s *sessionImpl) Get(key string) string {
	if s.data == nil {
		return ""
	}
	return s.data[key]
}

// Pop 取出並刪除指定 key，用於只能使用一次的值
func (s *sessionImpl) Pop(key string) string {
	value := s.Get(key)
	s.Delete(key)
	return value
}

func (s *sessionImpl) Set(key string, value string) {
	if s.data == nil {
		s.data = make(map[string]string)
	}
	s.data[key] = value
	s.dirty = true
}

func (s *sessionImpl) Delete(key string) {
	if s.data == nil {
		return
	}
	if _, ok := s.data[key]; ok {
		delete(s.data, key)
		s.dirty = true
	}
}

func (s *sessionImpl) Clear() {
	if len(s.data) > 0 {
		s.dirty = true
	}
	s.data = make(map[string]string)
}

// Save 保存 session 資料到儲存層
func (s *sessionImpl) Save() error {
	const op = "sessionImpl.Save"
	if !s.dirty {
		return nil
	}
	if err := s.store.Save(s.ctx, s.id, s.data); err != nil {
		return fmt.Errorf("[%s] Fail to save session, err=%w", op, err)
	}
	s.dirty = false
	return nil
}
