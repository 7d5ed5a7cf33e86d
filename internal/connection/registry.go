package connection

import (
	"sync"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/logger"
)

// Registry 在线用户连接表，是本进程内用户是否可达的唯一依据
// 会被连接协程和桥接接收协程并发访问，所有操作都在锁内完成
// 临界区只做纯map操作，不执行任何阻塞IO
type Registry struct {
	mu    sync.Mutex
	conns map[int]*Connection
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[int]*Connection),
	}
}

// Put 记录用户连接，重复登录的业务校验由上层完成，这里只负责覆盖写入
func (r *Registry) Put(userID int, conn *Connection) {
	r.mu.Lock()
	r.conns[userID] = conn
	r.mu.Unlock()
	logger.InfoF("User %d connected via [%s]", userID, conn.ConnID)
}

func (r *Registry) Remove(userID int) {
	r.mu.Lock()
	delete(r.conns, userID)
	r.mu.Unlock()
}

func (r *Registry) Lookup(userID int) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

// RemoveByConn 反查并移除连接对应的用户，用于客户端未注销直接断开的场景
func (r *Registry) RemoveByConn(conn *Connection) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, c := range r.conns {
		if c == conn {
			delete(r.conns, userID)
			return userID, true
		}
	}
	return 0, false
}
