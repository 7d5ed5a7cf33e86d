// Package connection 实现了聊天服务器的连接管理功能
package connection

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/logger"
)

// Connection 表示一个客户端连接，Send内部加锁保证多协程写入时消息不交叉
type Connection struct {
	Conn   net.Conn
	ConnID string
	mu     sync.Mutex
}

func New(conn net.Conn) *Connection {
	return &Connection{
		Conn:   conn,
		ConnID: conn.RemoteAddr().String(),
	}
}

// Send 发送一条按行分帧的消息到客户端
func (c *Connection) Send(data []byte) error {
	framed := make([]byte, 0, len(data)+1)
	framed = append(framed, data...)
	framed = append(framed, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for total < len(framed) {
		n, err := c.Conn.Write(framed[total:])
		if err != nil {
			logger.ErrorF("[%s] Fail to send data, details: %v", c.ConnID, err)
			return err
		}
		total += n
	}
	logger.DebugF("[%s] Send %d bytes to client", c.ConnID, total)
	return nil
}

func (c *Connection) Close() error {
	return c.Conn.Close()
}

func IsNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}

func HandleReadError(connID string, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.InfoF("[%s] Client close connection", connID)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Reading timeout", connID)
	default:
		logger.ErrorF("[%s] Error occured while reading message, details: %v", connID, err)
	}
}
