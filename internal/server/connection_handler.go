package server

import (
	"bufio"
	"bytes"
	"net"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/connection"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/logger"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/protocol"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/service"
)

// 单条消息的上限，超过按读取错误处理
const maxMessageSize = 1 << 20

type ConnectionHandler struct {
	conn   *connection.Connection
	connID string
	svc    *service.ChatService
}

func NewConnectionHandler(conn net.Conn, svc *service.ChatService) *ConnectionHandler {
	wrapped := connection.New(conn)
	return &ConnectionHandler{
		conn:   wrapped,
		connID: wrapped.ConnID,
		svc:    svc,
	}
}

// HandleConnection 按行读取JSON消息并分发，连接断开时走异常清理
func (c *ConnectionHandler) HandleConnection() {
	defer func() {
		// 无论是否正常注销过，连接消失都只触发这一次清理
		c.svc.HandleConnectionLost(c.conn)
		logger.DebugF("[%s] Connection closed", c.connID)
		if err := c.conn.Close(); err != nil && !connection.IsNetClosedError(err) {
			logger.WarnF("[%s] Error occured while closing connection, details: %v", c.connID, err)
		}
	}()

	scanner := bufio.NewScanner(c.conn.Conn)
	scanner.Buffer(make([]byte, 0, 4096), maxMessageSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		env, err := protocol.Decode(line)
		if err != nil {
			logger.WarnF("[%s] Fail to decode message, details: %v", c.connID, err)
			continue
		}

		logger.DebugF("[%s] Receive %s message", c.connID, env.MsgID)
		c.svc.Dispatch(c.conn, env)
	}

	if err := scanner.Err(); err != nil {
		connection.HandleReadError(c.connID, err)
	}
}
