package server

import (
	"net"
	"strconv"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/connection"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/logger"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/service"
)

var sem = make(chan struct{}, 10000)

// StartServer 监听TCP端口，每个连接由独立协程处理
func StartServer(host string, port int, svc *service.ChatService) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.FatalF("Fail to listen on %s, details: %v", addr, err)
		return
	}
	logger.InfoF("Chat server started on %s", addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if connection.IsNetClosedError(err) {
				logger.InfoF("Listener closed, stop accepting")
				return
			}
			logger.WarnF("Fail to accept connection, details: %v", err)
			continue
		}

		sem <- struct{}{}
		go func(c net.Conn) {
			defer func() { <-sem }()
			handler := NewConnectionHandler(c, svc)
			handler.HandleConnection()
		}(conn)
	}
}
