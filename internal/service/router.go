package service

import (
	"errors"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/database"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/logger"
)

// Deliver 对单个目标用户做三选一的投递决策，按优先级只走其中一条：
//  1. 目标在本进程注册表里，直接写对方连接
//  2. 落库状态是在线，说明登录在别的进程上，向桥接通道发布
//  3. 都不满足，转存离线消息
//
// 注册表命中和落库状态之间没有原子性，用户恰好在两次读取之间下线时
// 会走到桥接路径，由对端进程的注册表未命中兜底转存离线消息
func (s *ChatService) Deliver(targetID int, payload []byte) {
	// 把连接句柄拷出注册表后再发送，锁内不做IO
	if conn, ok := s.registry.Lookup(targetID); ok {
		// 发送失败属于连接层的问题，投递决策已经完成
		_ = conn.Send(payload)
		return
	}

	user, err := s.users.QueryUserByID(targetID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		logger.ErrorF("Fail to query state of user %d, details: %v", targetID, err)
	}
	if err == nil && user.State == database.StateOnline {
		// 在别的进程上在线，发布后即视为投递完成，命令失败只记日志
		s.bridge.Publish(targetID, payload)
		return
	}

	if err := s.offline.EnqueueOfflineMessage(targetID, string(payload)); err != nil {
		logger.ErrorF("Fail to store offline message for user %d, details: %v", targetID, err)
	}
}
