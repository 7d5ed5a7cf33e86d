// Package service 实现聊天服务器的全部业务逻辑：
// 登录注册、会话管理、一对一和群组消息的三路投递
package service

import (
	"context"
	"encoding/json"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/connection"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/database"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/logger"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/protocol"
)

type HandlerFunc func(conn *connection.Connection, env *protocol.Envelope)

// PresenceBridge 跨进程转发通道的命令面
type PresenceBridge interface {
	Subscribe(userID int) bool
	Unsubscribe(userID int) bool
	Publish(userID int, payload []byte) bool
}

// ChatService 持有业务依赖，由进程入口构造后传给各层使用
type ChatService struct {
	handlers map[protocol.MsgType]HandlerFunc

	registry *connection.Registry
	bridge   PresenceBridge
	users    database.UserStore
	friends  database.FriendStore
	groups   database.GroupStore
	offline  database.OfflineMessageStore
}

func NewChatService(
	registry *connection.Registry,
	bridge PresenceBridge,
	users database.UserStore,
	friends database.FriendStore,
	groups database.GroupStore,
	offline database.OfflineMessageStore,
) *ChatService {
	s := &ChatService{
		registry: registry,
		bridge:   bridge,
		users:    users,
		friends:  friends,
		groups:   groups,
		offline:  offline,
	}
	// 启动时注册各类消息和对应的处理方法
	s.handlers = map[protocol.MsgType]HandlerFunc{
		protocol.LoginMsg:       s.loginHandler,
		protocol.LogoutMsg:      s.logoutHandler,
		protocol.RegisterMsg:    s.registerHandler,
		protocol.OneChatMsg:     s.oneChatHandler,
		protocol.AddFriendMsg:   s.addFriendHandler,
		protocol.CreateGroupMsg: s.createGroupHandler,
		protocol.JoinGroupMsg:   s.joinGroupHandler,
		protocol.GroupChatMsg:   s.groupChatHandler,
	}
	return s
}

// Dispatch 按消息类型分发到对应的处理方法
// 未知类型只记日志并丢弃，不影响连接上后续消息的处理
func (s *ChatService) Dispatch(conn *connection.Connection, env *protocol.Envelope) {
	handler, ok := s.handlers[env.MsgID]
	if !ok {
		logger.ErrorF("[%s] msgid %d can not find handler", conn.ConnID, int(env.MsgID))
		return
	}
	handler(conn, env)
}

// HandleConnectionLost 客户端未注销直接断开时的清理
// 对未登录过的连接是无害的空操作
func (s *ChatService) HandleConnectionLost(conn *connection.Connection) {
	userID, ok := s.registry.RemoveByConn(conn)
	if !ok {
		return
	}

	s.bridge.Unsubscribe(userID)
	if err := s.users.UpdateUserState(userID, database.StateOffline); err != nil {
		logger.ErrorF("Fail to mark user %d offline, details: %v", userID, err)
	}
	logger.InfoF("User %d offline after connection lost", userID)
}

// HandleBridgeMessage 桥接通道收到的消息只走本地投递
// 用户在发布和接收之间下线的话转存离线消息，不能丢
func (s *ChatService) HandleBridgeMessage(userID int, payload []byte) {
	if conn, ok := s.registry.Lookup(userID); ok {
		_ = conn.Send(payload)
		return
	}

	if err := s.offline.EnqueueOfflineMessage(userID, string(payload)); err != nil {
		logger.ErrorF("Fail to store bridge message for user %d, details: %v", userID, err)
	}
}

// Reset 服务端中断退出前把所有落库的在线状态重置为离线
func (s *ChatService) Reset() error {
	return s.users.ResetAllUserState()
}

type ResetCallback struct {
	svc *ChatService
}

func NewResetCallback(svc *ChatService) *ResetCallback {
	return &ResetCallback{svc: svc}
}

func (rc *ResetCallback) Invoke(ctx context.Context) error {
	logger.InfoF("Resetting user presence state")
	return rc.svc.Reset()
}

func (s *ChatService) reply(conn *connection.Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.ErrorF("[%s] Fail to encode reply, details: %v", conn.ConnID, err)
		return
	}
	if err := conn.Send(data); err != nil {
		logger.WarnF("[%s] Fail to send reply, details: %v", conn.ConnID, err)
	}
}
