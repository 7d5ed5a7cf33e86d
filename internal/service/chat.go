package service

import (
	"encoding/json"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/connection"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/logger"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/protocol"
)

// oneChatHandler 一对一聊天，原始报文原样转发给目标用户
func (s *ChatService) oneChatHandler(conn *connection.Connection, env *protocol.Envelope) {
	var req protocol.OneChatRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		logger.WarnF("[%s] Invalid chat request, details: %v", conn.ConnID, err)
		return
	}

	s.Deliver(req.ToID, env.Raw)
}

// groupChatHandler 群聊对每个成员独立做一次投递决策
// 某个成员投递失败不影响其他成员
func (s *ChatService) groupChatHandler(conn *connection.Connection, env *protocol.Envelope) {
	var req protocol.GroupChatRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		logger.WarnF("[%s] Invalid group chat request, details: %v", conn.ConnID, err)
		return
	}

	memberIDs, err := s.groups.QueryGroupMemberIDs(req.ID, req.GroupID)
	if err != nil {
		logger.ErrorF("Fail to query members of group %d, details: %v", req.GroupID, err)
		return
	}

	for _, memberID := range memberIDs {
		s.Deliver(memberID, env.Raw)
	}
}
