package service

import (
	"encoding/json"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/connection"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/database"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/logger"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/protocol"
)

// addFriendHandler 存储好友关系，friendid是否存在这里不做校验
func (s *ChatService) addFriendHandler(conn *connection.Connection, env *protocol.Envelope) {
	var req protocol.AddFriendRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		logger.WarnF("[%s] Invalid add friend request, details: %v", conn.ConnID, err)
		return
	}

	if err := s.friends.InsertFriend(req.ID, req.FriendID); err != nil {
		logger.ErrorF("Fail to add friend %d for user %d, details: %v", req.FriendID, req.ID, err)
	}
}

func (s *ChatService) createGroupHandler(conn *connection.Connection, env *protocol.Envelope) {
	var req protocol.CreateGroupRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		logger.WarnF("[%s] Invalid create group request, details: %v", conn.ConnID, err)
		return
	}

	group := &database.Group{Name: req.GroupName, Desc: req.GroupDesc}
	if err := s.groups.CreateGroup(group); err != nil {
		logger.ErrorF("Fail to create group %s, details: %v", req.GroupName, err)
		return
	}

	// 建群的人以creator角色入群
	if err := s.groups.AddGroupMember(req.ID, group.ID, database.RoleCreator); err != nil {
		logger.ErrorF("Fail to add creator %d to group %d, details: %v", req.ID, group.ID, err)
	}
}

func (s *ChatService) joinGroupHandler(conn *connection.Connection, env *protocol.Envelope) {
	var req protocol.JoinGroupRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		logger.WarnF("[%s] Invalid join group request, details: %v", conn.ConnID, err)
		return
	}

	if err := s.groups.AddGroupMember(req.ID, req.GroupID, database.RoleNormal); err != nil {
		logger.ErrorF("Fail to add user %d to group %d, details: %v", req.ID, req.GroupID, err)
	}
}
