package service

import (
	"encoding/json"
	"errors"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/connection"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/database"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/logger"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/protocol"
	"golang.org/x/crypto/bcrypt"
)

const (
	errnoOK            = 0
	errnoBadCredential = 1
	errnoAlreadyOnline = 2

	msgBadCredential  = "incorrect id or password!"
	msgAlreadyOnline  = "this account is using, input another!"
	msgRegisterFailed = "register failed!"
)

func (s *ChatService) loginHandler(conn *connection.Connection, env *protocol.Envelope) {
	var req protocol.LoginRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		logger.WarnF("[%s] Invalid login request, details: %v", conn.ConnID, err)
		return
	}

	user, err := s.users.QueryUserByID(req.ID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			logger.ErrorF("Fail to query user %d, details: %v", req.ID, err)
		}
		s.reply(conn, protocol.LoginAck{MsgID: protocol.LoginAckMsg, Errno: errnoBadCredential, ErrMsg: msgBadCredential})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		s.reply(conn, protocol.LoginAck{MsgID: protocol.LoginAckMsg, Errno: errnoBadCredential, ErrMsg: msgBadCredential})
		return
	}

	// 落库状态在线说明已在某个进程登录，可能是本进程也可能是别的进程
	// 拒绝重复登录，注册表和订阅都不动
	if user.State == database.StateOnline {
		s.reply(conn, protocol.LoginAck{MsgID: protocol.LoginAckMsg, Errno: errnoAlreadyOnline, ErrMsg: msgAlreadyOnline})
		return
	}

	s.registry.Put(req.ID, conn)
	s.bridge.Subscribe(req.ID)
	if err := s.users.UpdateUserState(req.ID, database.StateOnline); err != nil {
		logger.ErrorF("Fail to mark user %d online, details: %v", req.ID, err)
	}

	ack := protocol.LoginAck{
		MsgID: protocol.LoginAckMsg,
		Errno: errnoOK,
		ID:    user.ID,
		Name:  user.Name,
	}

	payloads, err := s.offline.DrainOfflineMessages(req.ID)
	if err != nil {
		logger.ErrorF("Fail to drain offline messages for user %d, details: %v", req.ID, err)
	}
	ack.OfflineMsg = payloads

	friends, err := s.friends.QueryFriends(req.ID)
	if err != nil {
		logger.ErrorF("Fail to query friends of user %d, details: %v", req.ID, err)
	}
	for _, friend := range friends {
		ack.Friends = append(ack.Friends, protocol.FriendInfo{ID: friend.ID, Name: friend.Name, State: friend.State})
	}

	groups, err := s.groups.QueryGroups(req.ID)
	if err != nil {
		logger.ErrorF("Fail to query groups of user %d, details: %v", req.ID, err)
	}
	for _, group := range groups {
		info := protocol.GroupInfo{ID: group.ID, GroupName: group.Name, GroupDesc: group.Desc}
		for _, member := range group.Members {
			info.Users = append(info.Users, protocol.GroupMemberInfo{
				ID:    member.ID,
				Name:  member.Name,
				State: member.State,
				Role:  member.Role,
			})
		}
		ack.Groups = append(ack.Groups, info)
	}

	s.reply(conn, ack)
}

// logoutHandler 主动注销，对没有活跃会话的ID除状态落库外都是空操作
func (s *ChatService) logoutHandler(conn *connection.Connection, env *protocol.Envelope) {
	var req protocol.LogoutRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		logger.WarnF("[%s] Invalid logout request, details: %v", conn.ConnID, err)
		return
	}

	s.registry.Remove(req.ID)
	s.bridge.Unsubscribe(req.ID)
	if err := s.users.UpdateUserState(req.ID, database.StateOffline); err != nil {
		logger.ErrorF("Fail to mark user %d offline, details: %v", req.ID, err)
	}
	logger.InfoF("User %d logged out", req.ID)
}

func (s *ChatService) registerHandler(conn *connection.Connection, env *protocol.Envelope) {
	var req protocol.RegisterRequest
	if err := json.Unmarshal(env.Raw, &req); err != nil {
		logger.WarnF("[%s] Invalid register request, details: %v", conn.ConnID, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.ErrorF("Fail to hash password, details: %v", err)
		s.reply(conn, protocol.RegisterAck{MsgID: protocol.RegisterAckMsg, Errno: errnoBadCredential, ErrMsg: msgRegisterFailed})
		return
	}

	user := &database.User{Name: req.Name, Password: string(hash), State: database.StateOffline}
	if err := s.users.InsertUser(user); err != nil {
		logger.ErrorF("Fail to register user %s, details: %v", req.Name, err)
		s.reply(conn, protocol.RegisterAck{MsgID: protocol.RegisterAckMsg, Errno: errnoBadCredential, ErrMsg: msgRegisterFailed})
		return
	}

	s.reply(conn, protocol.RegisterAck{MsgID: protocol.RegisterAckMsg, Errno: errnoOK, ID: user.ID})
}
