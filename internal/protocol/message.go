// Package protocol 定义了聊天服务器的消息类型和报文结构
package protocol

import (
	"encoding/json"
	"fmt"
)

type MsgType int

const (
	LoginMsg MsgType = iota + 1
	LoginAckMsg
	LogoutMsg
	RegisterMsg
	RegisterAckMsg
	OneChatMsg
	AddFriendMsg
	CreateGroupMsg
	JoinGroupMsg
	GroupChatMsg
)

func (m MsgType) String() string {
	switch m {
	case LoginMsg:
		return "LOGIN"
	case LoginAckMsg:
		return "LOGIN_ACK"
	case LogoutMsg:
		return "LOGOUT"
	case RegisterMsg:
		return "REGISTER"
	case RegisterAckMsg:
		return "REGISTER_ACK"
	case OneChatMsg:
		return "ONE_CHAT"
	case AddFriendMsg:
		return "ADD_FRIEND"
	case CreateGroupMsg:
		return "CREATE_GROUP"
	case JoinGroupMsg:
		return "JOIN_GROUP"
	case GroupChatMsg:
		return "GROUP_CHAT"
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(m))
}

// Envelope 一条已解码的消息，Raw保留原始报文用于原样转发
type Envelope struct {
	MsgID MsgType
	Raw   []byte
}

// Decode 从一行报文中解析出消息类型，Raw持有数据的独立拷贝
func Decode(data []byte) (*Envelope, error) {
	var probe struct {
		MsgID *int `json:"msgid"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if probe.MsgID == nil {
		return nil, fmt.Errorf("invalid message: missing msgid field")
	}
	raw := make([]byte, len(data))
	copy(raw, data)
	return &Envelope{MsgID: MsgType(*probe.MsgID), Raw: raw}, nil
}

type LoginRequest struct {
	ID       int    `json:"id"`
	Password string `json:"password"`
}

type LogoutRequest struct {
	ID int `json:"id"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type OneChatRequest struct {
	FromID int `json:"id"`
	ToID   int `json:"toid"`
}

type AddFriendRequest struct {
	ID       int `json:"id"`
	FriendID int `json:"friendid"`
}

type CreateGroupRequest struct {
	ID        int    `json:"id"`
	GroupName string `json:"groupname"`
	GroupDesc string `json:"groupdesc"`
}

type JoinGroupRequest struct {
	ID      int `json:"id"`
	GroupID int `json:"groupid"`
}

type GroupChatRequest struct {
	ID      int `json:"id"`
	GroupID int `json:"groupid"`
}

type FriendInfo struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

type GroupMemberInfo struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
	Role  string `json:"role"`
}

type GroupInfo struct {
	ID        int               `json:"id"`
	GroupName string            `json:"groupname"`
	GroupDesc string            `json:"groupdesc"`
	Users     []GroupMemberInfo `json:"users"`
}

type LoginAck struct {
	MsgID      MsgType      `json:"msgid"`
	Errno      int          `json:"errno"`
	ErrMsg     string       `json:"errmsg,omitempty"`
	ID         int          `json:"id,omitempty"`
	Name       string       `json:"name,omitempty"`
	OfflineMsg []string     `json:"offlinemsg,omitempty"`
	Friends    []FriendInfo `json:"friends,omitempty"`
	Groups     []GroupInfo  `json:"groups,omitempty"`
}

type RegisterAck struct {
	MsgID  MsgType `json:"msgid"`
	Errno  int     `json:"errno"`
	ErrMsg string  `json:"errmsg,omitempty"`
	ID     int     `json:"id,omitempty"`
}
