package database

import "errors"

const (
	UserCollectionName           = "users"
	FriendCollectionName         = "friends"
	GroupCollectionName          = "groups"
	GroupMemberCollectionName    = "group_members"
	OfflineMessageCollectionName = "offline_messages"
	CounterCollectionName        = "counters"
)

const (
	StateOnline  = "online"
	StateOffline = "offline"
)

const (
	RoleCreator = "creator"
	RoleNormal  = "normal"
)

var ErrNotFound = errors.New("document does not exist")

type User struct {
	ID       int    `bson:"id"`
	Name     string `bson:"name"`
	Password string `bson:"password"`
	State    string `bson:"state"`
}

type Group struct {
	ID   int    `bson:"id"`
	Name string `bson:"name"`
	Desc string `bson:"desc"`
}

// GroupMember 群成员就是一个用户加上群内角色
type GroupMember struct {
	User `bson:",inline"`
	Role string `bson:"role"`
}

// GroupDetail 群信息及其全部成员
type GroupDetail struct {
	Group   `bson:",inline"`
	Members []GroupMember
}

type OfflineMessage struct {
	UserID  int    `bson:"user_id"`
	Payload string `bson:"payload"`
}

type UserStore interface {
	InsertUser(user *User) error
	QueryUserByID(id int) (*User, error)
	UpdateUserState(id int, state string) error
	ResetAllUserState() error
}

type FriendStore interface {
	InsertFriend(userID, friendID int) error
	QueryFriends(userID int) ([]User, error)
}

type GroupStore interface {
	CreateGroup(group *Group) error
	AddGroupMember(userID, groupID int, role string) error
	QueryGroups(userID int) ([]GroupDetail, error)
	QueryGroupMemberIDs(userID, groupID int) ([]int, error)
}

type OfflineMessageStore interface {
	EnqueueOfflineMessage(userID int, payload string) error
	DrainOfflineMessages(userID int) ([]string, error)
}
