package database

import (
	"fmt"
	"sync"
)

// MemoryStore 全内存实现，进程重启数据即丢失，主要用于测试和单机体验
type MemoryStore struct {
	mu       sync.Mutex
	users    map[int]*User
	names    map[string]int
	friends  map[int][]int
	groups   map[int]*Group
	members  map[int][]groupMemberRow
	offline  map[int][]string
	counters map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[int]*User),
		names:    make(map[string]int),
		friends:  make(map[int][]int),
		groups:   make(map[int]*Group),
		members:  make(map[int][]groupMemberRow),
		offline:  make(map[int][]string),
		counters: make(map[string]int),
	}
}

func (ms *MemoryStore) nextID(name string) int {
	ms.counters[name]++
	return ms.counters[name]
}

func (ms *MemoryStore) InsertUser(user *User) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.names[user.Name]; ok {
		return fmt.Errorf("unique key conflicts: user name %s already exists", user.Name)
	}
	user.ID = ms.nextID(UserCollectionName)
	if user.State == "" {
		user.State = StateOffline
	}
	stored := *user
	ms.users[user.ID] = &stored
	ms.names[user.Name] = user.ID
	return nil
}

func (ms *MemoryStore) QueryUserByID(id int) (*User, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	user, ok := ms.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	found := *user
	return &found, nil
}

func (ms *MemoryStore) UpdateUserState(id int, state string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if user, ok := ms.users[id]; ok {
		user.State = state
	}
	return nil
}

func (ms *MemoryStore) ResetAllUserState() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, user := range ms.users {
		user.State = StateOffline
	}
	return nil
}

func (ms *MemoryStore) InsertFriend(userID, friendID int) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, id := range ms.friends[userID] {
		if id == friendID {
			return fmt.Errorf("unique key conflicts: friend pair (%d, %d)", userID, friendID)
		}
	}
	ms.friends[userID] = append(ms.friends[userID], friendID)
	return nil
}

func (ms *MemoryStore) QueryFriends(userID int) ([]User, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var users []User
	for _, id := range ms.friends[userID] {
		if user, ok := ms.users[id]; ok {
			users = append(users, *user)
		}
	}
	return users, nil
}

func (ms *MemoryStore) CreateGroup(group *Group) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	group.ID = ms.nextID(GroupCollectionName)
	stored := *group
	ms.groups[group.ID] = &stored
	return nil
}

func (ms *MemoryStore) AddGroupMember(userID, groupID int, role string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, row := range ms.members[groupID] {
		if row.UserID == userID {
			return fmt.Errorf("unique key conflicts: member pair (%d, %d)", groupID, userID)
		}
	}
	ms.members[groupID] = append(ms.members[groupID], groupMemberRow{GroupID: groupID, UserID: userID, Role: role})
	return nil
}

func (ms *MemoryStore) QueryGroups(userID int) ([]GroupDetail, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var details []GroupDetail
	for groupID, rows := range ms.members {
		joined := false
		for _, row := range rows {
			if row.UserID == userID {
				joined = true
				break
			}
		}
		if !joined {
			continue
		}
		group, ok := ms.groups[groupID]
		if !ok {
			continue
		}
		detail := GroupDetail{Group: *group}
		for _, row := range rows {
			if user, ok := ms.users[row.UserID]; ok {
				member := *user
				member.Password = ""
				detail.Members = append(detail.Members, GroupMember{User: member, Role: row.Role})
			}
		}
		details = append(details, detail)
	}
	return details, nil
}

func (ms *MemoryStore) QueryGroupMemberIDs(userID, groupID int) ([]int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	rows, ok := ms.members[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}
	return ids, nil
}

func (ms *MemoryStore) EnqueueOfflineMessage(userID int, payload string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.offline[userID] = append(ms.offline[userID], payload)
	return nil
}

func (ms *MemoryStore) DrainOfflineMessages(userID int) ([]string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	payloads := ms.offline[userID]
	delete(ms.offline, userID)
	return payloads, nil
}
