package service

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/connection"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/database"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/protocol"
)

type fakeBridge struct {
	mu           sync.Mutex
	subscribed   map[int]bool
	published    map[int][][]byte
	subscribes   int
	unsubscribes int
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		subscribed: make(map[int]bool),
		published:  make(map[int][][]byte),
	}
}

func (f *fakeBridge) Subscribe(userID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[userID] = true
	f.subscribes++
	return true
}

func (f *fakeBridge) Unsubscribe(userID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribed, userID)
	f.unsubscribes++
	return true
}

func (f *fakeBridge) Publish(userID int, payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	data := make([]byte, len(payload))
	copy(data, payload)
	f.published[userID] = append(f.published[userID], data)
	return true
}

func (f *fakeBridge) publishCount(userID int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published[userID])
}

type testClient struct {
	conn  *connection.Connection
	lines chan []byte
}

func newTestClient(t *testing.T) *testClient {
	serverSide, clientSide := net.Pipe()
	lines := make(chan []byte, 16)
	go func() {
		scanner := bufio.NewScanner(clientSide)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())
			lines <- line
		}
		close(lines)
	}()
	t.Cleanup(func() {
		_ = serverSide.Close()
		_ = clientSide.Close()
	})
	return &testClient{conn: connection.New(serverSide), lines: lines}
}

func (tc *testClient) nextLine(t *testing.T) []byte {
	t.Helper()
	select {
	case line := <-tc.lines:
		return line
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for reply")
	}
	return nil
}

func (tc *testClient) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case line := <-tc.lines:
		t.Fatalf("Except no reply, but got %s", line)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestService() (*ChatService, *database.MemoryStore, *fakeBridge, *connection.Registry) {
	store := database.NewMemoryStore()
	br := newFakeBridge()
	registry := connection.NewRegistry()
	svc := NewChatService(registry, br, store, store, store, store)
	return svc, store, br, registry
}

func dispatch(t *testing.T, svc *ChatService, client *testClient, msg string) {
	t.Helper()
	env, err := protocol.Decode([]byte(msg))
	if err != nil {
		t.Fatalf("Fail to decode test message %s: %v", msg, err)
	}
	svc.Dispatch(client.conn, env)
}

func register(t *testing.T, svc *ChatService, client *testClient, name, password string) int {
	t.Helper()
	dispatch(t, svc, client, fmt.Sprintf(`{"msgid":%d,"name":%q,"password":%q}`, protocol.RegisterMsg, name, password))
	var ack protocol.RegisterAck
	if err := json.Unmarshal(client.nextLine(t), &ack); err != nil {
		t.Fatalf("Fail to decode register ack: %v", err)
	}
	if ack.Errno != 0 {
		t.Fatalf("Except errno 0 on register, but got %d", ack.Errno)
	}
	return ack.ID
}

func login(t *testing.T, svc *ChatService, client *testClient, id int, password string) protocol.LoginAck {
	t.Helper()
	dispatch(t, svc, client, fmt.Sprintf(`{"msgid":%d,"id":%d,"password":%q}`, protocol.LoginMsg, id, password))
	var ack protocol.LoginAck
	if err := json.Unmarshal(client.nextLine(t), &ack); err != nil {
		t.Fatalf("Fail to decode login ack: %v", err)
	}
	return ack
}

func TestRegisterAndLoginScenario(t *testing.T) {
	svc, store, br, registry := newTestService()
	client := newTestClient(t)

	id := register(t, svc, client, "ann", "p")
	if id != 1 {
		t.Fatalf("Except user id 1, but got %d", id)
	}

	ack := login(t, svc, client, id, "p")
	if ack.Errno != 0 || ack.ID != 1 || ack.Name != "ann" {
		t.Fatalf("Unexpected login ack: %+v", ack)
	}
	if _, ok := registry.Lookup(id); !ok {
		t.Fatal("Except user 1 in registry after login")
	}
	if !br.subscribed[id] {
		t.Fatal("Except bridge subscription after login")
	}

	// 重复登录必须被拒绝，注册表和订阅保持不变
	other := newTestClient(t)
	dup := login(t, svc, other, id, "p")
	if dup.Errno != 2 {
		t.Fatalf("Except errno 2 on duplicate login, but got %d", dup.Errno)
	}
	if conn, _ := registry.Lookup(id); conn != client.conn {
		t.Fatal("Duplicate login must not replace the existing session")
	}
	if br.subscribes != 1 {
		t.Fatalf("Except 1 subscribe, but got %d", br.subscribes)
	}

	dispatch(t, svc, client, fmt.Sprintf(`{"msgid":%d,"id":%d}`, protocol.LogoutMsg, id))
	if _, ok := registry.Lookup(id); ok {
		t.Fatal("Except user 1 removed from registry after logout")
	}
	user, err := store.QueryUserByID(id)
	if err != nil {
		t.Fatalf("Fail to query user: %v", err)
	}
	if user.State != database.StateOffline {
		t.Fatalf("Except state offline after logout, but got %s", user.State)
	}
}

func TestLoginBadCredential(t *testing.T) {
	svc, _, _, registry := newTestService()
	client := newTestClient(t)

	id := register(t, svc, client, "bob", "secret")

	ack := login(t, svc, client, id, "wrong")
	if ack.Errno != 1 {
		t.Fatalf("Except errno 1 on wrong password, but got %d", ack.Errno)
	}
	ack = login(t, svc, client, 404, "secret")
	if ack.Errno != 1 {
		t.Fatalf("Except errno 1 on unknown user, but got %d", ack.Errno)
	}
	if _, ok := registry.Lookup(id); ok {
		t.Fatal("Failed login must not touch the registry")
	}
}

func TestLoginDrainsOfflineMessages(t *testing.T) {
	svc, store, _, _ := newTestService()
	client := newTestClient(t)

	id := register(t, svc, client, "carol", "p")
	_ = store.EnqueueOfflineMessage(id, `{"msg":"first"}`)
	_ = store.EnqueueOfflineMessage(id, `{"msg":"second"}`)

	ack := login(t, svc, client, id, "p")
	if len(ack.OfflineMsg) != 2 {
		t.Fatalf("Except 2 offline messages, but got %d", len(ack.OfflineMsg))
	}

	left, err := store.DrainOfflineMessages(id)
	if err != nil {
		t.Fatalf("Fail to drain: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("Except offline queue empty after login, but got %d entries", len(left))
	}
}

func TestLoginReportsFriendsAndGroups(t *testing.T) {
	svc, store, _, _ := newTestService()
	client := newTestClient(t)
	friendClient := newTestClient(t)

	id := register(t, svc, client, "dave", "p")
	friendID := register(t, svc, friendClient, "erin", "p")

	dispatch(t, svc, client, fmt.Sprintf(`{"msgid":%d,"id":%d,"friendid":%d}`, protocol.AddFriendMsg, id, friendID))
	dispatch(t, svc, client, fmt.Sprintf(`{"msgid":%d,"id":%d,"groupname":"gophers","groupdesc":"go talk"}`, protocol.CreateGroupMsg, id))
	dispatch(t, svc, friendClient, fmt.Sprintf(`{"msgid":%d,"id":%d,"groupid":1}`, protocol.JoinGroupMsg, friendID))

	_ = store.UpdateUserState(friendID, database.StateOnline)

	ack := login(t, svc, client, id, "p")
	if len(ack.Friends) != 1 || ack.Friends[0].ID != friendID || ack.Friends[0].State != database.StateOnline {
		t.Fatalf("Unexpected friends list: %+v", ack.Friends)
	}
	if len(ack.Groups) != 1 || ack.Groups[0].GroupName != "gophers" {
		t.Fatalf("Unexpected groups list: %+v", ack.Groups)
	}
	if len(ack.Groups[0].Users) != 2 {
		t.Fatalf("Except 2 group members, but got %d", len(ack.Groups[0].Users))
	}
	roles := make(map[int]string)
	for _, member := range ack.Groups[0].Users {
		roles[member.ID] = member.Role
	}
	if roles[id] != database.RoleCreator || roles[friendID] != database.RoleNormal {
		t.Fatalf("Unexpected member roles: %v", roles)
	}
}

func TestConnectionLostUnknownHandleIsNoop(t *testing.T) {
	svc, store, br, _ := newTestService()
	client := newTestClient(t)
	stranger := newTestClient(t)

	id := register(t, svc, client, "frank", "p")
	login(t, svc, client, id, "p")

	svc.HandleConnectionLost(stranger.conn)
	if br.unsubscribes != 0 {
		t.Fatalf("Except no unsubscribe for unknown handle, but got %d", br.unsubscribes)
	}
	user, _ := store.QueryUserByID(id)
	if user.State != database.StateOnline {
		t.Fatalf("Except user state untouched, but got %s", user.State)
	}
}

func TestConnectionLostCleansUpSession(t *testing.T) {
	svc, store, br, registry := newTestService()
	client := newTestClient(t)

	id := register(t, svc, client, "grace", "p")
	login(t, svc, client, id, "p")

	svc.HandleConnectionLost(client.conn)
	if _, ok := registry.Lookup(id); ok {
		t.Fatal("Except session removed after connection lost")
	}
	if br.unsubscribes != 1 {
		t.Fatalf("Except 1 unsubscribe, but got %d", br.unsubscribes)
	}
	user, _ := store.QueryUserByID(id)
	if user.State != database.StateOffline {
		t.Fatalf("Except state offline, but got %s", user.State)
	}

	// 重复触发必须无害
	svc.HandleConnectionLost(client.conn)
	if br.unsubscribes != 1 {
		t.Fatalf("Except connection lost to be idempotent, but got %d unsubscribes", br.unsubscribes)
	}
}

func TestDispatchUnknownMsgKind(t *testing.T) {
	svc, _, _, _ := newTestService()
	client := newTestClient(t)

	dispatch(t, svc, client, `{"msgid":99,"id":1}`)
	client.expectNothing(t)
}
