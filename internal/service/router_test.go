package service

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/database"
	"github.com/fast-chat-dev/fast-chat-go-server/internal/protocol"
)

func TestDeliverLocal(t *testing.T) {
	svc, store, br, _ := newTestService()
	sender := newTestClient(t)
	target := newTestClient(t)

	senderID := register(t, svc, sender, "sam", "p")
	targetID := register(t, svc, target, "tom", "p")
	login(t, svc, sender, senderID, "p")
	login(t, svc, target, targetID, "p")

	payload := fmt.Sprintf(`{"msgid":%d,"id":%d,"toid":%d,"msg":"hi"}`, protocol.OneChatMsg, senderID, targetID)
	dispatch(t, svc, sender, payload)

	got := target.nextLine(t)
	if !bytes.Equal(got, []byte(payload)) {
		t.Fatalf("Except payload forwarded verbatim, but got %s", got)
	}
	if br.publishCount(targetID) != 0 {
		t.Fatal("Local delivery must not publish on the bridge")
	}
	if left, _ := store.DrainOfflineMessages(targetID); len(left) != 0 {
		t.Fatalf("Local delivery must not store offline messages, but got %d", len(left))
	}
}

func TestDeliverViaBridge(t *testing.T) {
	svc, store, br, _ := newTestService()
	sender := newTestClient(t)

	senderID := register(t, svc, sender, "sue", "p")
	login(t, svc, sender, senderID, "p")

	// 对方不在本进程，但落库状态在线，应走桥接发布
	remote := &database.User{Name: "remote", Password: "x"}
	_ = store.InsertUser(remote)
	_ = store.UpdateUserState(remote.ID, database.StateOnline)

	payload := fmt.Sprintf(`{"msgid":%d,"id":%d,"toid":%d,"msg":"hi"}`, protocol.OneChatMsg, senderID, remote.ID)
	dispatch(t, svc, sender, payload)

	if br.publishCount(remote.ID) != 1 {
		t.Fatalf("Except 1 bridge publish, but got %d", br.publishCount(remote.ID))
	}
	if left, _ := store.DrainOfflineMessages(remote.ID); len(left) != 0 {
		t.Fatalf("Bridge delivery must not store offline messages, but got %d", len(left))
	}
}

func TestDeliverOffline(t *testing.T) {
	svc, store, br, _ := newTestService()
	sender := newTestClient(t)

	senderID := register(t, svc, sender, "sal", "p")
	login(t, svc, sender, senderID, "p")

	offline := &database.User{Name: "away", Password: "x"}
	_ = store.InsertUser(offline)

	payload := fmt.Sprintf(`{"msgid":%d,"id":%d,"toid":%d,"msg":"hi"}`, protocol.OneChatMsg, senderID, offline.ID)
	dispatch(t, svc, sender, payload)

	if br.publishCount(offline.ID) != 0 {
		t.Fatal("Offline delivery must not publish on the bridge")
	}
	left, _ := store.DrainOfflineMessages(offline.ID)
	if len(left) != 1 || left[0] != payload {
		t.Fatalf("Except payload stored offline, but got %v", left)
	}
}

// 三个成员分别落在本地、桥接、离线三条路径上，互不影响
func TestGroupChatFanout(t *testing.T) {
	svc, store, br, _ := newTestService()
	sender := newTestClient(t)
	local := newTestClient(t)

	senderID := register(t, svc, sender, "owner", "p")
	localID := register(t, svc, local, "here", "p")
	login(t, svc, sender, senderID, "p")
	login(t, svc, local, localID, "p")

	remote := &database.User{Name: "there", Password: "x"}
	_ = store.InsertUser(remote)
	_ = store.UpdateUserState(remote.ID, database.StateOnline)
	away := &database.User{Name: "gone", Password: "x"}
	_ = store.InsertUser(away)

	dispatch(t, svc, sender, fmt.Sprintf(`{"msgid":%d,"id":%d,"groupname":"g","groupdesc":"d"}`, protocol.CreateGroupMsg, senderID))
	for _, id := range []int{localID, remote.ID, away.ID} {
		if err := store.AddGroupMember(id, 1, database.RoleNormal); err != nil {
			t.Fatalf("Fail to add member %d: %v", id, err)
		}
	}

	payload := fmt.Sprintf(`{"msgid":%d,"id":%d,"groupid":1,"msg":"all"}`, protocol.GroupChatMsg, senderID)
	dispatch(t, svc, sender, payload)

	if got := local.nextLine(t); !bytes.Equal(got, []byte(payload)) {
		t.Fatalf("Except group payload forwarded verbatim, but got %s", got)
	}
	// 发送者也是群成员，同样收到一份
	if got := sender.nextLine(t); !bytes.Equal(got, []byte(payload)) {
		t.Fatalf("Except sender to receive group payload, but got %s", got)
	}
	if br.publishCount(remote.ID) != 1 {
		t.Fatalf("Except 1 bridge publish for remote member, but got %d", br.publishCount(remote.ID))
	}
	left, _ := store.DrainOfflineMessages(away.ID)
	if len(left) != 1 {
		t.Fatalf("Except 1 offline message for away member, but got %d", len(left))
	}
}

// 某个成员的用户记录缺失不能阻断其他成员的投递
func TestGroupChatMemberFailureIndependence(t *testing.T) {
	svc, store, _, _ := newTestService()
	sender := newTestClient(t)
	local := newTestClient(t)

	senderID := register(t, svc, sender, "boss", "p")
	localID := register(t, svc, local, "mate", "p")
	login(t, svc, sender, senderID, "p")
	login(t, svc, local, localID, "p")

	dispatch(t, svc, sender, fmt.Sprintf(`{"msgid":%d,"id":%d,"groupname":"g","groupdesc":"d"}`, protocol.CreateGroupMsg, senderID))
	// 成员999没有用户记录，排在本地成员前面
	_ = store.AddGroupMember(999, 1, database.RoleNormal)
	_ = store.AddGroupMember(localID, 1, database.RoleNormal)

	payload := fmt.Sprintf(`{"msgid":%d,"id":%d,"groupid":1,"msg":"go"}`, protocol.GroupChatMsg, senderID)
	dispatch(t, svc, sender, payload)

	if got := local.nextLine(t); !bytes.Equal(got, []byte(payload)) {
		t.Fatalf("Except delivery to healthy member, but got %s", got)
	}
	// 缺失记录的成员降级为离线转存
	left, _ := store.DrainOfflineMessages(999)
	if len(left) != 1 {
		t.Fatalf("Except 1 offline message for broken member, but got %d", len(left))
	}
}

func TestHandleBridgeMessage(t *testing.T) {
	svc, store, _, _ := newTestService()
	client := newTestClient(t)

	id := register(t, svc, client, "hank", "p")
	login(t, svc, client, id, "p")

	svc.HandleBridgeMessage(id, []byte(`{"msg":"cross"}`))
	if got := client.nextLine(t); !bytes.Equal(got, []byte(`{"msg":"cross"}`)) {
		t.Fatalf("Except bridge message forwarded locally, but got %s", got)
	}

	// 收到桥接消息时用户已下线，必须转存而不是丢弃
	svc.HandleConnectionLost(client.conn)
	svc.HandleBridgeMessage(id, []byte(`{"msg":"late"}`))
	left, _ := store.DrainOfflineMessages(id)
	if len(left) != 1 || left[0] != `{"msg":"late"}` {
		t.Fatalf("Except late bridge message stored offline, but got %v", left)
	}
}
