package protocol

import (
	"bytes"
	"testing"
)

func TestDecode(t *testing.T) {
	env, err := Decode([]byte(`{"msgid":1,"id":42,"password":"p"}`))
	if err != nil {
		t.Fatalf("Fail to decode valid message: %v", err)
	}
	if env.MsgID != LoginMsg {
		t.Fatalf("Except LOGIN, but got %s", env.MsgID)
	}
}

func TestDecodeMissingMsgID(t *testing.T) {
	if _, err := Decode([]byte(`{"id":42}`)); err == nil {
		t.Fatal("Except error for missing msgid, but got nil")
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	if _, err := Decode([]byte(`{"msgid":`)); err == nil {
		t.Fatal("Except error for truncated JSON, but got nil")
	}
}

// Raw必须是独立拷贝，调用方复用读缓冲不能影响已解码的消息
func TestDecodeCopiesRaw(t *testing.T) {
	buf := []byte(`{"msgid":6,"toid":2}`)
	env, err := Decode(buf)
	if err != nil {
		t.Fatalf("Fail to decode: %v", err)
	}

	original := string(env.Raw)
	for i := range buf {
		buf[i] = 'x'
	}
	if !bytes.Equal(env.Raw, []byte(original)) {
		t.Fatal("Raw payload shares memory with the input buffer")
	}
}

func TestMsgTypeString(t *testing.T) {
	if GroupChatMsg.String() != "GROUP_CHAT" {
		t.Fatalf("Except GROUP_CHAT, but got %s", GroupChatMsg.String())
	}
	if MsgType(77).String() != "UNKNOWN(77)" {
		t.Fatalf("Except UNKNOWN(77), but got %s", MsgType(77).String())
	}
}
