// Package bridge 基于NATS实现跨进程的用户消息转发通道
// 每个在线用户订阅一个以其ID命名的主题，消息发到用户所在进程后再做本地投递
package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/logger"
	"github.com/nats-io/nats.go"
)

const subjectPrefix = "chat.user."

type DeliverFunc func(userID int, payload []byte)

// Bridge 命令侧的订阅、退订、发布都是非阻塞的，失败只记日志不重试
// 接收侧由Start启动的单个常驻协程消费inbound通道
type Bridge struct {
	conn    *nats.Conn
	inbound chan *nats.Msg
	done    chan struct{}

	mu   sync.Mutex
	subs map[int]*nats.Subscription
}

func Connect(url string, appName string) (*Bridge, error) {
	conn, err := nats.Connect(url, nats.Name(appName))
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to nats: %v", err)
	}
	logger.InfoF("Connected to nats server at %s", conn.ConnectedUrl())
	return &Bridge{
		conn:    conn,
		inbound: make(chan *nats.Msg, 1024),
		done:    make(chan struct{}),
		subs:    make(map[int]*nats.Subscription),
	}, nil
}

func subject(userID int) string {
	return subjectPrefix + strconv.Itoa(userID)
}

func (b *Bridge) Subscribe(userID int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[userID]; ok {
		return true
	}
	sub, err := b.conn.ChanSubscribe(subject(userID), b.inbound)
	if err != nil {
		logger.ErrorF("Fail to subscribe channel for user %d, details: %v", userID, err)
		return false
	}
	b.subs[userID] = sub
	logger.DebugF("Subscribed channel for user %d", userID)
	return true
}

func (b *Bridge) Unsubscribe(userID int) bool {
	b.mu.Lock()
	sub, ok := b.subs[userID]
	delete(b.subs, userID)
	b.mu.Unlock()
	if !ok {
		return true
	}
	if err := sub.Unsubscribe(); err != nil {
		logger.ErrorF("Fail to unsubscribe channel for user %d, details: %v", userID, err)
		return false
	}
	logger.DebugF("Unsubscribed channel for user %d", userID)
	return true
}

// Publish 把消息发布到目标用户的通道，写入客户端缓冲即返回
func (b *Bridge) Publish(userID int, payload []byte) bool {
	if err := b.conn.Publish(subject(userID), payload); err != nil {
		logger.ErrorF("Fail to publish message for user %d, details: %v", userID, err)
		return false
	}
	return true
}

// Start 启动接收协程，收到的消息交给deliver做本地投递
// 业务逻辑不在NATS的读协程里执行，全部经inbound通道转一跳
func (b *Bridge) Start(deliver DeliverFunc) {
	go func() {
		for {
			select {
			case msg := <-b.inbound:
				userID, err := strconv.Atoi(strings.TrimPrefix(msg.Subject, subjectPrefix))
				if err != nil {
					logger.WarnF("Drop bridge message with invalid subject %s", msg.Subject)
					continue
				}
				deliver(userID, msg.Data)
			case <-b.done:
				return
			}
		}
	}()
}

type BridgeCloseCallback struct {
	bridge *Bridge
}

func NewBridgeCloseCallback(bridge *Bridge) *BridgeCloseCallback {
	return &BridgeCloseCallback{bridge: bridge}
}

func (bc *BridgeCloseCallback) Invoke(ctx context.Context) error {
	logger.InfoF("Closing bridge connection")
	close(bc.bridge.done)
	return bc.bridge.conn.Drain()
}
