package database

import (
	"context"
	"time"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type offlineRow struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	UserID  int                `bson:"user_id"`
	Payload string             `bson:"payload"`
}

func (ds *DBStore) EnqueueOfflineMessage(userID int, payload string) error {
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	row := offlineRow{UserID: userID, Payload: payload}
	_, err := Database.Collection(OfflineMessageCollectionName).InsertOne(ctx, row)
	if err != nil {
		return wrapDBErr(err)
	}

	logger.DebugF("Offline message stored for user %d", userID)
	return nil
}

// DrainOfflineMessages 取出并删除用户的全部离线消息
// 只删除本次读到的那批，排空开始后新入队的消息留待下次登录
func (ds *DBStore) DrainOfflineMessages(userID int) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "user_id", Value: userID}}

	startTime := time.Now()
	cursor, err := Database.Collection(OfflineMessageCollectionName).Find(ctx, filter)
	if err != nil {
		return nil, wrapDBErr(err)
	}
	var rows []offlineRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, wrapDBErr(err)
	}
	logger.DebugF("offline message query cost: %v", time.Since(startTime))

	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]primitive.ObjectID, 0, len(rows))
	payloads := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
		payloads = append(payloads, row.Payload)
	}

	deleteFilter := bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}
	result, err := Database.Collection(OfflineMessageCollectionName).DeleteMany(ctx, deleteFilter)
	if err != nil {
		return nil, wrapDBErr(err)
	}

	logger.InfoF("Offline messages drained: user_id=%d, delivered=%d, deleted=%d", userID, len(payloads), result.DeletedCount)
	return payloads, nil
}
