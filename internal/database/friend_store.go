package database

import (
	"context"
	"time"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
)

type friendRow struct {
	UserID   int `bson:"user_id"`
	FriendID int `bson:"friend_id"`
}

func (ds *DBStore) InsertFriend(userID, friendID int) error {
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	row := friendRow{UserID: userID, FriendID: friendID}
	_, err := Database.Collection(FriendCollectionName).InsertOne(ctx, row)
	if err != nil {
		return wrapDBErr(err)
	}

	logger.InfoF("Friend added: user_id=%d, friend_id=%d", userID, friendID)
	return nil
}

// QueryFriends 返回用户全部好友的完整用户记录，在线状态取的是落库值
func (ds *DBStore) QueryFriends(userID int) ([]User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "user_id", Value: userID}}

	startTime := time.Now()
	cursor, err := Database.Collection(FriendCollectionName).Find(ctx, filter)
	if err != nil {
		return nil, wrapDBErr(err)
	}

	var rows []friendRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, wrapDBErr(err)
	}
	logger.DebugF("friend query cost: %v", time.Since(startTime))

	if len(rows) == 0 {
		return nil, nil
	}

	friendIDs := make([]int, 0, len(rows))
	for _, row := range rows {
		friendIDs = append(friendIDs, row.FriendID)
	}

	userFilter := bson.D{{Key: "id", Value: bson.D{{Key: "$in", Value: friendIDs}}}}
	userCursor, err := Database.Collection(UserCollectionName).Find(ctx, userFilter)
	if err != nil {
		return nil, wrapDBErr(err)
	}

	var users []User
	if err := userCursor.All(ctx, &users); err != nil {
		return nil, wrapDBErr(err)
	}
	return users, nil
}
