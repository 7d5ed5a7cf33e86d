package database

import (
	"context"
	"time"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBStore 基于MongoDB的持久化实现，覆盖用户、好友、群组和离线消息四类数据
type DBStore struct {
	client *mongo.Client
	db     *mongo.Database
}

var DbStore *DBStore

func NewDatabaseStore() *DBStore {
	if DbStore == nil {
		DbStore = &DBStore{client: Client, db: Database}
	}
	return DbStore
}

func (ds *DBStore) InsertUser(user *User) error {
	id, err := nextID(UserCollectionName)
	if err != nil {
		return err
	}
	user.ID = id
	if user.State == "" {
		user.State = StateOffline
	}

	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	_, err = Database.Collection(UserCollectionName).InsertOne(ctx, user)
	if err != nil {
		return wrapDBErr(err)
	}

	logger.InfoF("User registered: id=%d, name=%s", user.ID, user.Name)
	return nil
}

func (ds *DBStore) QueryUserByID(id int) (*User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "id", Value: id}}
	var user User

	startTime := time.Now()
	err := Database.Collection(UserCollectionName).FindOne(ctx, filter).Decode(&user)
	logger.DebugF("user query cost: %v", time.Since(startTime))

	if err != nil {
		return nil, wrapDBErr(err)
	}
	return &user, nil
}

func (ds *DBStore) UpdateUserState(id int, state string) error {
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "id", Value: id}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "state", Value: state}}}}

	result, err := Database.Collection(UserCollectionName).UpdateOne(ctx, filter, update)
	if err != nil {
		return wrapDBErr(err)
	}

	logger.DebugF("User state updated: id=%d, state=%s, matched=%d", id, state, result.MatchedCount)
	return nil
}

// ResetAllState 服务端退出前把所有在线用户重置为离线
func (ds *DBStore) ResetAllUserState() error {
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "state", Value: StateOnline}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "state", Value: StateOffline}}}}

	result, err := Database.Collection(UserCollectionName).UpdateMany(ctx, filter, update)
	if err != nil {
		return wrapDBErr(err)
	}

	logger.InfoF("User state reset: modified=%d", result.ModifiedCount)
	return nil
}
