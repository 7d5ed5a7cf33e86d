package database

import (
	"context"
	"time"

	"github.com/fast-chat-dev/fast-chat-go-server/internal/logger"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.mongodb.org/mongo-driver/bson"
)

type groupMemberRow struct {
	GroupID int    `bson:"group_id"`
	UserID  int    `bson:"user_id"`
	Role    string `bson:"role"`
}

// 群成员ID列表的查询在群聊转发路径上很热，短暂缓存
// 本进程新增成员时主动失效，其他进程的变更靠TTL过期兜底
var memberIDCache = expirable.NewLRU[int, []int](256, nil, time.Minute)

func (ds *DBStore) CreateGroup(group *Group) error {
	id, err := nextID(GroupCollectionName)
	if err != nil {
		return err
	}
	group.ID = id

	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	_, err = Database.Collection(GroupCollectionName).InsertOne(ctx, group)
	if err != nil {
		return wrapDBErr(err)
	}

	logger.InfoF("Group created: id=%d, name=%s", group.ID, group.Name)
	return nil
}

func (ds *DBStore) AddGroupMember(userID, groupID int, role string) error {
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	row := groupMemberRow{GroupID: groupID, UserID: userID, Role: role}
	_, err := Database.Collection(GroupMemberCollectionName).InsertOne(ctx, row)
	if err != nil {
		return wrapDBErr(err)
	}

	memberIDCache.Remove(groupID)
	logger.InfoF("Group member added: group_id=%d, user_id=%d, role=%s", groupID, userID, role)
	return nil
}

// QueryGroups 返回用户加入的全部群组，带每个群的成员明细
func (ds *DBStore) QueryGroups(userID int) ([]GroupDetail, error) {
	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "user_id", Value: userID}}
	cursor, err := Database.Collection(GroupMemberCollectionName).Find(ctx, filter)
	if err != nil {
		return nil, wrapDBErr(err)
	}

	var memberships []groupMemberRow
	if err := cursor.All(ctx, &memberships); err != nil {
		return nil, wrapDBErr(err)
	}
	if len(memberships) == 0 {
		return nil, nil
	}

	details := make([]GroupDetail, 0, len(memberships))
	for _, membership := range memberships {
		detail, err := ds.queryGroupDetail(ctx, membership.GroupID)
		if err != nil {
			return nil, err
		}
		details = append(details, *detail)
	}
	return details, nil
}

func (ds *DBStore) queryGroupDetail(ctx context.Context, groupID int) (*GroupDetail, error) {
	var group Group
	filter := bson.D{{Key: "id", Value: groupID}}
	if err := Database.Collection(GroupCollectionName).FindOne(ctx, filter).Decode(&group); err != nil {
		return nil, wrapDBErr(err)
	}

	memberFilter := bson.D{{Key: "group_id", Value: groupID}}
	cursor, err := Database.Collection(GroupMemberCollectionName).Find(ctx, memberFilter)
	if err != nil {
		return nil, wrapDBErr(err)
	}
	var rows []groupMemberRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, wrapDBErr(err)
	}

	roleByID := make(map[int]string, len(rows))
	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		roleByID[row.UserID] = row.Role
		ids = append(ids, row.UserID)
	}

	userFilter := bson.D{{Key: "id", Value: bson.D{{Key: "$in", Value: ids}}}}
	userCursor, err := Database.Collection(UserCollectionName).Find(ctx, userFilter)
	if err != nil {
		return nil, wrapDBErr(err)
	}
	var users []User
	if err := userCursor.All(ctx, &users); err != nil {
		return nil, wrapDBErr(err)
	}

	detail := &GroupDetail{Group: group}
	for _, user := range users {
		user.Password = ""
		detail.Members = append(detail.Members, GroupMember{User: user, Role: roleByID[user.ID]})
	}
	return detail, nil
}

// QueryGroupMemberIDs 查询群的全部成员ID，发送者本身也包含在内
func (ds *DBStore) QueryGroupMemberIDs(userID, groupID int) ([]int, error) {
	if ids, ok := memberIDCache.Get(groupID); ok {
		return ids, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), OperationTimeout)
	defer cancel()

	filter := bson.D{{Key: "group_id", Value: groupID}}

	startTime := time.Now()
	cursor, err := Database.Collection(GroupMemberCollectionName).Find(ctx, filter)
	if err != nil {
		return nil, wrapDBErr(err)
	}
	var rows []groupMemberRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, wrapDBErr(err)
	}
	logger.DebugF("group member query cost: %v", time.Since(startTime))

	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}

	memberIDCache.Add(groupID, ids)
	return ids, nil
}
