package app

import (
	"context"
	"sync"
	"time"

	"facultychat/internal/config"
	"facultychat/internal/rooms"
	"facultychat/internal/store"
)

type fakeStore struct {
	getIdentityFn          func(context.Context, int64) (store.Identity, error)
	insertGroupMessageFn   func(context.Context, string, int64, string) (store.GroupMessage, error)
	insertPrivateMessageFn func(context.Context, int64, int64, string) (store.PrivateMessage, error)
	groupHistoryFn         func(context.Context, string, int64, int) ([]store.GroupMessage, error)
	privateHistoryFn       func(context.Context, int64, int64) ([]store.PrivateMessage, error)
	toggleBlockFn          func(context.Context, int64, int64) (bool, error)
	isBlockedEitherFn      func(context.Context, int64, int64) (bool, error)
	blockedByFn            func(context.Context, int64) ([]int64, error)
	insertReportFn         func(context.Context, int64, int64) error
	reportCountsFn         func(context.Context) ([]store.ReportCount, error)
	filterPolicyFn         func(context.Context) (store.FilterPolicy, error)
	settingsFn             func(context.Context) (map[string]string, error)
	pingFn                 func(context.Context) error
}

func (f *fakeStore) GetIdentity(ctx context.Context, id int64) (store.Identity, error) {
	if f.getIdentityFn != nil {
		return f.getIdentityFn(ctx, id)
	}
	return store.Identity{ID: id, FullName: "Member", IsActive: true}, nil
}

func (f *fakeStore) InsertGroupMessage(ctx context.Context, room string, author int64, body string) (store.GroupMessage, error) {
	if f.insertGroupMessageFn != nil {
		return f.insertGroupMessageFn(ctx, room, author, body)
	}
	return store.GroupMessage{ID: 1, RoomName: room, Body: body, CreatedAt: time.Now(), Author: store.Identity{ID: author}}, nil
}

func (f *fakeStore) InsertPrivateMessage(ctx context.Context, sender, receiver int64, body string) (store.PrivateMessage, error) {
	if f.insertPrivateMessageFn != nil {
		return f.insertPrivateMessageFn(ctx, sender, receiver, body)
	}
	return store.PrivateMessage{ID: 1, SenderID: sender, ReceiverID: receiver, Body: body, CreatedAt: time.Now()}, nil
}

func (f *fakeStore) GroupHistory(ctx context.Context, room string, requester int64, limit int) ([]store.GroupMessage, error) {
	if f.groupHistoryFn != nil {
		return f.groupHistoryFn(ctx, room, requester, limit)
	}
	return []store.GroupMessage{}, nil
}

func (f *fakeStore) PrivateHistory(ctx context.Context, a, b int64) ([]store.PrivateMessage, error) {
	if f.privateHistoryFn != nil {
		return f.privateHistoryFn(ctx, a, b)
	}
	return []store.PrivateMessage{}, nil
}

func (f *fakeStore) ToggleBlock(ctx context.Context, blocker, target int64) (bool, error) {
	if f.toggleBlockFn != nil {
		return f.toggleBlockFn(ctx, blocker, target)
	}
	return true, nil
}

func (f *fakeStore) IsBlockedEither(ctx context.Context, a, b int64) (bool, error) {
	if f.isBlockedEitherFn != nil {
		return f.isBlockedEitherFn(ctx, a, b)
	}
	return false, nil
}

func (f *fakeStore) BlockedBy(ctx context.Context, blocker int64) ([]int64, error) {
	if f.blockedByFn != nil {
		return f.blockedByFn(ctx, blocker)
	}
	return []int64{}, nil
}

func (f *fakeStore) InsertReport(ctx context.Context, reporter, target int64) error {
	if f.insertReportFn != nil {
		return f.insertReportFn(ctx, reporter, target)
	}
	return nil
}

func (f *fakeStore) ReportCounts(ctx context.Context) ([]store.ReportCount, error) {
	if f.reportCountsFn != nil {
		return f.reportCountsFn(ctx)
	}
	return []store.ReportCount{}, nil
}

func (f *fakeStore) FilterPolicy(ctx context.Context) (store.FilterPolicy, error) {
	if f.filterPolicyFn != nil {
		return f.filterPolicyFn(ctx)
	}
	return store.FilterPolicy{}, nil
}

func (f *fakeStore) Settings(ctx context.Context) (map[string]string, error) {
	if f.settingsFn != nil {
		return f.settingsFn(ctx)
	}
	return map[string]string{}, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type broadcast struct {
	key     string
	payload []byte
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	sent   []broadcast
	counts map[string]int
}

func (f *fakeBroadcaster) Broadcast(key string, payload []byte, _ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, broadcast{key: key, payload: payload})
	return 1
}

func (f *fakeBroadcaster) Count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key]
}

func (f *fakeBroadcaster) broadcasts() []broadcast {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]broadcast(nil), f.sent...)
}

func newTestService(fs *fakeStore, fb *fakeBroadcaster) *Service {
	return newService(config.Config{HistoryLimit: 100}, fs, fb, rooms.NewCatalog(nil), nil)
}
