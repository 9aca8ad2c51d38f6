package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"facultychat/internal/config"
	"facultychat/internal/filter"
	"facultychat/internal/metrics"
	"facultychat/internal/realtime"
	"facultychat/internal/rooms"
	"facultychat/internal/store"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

type dataStore interface {
	GetIdentity(context.Context, int64) (store.Identity, error)
	InsertGroupMessage(context.Context, string, int64, string) (store.GroupMessage, error)
	InsertPrivateMessage(context.Context, int64, int64, string) (store.PrivateMessage, error)
	GroupHistory(context.Context, string, int64, int) ([]store.GroupMessage, error)
	PrivateHistory(context.Context, int64, int64) ([]store.PrivateMessage, error)
	ToggleBlock(context.Context, int64, int64) (bool, error)
	IsBlockedEither(context.Context, int64, int64) (bool, error)
	BlockedBy(context.Context, int64) ([]int64, error)
	InsertReport(context.Context, int64, int64) error
	ReportCounts(context.Context) ([]store.ReportCount, error)
	FilterPolicy(context.Context) (store.FilterPolicy, error)
	Settings(context.Context) (map[string]string, error)
	Ping(context.Context) error
}

// broadcaster is the live membership table messages are fanned out through.
type broadcaster interface {
	Broadcast(key string, payload []byte, excludeID string) int
	Count(key string) int
}

type PrivateHistory struct {
	Messages []store.PrivateMessage `json:"messages"`
	Blocked  bool                   `json:"blocked"`
}

type RoomSummary struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// Service is the message pipeline and moderation surface shared by the
// realtime gateway and the HTTP handlers. It keeps no per-connection state;
// ordering of one connection's sends is the gateway's job.
type Service struct {
	cfg     config.Config
	store   dataStore
	rooms   broadcaster
	catalog *rooms.Catalog
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(cfg config.Config, dataStore *store.PostgresStore, registry *rooms.Registry, catalog *rooms.Catalog, m *metrics.Metrics) *Service {
	return newService(cfg, dataStore, registry, catalog, m)
}

func newService(cfg config.Config, dataStore dataStore, registry broadcaster, catalog *rooms.Catalog, m *metrics.Metrics) *Service {
	if catalog == nil {
		catalog = rooms.NewCatalog(cfg.RoomCatalog)
	}
	return &Service{
		cfg:     cfg,
		store:   dataStore,
		rooms:   registry,
		catalog: catalog,
		metrics: m,
		logger:  slog.Default().With("component", "pipeline"),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SendGroupMessage validates, filters, persists and fans out a faculty room
// message. The sender's own connections in the room receive it too.
func (s *Service) SendGroupMessage(ctx context.Context, identityID int64, roomName, body string) (*store.GroupMessage, error) {
	roomName = strings.TrimSpace(roomName)
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, validationError("Message body is required")
	}
	if !s.catalog.Contains(roomName) {
		return nil, validationError("Unknown room")
	}

	body, err := s.applyFilter(ctx, body)
	if err != nil {
		return nil, err
	}

	item, err := s.store.InsertGroupMessage(ctx, roomName, identityID, body)
	if err != nil {
		return nil, newPersistenceFailure("Message could not be sent", err)
	}
	s.metrics.MessageSent(metrics.ScopeGroup)
	s.fanOut(rooms.FacultyKey(roomName), realtime.EventNewGroupMessage, item)
	return &item, nil
}

// SendPrivateMessage returns (nil, nil) when either side has blocked the
// other: nothing is stored or delivered and the sender is not told.
func (s *Service) SendPrivateMessage(ctx context.Context, identityID, peerID int64, body string) (*store.PrivateMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, validationError("Message body is required")
	}
	if peerID <= 0 {
		return nil, validationError("Recipient is required")
	}
	if peerID == identityID {
		return nil, validationError("Cannot message yourself")
	}

	blocked, err := s.store.IsBlockedEither(ctx, identityID, peerID)
	if err != nil {
		return nil, newPersistenceFailure("Message could not be sent", err)
	}
	if blocked {
		s.metrics.MessageSuppressed()
		s.logger.Debug("private_message_suppressed", "sender_id", identityID, "peer_id", peerID)
		return nil, nil
	}

	body, err = s.applyFilter(ctx, body)
	if err != nil {
		return nil, err
	}

	item, err := s.store.InsertPrivateMessage(ctx, identityID, peerID, body)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("User not found")
	}
	if err != nil {
		return nil, newPersistenceFailure("Message could not be sent", err)
	}
	s.metrics.MessageSent(metrics.ScopePrivate)
	s.fanOut(rooms.ChannelKey(identityID, peerID), realtime.EventNewPrivateMessage, item)
	return &item, nil
}

func (s *Service) FetchGroupHistory(ctx context.Context, identityID int64, roomName string, limit int) ([]store.GroupMessage, error) {
	if !s.catalog.Contains(roomName) {
		return nil, validationError("Unknown room")
	}
	items, err := s.store.GroupHistory(ctx, roomName, identityID, s.historyLimit(limit))
	if err != nil {
		return nil, newPersistenceFailure("History unavailable", err)
	}
	return items, nil
}

// FetchPrivateHistory hides the whole thread while a block exists in either
// direction.
func (s *Service) FetchPrivateHistory(ctx context.Context, identityID, peerID int64) (PrivateHistory, error) {
	if peerID <= 0 || peerID == identityID {
		return PrivateHistory{}, validationError("Invalid peer")
	}
	blocked, err := s.store.IsBlockedEither(ctx, identityID, peerID)
	if err != nil {
		return PrivateHistory{}, newPersistenceFailure("History unavailable", err)
	}
	if blocked {
		return PrivateHistory{Messages: []store.PrivateMessage{}, Blocked: true}, nil
	}
	items, err := s.store.PrivateHistory(ctx, identityID, peerID)
	if err != nil {
		return PrivateHistory{}, newPersistenceFailure("History unavailable", err)
	}
	return PrivateHistory{Messages: items}, nil
}

func (s *Service) ToggleBlock(ctx context.Context, blockerID, targetID int64) (bool, error) {
	if targetID <= 0 || targetID == blockerID {
		return false, validationError("Cannot block yourself")
	}
	blocked, err := s.store.ToggleBlock(ctx, blockerID, targetID)
	if errors.Is(err, store.ErrNotFound) {
		return false, notFoundError("User not found")
	}
	if err != nil {
		return false, newPersistenceFailure("Block could not be updated", err)
	}
	s.logger.Info("block_toggled", "blocker_id", blockerID, "target_id", targetID, "blocked", blocked)
	return blocked, nil
}

func (s *Service) BlockedUsers(ctx context.Context, identityID int64) ([]int64, error) {
	ids, err := s.store.BlockedBy(ctx, identityID)
	if err != nil {
		return nil, newPersistenceFailure("Blocked users unavailable", err)
	}
	return ids, nil
}

func (s *Service) Report(ctx context.Context, reporterID, targetID int64) error {
	if targetID <= 0 || targetID == reporterID {
		return validationError("Cannot report yourself")
	}
	err := s.store.InsertReport(ctx, reporterID, targetID)
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError("User not found")
	}
	if err != nil {
		return newPersistenceFailure("Report could not be saved", err)
	}
	s.logger.Info("user_reported", "reporter_id", reporterID, "target_id", targetID)
	return nil
}

func (s *Service) ReportCounts(ctx context.Context) ([]store.ReportCount, error) {
	counts, err := s.store.ReportCounts(ctx)
	if err != nil {
		return nil, newPersistenceFailure("Reports unavailable", err)
	}
	return counts, nil
}

// IdentitySummary is what other room members see when someone joins.
func (s *Service) IdentitySummary(ctx context.Context, identityID int64) (store.Identity, error) {
	identity, err := s.store.GetIdentity(ctx, identityID)
	if err != nil {
		return store.Identity{}, fmt.Errorf("identity summary: %w", err)
	}
	return identity, nil
}

func (s *Service) PublicSettings(ctx context.Context) (map[string]string, error) {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return nil, newPersistenceFailure("Settings unavailable", err)
	}
	return settings, nil
}

// Rooms lists the catalog with the number of connections currently in each
// room.
func (s *Service) Rooms() []RoomSummary {
	names := s.catalog.Names()
	out := make([]RoomSummary, 0, len(names))
	for _, name := range names {
		out = append(out, RoomSummary{Name: name, Members: s.rooms.Count(rooms.FacultyKey(name))})
	}
	return out
}

func (s *Service) applyFilter(ctx context.Context, body string) (string, error) {
	policy, err := s.store.FilterPolicy(ctx)
	if err != nil {
		if s.cfg.StrictFiltering {
			return "", newPersistenceFailure("Message could not be sent", err)
		}
		s.metrics.FilterDegraded()
		s.logger.Warn("filter_policy_unavailable", "error", err)
		return body, nil
	}
	return filter.Mask(body, policy.Words), nil
}

func (s *Service) fanOut(key, event string, data any) {
	payload, err := realtime.Encode(event, data)
	if err != nil {
		s.logger.Error("encode_broadcast_failed", "event", event, "error", err)
		return
	}
	delivered := s.rooms.Broadcast(key, payload, "")
	s.logger.Debug("message_fanned_out", "room", key, "event", event, "delivered", delivered)
}

func (s *Service) historyLimit(limit int) int {
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit
}
