package store

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	settingFilterWords     = "filter_words"
	settingGroupLifetime   = "group_message_lifetime_hours"
	settingPrivateLifetime = "private_message_lifetime_hours"

	defaultLifetimeHours = 2
)

func (s *PostgresStore) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, COALESCE(value, '') FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return settings, nil
}

func (s *PostgresStore) RetentionPolicy(ctx context.Context) (RetentionPolicy, error) {
	values, err := s.settingValues(ctx, settingGroupLifetime, settingPrivateLifetime)
	if err != nil {
		return RetentionPolicy{}, err
	}
	return ParseRetentionPolicy(values[settingGroupLifetime], values[settingPrivateLifetime]), nil
}

func (s *PostgresStore) FilterPolicy(ctx context.Context) (FilterPolicy, error) {
	values, err := s.settingValues(ctx, settingFilterWords)
	if err != nil {
		return FilterPolicy{}, err
	}
	return ParseFilterPolicy(values[settingFilterWords]), nil
}

func (s *PostgresStore) settingValues(ctx context.Context, keys ...string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, COALESCE(value, '') FROM settings WHERE key = ANY($1)`, keys)
	if err != nil {
		return nil, fmt.Errorf("read settings %v: %w", keys, err)
	}
	defer rows.Close()

	values := make(map[string]string, len(keys))
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return values, nil
}

// ParseRetentionPolicy converts the stored hour values. Missing, malformed
// or non-positive values fall back to two hours.
func ParseRetentionPolicy(groupHours, privateHours string) RetentionPolicy {
	return RetentionPolicy{
		GroupHours:   parseHours(groupHours),
		PrivateHours: parseHours(privateHours),
	}
}

// MaxLifetimeHours is the longest window a time.Duration can express.
const MaxLifetimeHours = int(math.MaxInt64 / int64(time.Hour))

func parseHours(value string) int {
	hours, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || hours <= 0 {
		return defaultLifetimeHours
	}
	return min(hours, MaxLifetimeHours)
}

// ParseFilterPolicy splits the comma-separated word list, keeping order and
// dropping blanks.
func ParseFilterPolicy(value string) FilterPolicy {
	var words []string
	for _, word := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(word); trimmed != "" {
			words = append(words, trimmed)
		}
	}
	return FilterPolicy{Words: words}
}
