package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultHoursKey = "calendar:business_hours"

// RedisStore keeps the business-hours table as a JSON document in Redis.
// A missing key yields the fallback week.
type RedisStore struct {
	redis    *redis.Client
	key      string
	fallback Week
}

// NewRedisStore creates a Redis-backed calendar source.
func NewRedisStore(client *redis.Client, fallback Week) *RedisStore {
	if client == nil {
		panic("calendar: redis client required")
	}
	return &RedisStore{redis: client, key: defaultHoursKey, fallback: fallback}
}

// Week loads the full table.
func (s *RedisStore) Week(ctx context.Context) (Week, error) {
	data, err := s.redis.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.fallback, nil
	}
	if err != nil {
		return Week{}, fmt.Errorf("calendar: get hours: %w", err)
	}
	var rows []DayHours
	if err := json.Unmarshal(data, &rows); err != nil {
		return Week{}, fmt.Errorf("calendar: unmarshal hours: %w", err)
	}
	var w Week
	for _, row := range rows {
		if row.Weekday < time.Sunday || row.Weekday > time.Saturday {
			continue
		}
		w[row.Weekday] = row
	}
	return w, nil
}

// Hours implements Source.
func (s *RedisStore) Hours(ctx context.Context, weekday time.Weekday) (DayHours, error) {
	w, err := s.Week(ctx)
	if err != nil {
		return DayHours{}, err
	}
	return w.ForDay(weekday), nil
}

// Set replaces the table. Used by the administrative collaborator and tests.
func (s *RedisStore) Set(ctx context.Context, w Week) error {
	if err := w.Validate(); err != nil {
		return err
	}
	rows := make([]DayHours, 0, len(w))
	for d := time.Sunday; d <= time.Saturday; d++ {
		row := w[d]
		row.Weekday = d
		rows = append(rows, row)
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("calendar: marshal hours: %w", err)
	}
	if err := s.redis.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("calendar: set hours: %w", err)
	}
	return nil
}
