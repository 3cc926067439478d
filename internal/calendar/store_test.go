package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRedisStore_MissingKeyFallsBack(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisStore(client, DefaultWeek())

	hours, err := store.Hours(context.Background(), time.Monday)
	require.NoError(t, err)
	assert.True(t, hours.IsOpen)
	assert.Equal(t, "09:00", hours.Open)
	assert.Equal(t, "19:00", hours.Close)

	sunday, err := store.Hours(context.Background(), time.Sunday)
	require.NoError(t, err)
	assert.False(t, sunday.IsOpen)
}

func TestRedisStore_SetAndGet(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisStore(client, DefaultWeek())
	ctx := context.Background()

	w := DefaultWeek()
	w[time.Saturday] = DayHours{Open: "08:00", Close: "13:00", IsOpen: true}
	w[time.Monday] = DayHours{IsOpen: false}
	require.NoError(t, store.Set(ctx, w))

	sat, err := store.Hours(ctx, time.Saturday)
	require.NoError(t, err)
	assert.Equal(t, DayHours{Weekday: time.Saturday, Open: "08:00", Close: "13:00", IsOpen: true}, sat)

	mon, err := store.Hours(ctx, time.Monday)
	require.NoError(t, err)
	assert.False(t, mon.IsOpen)
}

func TestRedisStore_SetRejectsInvertedWindow(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewRedisStore(client, DefaultWeek())

	w := DefaultWeek()
	w[time.Tuesday] = DayHours{Open: "18:00", Close: "09:00", IsOpen: true}
	require.Error(t, store.Set(context.Background(), w))
}

func TestRedisStore_CorruptPayload(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisStore(client, DefaultWeek())
	require.NoError(t, mr.Set(defaultHoursKey, "not-json"))

	_, err := store.Hours(context.Background(), time.Monday)
	require.Error(t, err)
}

func TestDayHoursWindow(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	date := time.Date(2025, 6, 2, 15, 30, 0, 0, loc)

	open, closeAt, ok := DayHours{Open: "09:00", Close: "19:00", IsOpen: true}.Window(date)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 6, 2, 9, 0, 0, 0, loc), open)
	assert.Equal(t, time.Date(2025, 6, 2, 19, 0, 0, 0, loc), closeAt)

	_, _, ok = DayHours{Open: "09:00", Close: "19:00", IsOpen: false}.Window(date)
	assert.False(t, ok)

	_, _, ok = DayHours{Open: "9am", Close: "19:00", IsOpen: true}.Window(date)
	assert.False(t, ok)
}

func TestWeekForDayOutOfRange(t *testing.T) {
	w := DefaultWeek()
	assert.False(t, w.ForDay(time.Weekday(9)).IsOpen)
	assert.Equal(t, time.Wednesday, w.ForDay(time.Wednesday).Weekday)
}
