package presence

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"support_chat/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RedisRepository keeps presence in a hash per user and one hash per
// attendance day, with a set indexing the days.
type RedisRepository struct {
	rdb *redis.Client
}

func NewRedisRepository(rdb *redis.Client) *RedisRepository {
	return &RedisRepository{rdb: rdb}
}

func presenceKey(userID string) string { return "presence:" + userID }

func attendanceKey(userID, date string) string { return "attendance:" + userID + ":" + date }

func attendanceDaysKey(userID string) string { return "attendance:" + userID + ":days" }

// checkOutScript writes out only when the day has a check-in and no
// check-out yet.
var checkOutScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], "in") == 0 then
	return 0
end
local out = redis.call("HGET", KEYS[1], "out")
if out and out ~= "" then
	return 0
end
redis.call("HSET", KEYS[1], "out", ARGV[1])
return 1
`)

func (r *RedisRepository) SetStatus(ctx context.Context, userID, status string, lastSeen int64) error {
	err := r.rdb.HSet(ctx, presenceKey(userID), "status", status, "lastSeen", lastSeen).Err()
	if err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

func (r *RedisRepository) CheckIn(ctx context.Context, userID, date, at string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, attendanceKey(userID, date), "in", at)
		pipe.SAdd(ctx, attendanceDaysKey(userID), date)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to check in: %w", err)
	}
	return nil
}

func (r *RedisRepository) CheckOut(ctx context.Context, userID, date, at string) (bool, error) {
	n, err := checkOutScript.Run(ctx, r.rdb, []string{attendanceKey(userID, date)}, at).Int()
	if err != nil {
		return false, fmt.Errorf("failed to check out: %w", err)
	}
	return n == 1, nil
}

func (r *RedisRepository) Get(ctx context.Context, userID string) (*domain.UserPresence, error) {
	fields, err := r.rdb.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	p := &domain.UserPresence{UserID: userID, Status: fields["status"]}
	if v, ok := fields["lastSeen"]; ok {
		if p.LastSeen, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("failed to parse last seen: %w", err)
		}
	}

	days, err := r.rdb.SMembers(ctx, attendanceDaysKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to list attendance days: %w", err)
	}
	slices.Sort(days)

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(days))
	for i, day := range days {
		cmds[i] = pipe.HGetAll(ctx, attendanceKey(userID, day))
	}
	if len(days) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to load attendance: %w", err)
		}
	}
	for i, cmd := range cmds {
		rec := cmd.Val()
		p.Attendance = append(p.Attendance, domain.AttendanceRecord{
			Date: days[i],
			In:   rec["in"],
			Out:  rec["out"],
		})
	}
	return p, nil
}
