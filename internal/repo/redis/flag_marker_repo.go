package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// FlagMarkerRepo tracks which users were already flagged for a behavior
// class within the current analytics window. SETNX with the window as TTL
// makes the threshold crossing fire at most once per window.
type FlagMarkerRepo struct {
	client *goredis.Client
}

func NewFlagMarkerRepo(client *goredis.Client) *FlagMarkerRepo {
	return &FlagMarkerRepo{client: client}
}

func (r *FlagMarkerRepo) MarkOnce(ctx context.Context, userID int64, reason string, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	if userID <= 0 || strings.TrimSpace(reason) == "" || window <= 0 {
		return false, fmt.Errorf("invalid flag marker payload")
	}

	set, err := r.client.SetNX(ctx, flagMarkerKey(userID, reason), 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("set flag marker: %w", err)
	}

	return set, nil
}

func flagMarkerKey(userID int64, reason string) string {
	return "flagmark:user:" + strconv.FormatInt(userID, 10) + ":" + strings.TrimSpace(reason)
}
