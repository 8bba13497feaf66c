package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// IssuedQuestionRepo remembers which security questions were already handed
// out for a match, so consecutive challenges rotate through the available
// pool instead of repeating the same question.
type IssuedQuestionRepo struct {
	client *goredis.Client
}

func NewIssuedQuestionRepo(client *goredis.Client) *IssuedQuestionRepo {
	return &IssuedQuestionRepo{client: client}
}

func (r *IssuedQuestionRepo) MarkIssued(ctx context.Context, matchID string, questionID int64, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(matchID) == "" || questionID <= 0 {
		return fmt.Errorf("invalid issued question payload")
	}

	key := issuedQuestionKey(matchID)
	if err := r.client.SAdd(ctx, key, questionID).Err(); err != nil {
		return fmt.Errorf("mark issued question: %w", err)
	}
	if ttl > 0 {
		if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("set issued question ttl: %w", err)
		}
	}

	return nil
}

func (r *IssuedQuestionRepo) IssuedIDs(ctx context.Context, matchID string) ([]int64, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(matchID) == "" {
		return nil, fmt.Errorf("match id is required")
	}

	members, err := r.client.SMembers(ctx, issuedQuestionKey(matchID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list issued questions: %w", err)
	}

	ids := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse issued question id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func issuedQuestionKey(matchID string) string {
	return "verify:issued:" + strings.TrimSpace(matchID)
}
