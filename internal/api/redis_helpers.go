package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// authRedis 是认证流程用到的 redis 命令子集，由 redis.UniversalClient 实现。
type authRedis interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// 登录限流按小时分桶，键自带时间片。
func loginRateKey(ip, email string, now time.Time) string {
	return "cv:rate:login:" + ip + ":" + email + ":" + now.UTC().Format("2006010215")
}

func loginLockKey(email string) string { return "cv:lock:login:" + email }

func loginFailKey(email string) string { return "cv:lock:login:fail:" + email }

func refreshBlacklistKey(jti string) string { return "cv:auth:refresh:blacklist:" + jti }

// incrWithTTL 自增计数，首次写入时设置过期。
func incrWithTTL(ctx context.Context, client authRedis, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// loginLocked 报告邮箱是否处于锁定期。redis 不可用时按未锁定处理。
func loginLocked(ctx context.Context, client authRedis, email string) bool {
	ttl, err := client.TTL(ctx, loginLockKey(email)).Result()
	return err == nil && ttl > 0
}

// recordLoginFailure 累计失败次数，达到阈值后写入锁定键。
func recordLoginFailure(ctx context.Context, client authRedis, email string, threshold int, lockTTL time.Duration) error {
	count, err := incrWithTTL(ctx, client, loginFailKey(email), lockTTL)
	if err != nil {
		return err
	}
	if threshold > 0 && count >= int64(threshold) {
		return client.Set(ctx, loginLockKey(email), "1", lockTTL).Err()
	}
	return nil
}

func clearLoginFailures(ctx context.Context, client authRedis, email string) {
	_ = client.Del(ctx, loginFailKey(email)).Err()
}
