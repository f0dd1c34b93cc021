package auditredis

import "github.com/go-redis/redis/v8"

// recordScript appends one decision to a sorted set of exported events.
// KEYS[1]: The sorted set for one decision (e.g., "call_audit:downstream_api:accepted")
// ARGV[1]: Event timestamp in Unix milliseconds, used as score
// ARGV[2]: Member, "<unix nanos>:<seq>"
// ARGV[3]: Maximum number of members kept, 0 for no cap
// ARGV[4]: Expiry of the set in milliseconds, 0 for none
// Returns the number of members in the set after the insert.
var recordScript = redis.NewScript(`
	local key = KEYS[1]
	local score = tonumber(ARGV[1])
	local member = ARGV[2]
	local capacity = tonumber(ARGV[3])
	local ttl_ms = tonumber(ARGV[4])

	redis.call('ZADD', key, score, member)

	if capacity > 0 then
		redis.call('ZREMRANGEBYRANK', key, 0, -(capacity + 1))
	end

	if ttl_ms > 0 then
		redis.call('PEXPIRE', key, ttl_ms)
	end

	return redis.call('ZCARD', key)
`)
