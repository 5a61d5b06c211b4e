package redis

const (
	// usageRetentionSeconds keeps per-day usage indexes for 90 days
	usageRetentionSeconds = 7776000

	// putRecordScript atomically writes both ledger fields and the day's usage index
	putRecordScript = `
local ledger_key = KEYS[1]    -- playgate:ledger:{app}:{credential}
local usage_key = KEYS[2]     -- playgate:usage:daily:{date}:{app}

local seconds = ARGV[1]
local date = ARGV[2]
local player = ARGV[3]
local ttl = tonumber(ARGV[4])

-- Both fields are always written together
redis.call('HSET', ledger_key,
  'playtime_seconds', seconds,
  'playtime_date', date
)

-- Record the day's total for reporting
redis.call('HSET', usage_key, player, seconds)
redis.call('EXPIRE', usage_key, ttl)

return 'OK'
`
)
