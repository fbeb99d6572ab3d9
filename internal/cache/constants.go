package cache

import (
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// key names definition
// key names in lua script should follow these formats
const (
	SessionSlotsUsedKey = "session:%d:slots:used" // slots taken in a session, '%d' is session id
)

func MakeSessionSlotsUsedKey(sessionID uint) string {
	return fmt.Sprintf(SessionSlotsUsedKey, sessionID)
}

// script return codes
const (
	codeFull      = -1
	codeNotLoaded = -2
	codeUnderflow = -3
)

var errNotLoaded = errors.New("slot counter not loaded")

// lua scripts
var seedSlotsScript = redis.NewScript(`
-- ARGV: key1 value1 key2 value2 ...
-- existing keys are live counters and stay untouched
local seeded = 0
for i = 1, #ARGV, 2 do
    local key = ARGV[i]
    local value = tonumber(ARGV[i + 1])
    seeded = seeded + redis.call("SETNX", key, value)
end
return seeded
`)

var acquireSlotScript = redis.NewScript(`
	-- KEYS[1] = session:{session_id}:slots:used
	-- ARGV[1] = capacity

	local used = redis.call("GET", KEYS[1])
	if not used then
		return -2
	end

	if tonumber(used) >= tonumber(ARGV[1]) then
		return -1
	end

	return redis.call("INCR", KEYS[1])
`)

var releaseSlotScript = redis.NewScript(`
	-- KEYS[1] = session:{session_id}:slots:used

	local used = redis.call("GET", KEYS[1])
	if not used then
		return -2
	end

	if tonumber(used) <= 0 then
		redis.call("SET", KEYS[1], 0)
		return -3
	end

	return redis.call("DECR", KEYS[1])
`)
