package redisstore

import "github.com/redis/go-redis/v9"

// Account hashes store times as unix milliseconds (0 = unset) and OTP digests
// as lowercase hex. Every script returns {err='not_found'} when the account
// hash is missing.

// createLua inserts the account hash and its index keys in one step.
// KEYS[1] = account key, KEYS[2] = email index, KEYS[3] = username index,
// KEYS[4] = phone index ("" when the account has no phone)
// ARGV    = flattened field/value pairs
var createLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return {err='dup:email'}
end
if redis.call('EXISTS', KEYS[3]) == 1 then
  return {err='dup:userName'}
end
if KEYS[4] ~= '' and redis.call('EXISTS', KEYS[4]) == 1 then
  return {err='dup:phoneNumber'}
end
if redis.call('EXISTS', KEYS[1]) == 1 then
  return {err='dup:id'}
end
redis.call('HSET', KEYS[1], unpack(ARGV))
local id = redis.call('HGET', KEYS[1], 'id')
redis.call('SET', KEYS[2], id)
redis.call('SET', KEYS[3], id)
if KEYS[4] ~= '' then
  redis.call('SET', KEYS[4], id)
end
return 'ok'
`)

// updateLua sets fields on an existing account.
// KEYS[1] = account key
// ARGV    = flattened field/value pairs
var updateLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 'ok'
`)

// issueResetLua stores a reset code unless the resend block is active.
// KEYS[1] = account key
// ARGV[1] = digest, ARGV[2] = expiresAt, ARGV[3] = blockUntil, ARGV[4] = now
var issueResetLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
local block = tonumber(redis.call('HGET', KEYS[1], 'rst_block') or '0') or 0
if block > tonumber(ARGV[4]) then
  return {err='blocked:' .. tostring(block)}
end
redis.call('HSET', KEYS[1], 'rst_h', ARGV[1], 'rst_exp', ARGV[2], 'rst_block', ARGV[3], 'updated', ARGV[4])
return 'ok'
`)

// issueLoginLua stores the MFA code and zeroes the login counter unless the
// login counter is locked.
// KEYS[1] = account key
// ARGV[1] = digest, ARGV[2] = expiresAt, ARGV[3] = now
var issueLoginLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
local lockedUntil = tonumber(redis.call('HGET', KEYS[1], 'lf_until') or '0') or 0
if lockedUntil > tonumber(ARGV[3]) then
  return {err='locked:' .. tostring(lockedUntil)}
end
redis.call('HSET', KEYS[1], 'mfa_h', ARGV[1], 'mfa_exp', ARGV[2], 'lf_n', 0, 'lf_until', 0, 'updated', ARGV[3])
return 'ok'
`)

// completeLua applies a terminal transition if the OTP slot still holds the
// expected digest and has not expired. A guarding counter that is locked at
// now refuses the transition before the digest is compared.
// KEYS[1] = account key
// ARGV[1] = digest field, ARGV[2] = expiry field, ARGV[3] = expected digest,
// ARGV[4] = now, ARGV[5] = "1" to require an unverified account,
// ARGV[6] = blocked-until field of the guarding counter ("" for none),
// ARGV[7..] = flattened field/value pairs written on success
var completeLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
if ARGV[5] == '1' and redis.call('HGET', KEYS[1], 'state') == '1' then
  return {err='verified'}
end
if ARGV[6] ~= '' then
  local lockedUntil = tonumber(redis.call('HGET', KEYS[1], ARGV[6]) or '0') or 0
  if lockedUntil > tonumber(ARGV[4]) then
    return {err='locked:' .. tostring(lockedUntil)}
  end
end
local stored = redis.call('HGET', KEYS[1], ARGV[1]) or ''
local exp = tonumber(redis.call('HGET', KEYS[1], ARGV[2]) or '0') or 0
if stored == '' or stored ~= ARGV[3] or exp <= tonumber(ARGV[4]) then
  return {err='stale'}
end
local writes = {}
for i = 7, #ARGV do
  writes[#writes + 1] = ARGV[i]
end
redis.call('HSET', KEYS[1], unpack(writes))
return 'ok'
`)

// recordFailureLua mirrors account.Counter.Fail.
// KEYS[1] = account key
// ARGV[1] = count field, ARGV[2] = blocked-until field,
// ARGV[3] = threshold, ARGV[4] = lock duration ms, ARGV[5] = now ms
// Returns {count, blockedUntil}.
var recordFailureLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
local now = tonumber(ARGV[5])
local count = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0') or 0
local untilMs = tonumber(redis.call('HGET', KEYS[1], ARGV[2]) or '0') or 0
if untilMs > now then
  return {count, untilMs}
end
if untilMs > 0 then
  count = 0
  untilMs = 0
end
count = count + 1
local threshold = tonumber(ARGV[3])
if threshold > 0 and count >= threshold then
  untilMs = now + tonumber(ARGV[4])
end
redis.call('HSET', KEYS[1], ARGV[1], count, ARGV[2], untilMs, 'updated', now)
return {count, untilMs}
`)

// updateProfileLua writes display fields and, when the user name changes,
// moves the user name index entry.
// KEYS[1] = account key, KEYS[2] = new user name index ("" when unchanged)
// ARGV[1] = user name index prefix
// ARGV[2..] = flattened field/value pairs
var updateProfileLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
local id = redis.call('HGET', KEYS[1], 'id')
if KEYS[2] ~= '' then
  local owner = redis.call('GET', KEYS[2])
  if owner and owner ~= id then
    return {err='dup:userName'}
  end
  local old = redis.call('HGET', KEYS[1], 'user')
  if old and old ~= '' then
    redis.call('DEL', ARGV[1] .. old)
  end
  redis.call('SET', KEYS[2], id)
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
return 'ok'
`)

// deleteLua removes the account hash and every index key pointing at it.
// KEYS[1] = account key
// ARGV[1] = email index prefix, ARGV[2] = user name index prefix,
// ARGV[3] = phone index prefix
var deleteLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {err='not_found'}
end
local f = redis.call('HMGET', KEYS[1], 'email', 'user', 'phone')
for i = 1, 3 do
  if f[i] and f[i] ~= '' then
    redis.call('DEL', ARGV[i] .. f[i])
  end
end
redis.call('DEL', KEYS[1])
return 'ok'
`)
