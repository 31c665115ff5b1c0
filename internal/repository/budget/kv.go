package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/tokgov/internal/db"
	"github.com/kailas-cloud/tokgov/internal/domain"
	domgov "github.com/kailas-cloud/tokgov/internal/domain/governor"
)

// kvStore is the consumer interface for budget operations (ISP).
type kvStore interface {
	db.Pinger
	db.HashStore
	db.ScriptRunner
}

// maxKVTokens is the largest tokens_used the script keeps exact.
// Lua numbers are doubles, so integers stay exact only up to 2^53-1.
const maxKVTokens = 1<<53 - 1

// overflowReply prefixes the script's error when an increment would pass ARGV[3].
const overflowReply = "TOKGOV_OVERFLOW"

// recordScript rolls the hash to ARGV[1] when its day is older (or missing),
// adds ARGV[2] unless the sum passes ARGV[3], and returns {tokens_used, last_reset}.
const recordScript = `
local last = redis.call('HGET', KEYS[1], 'last_reset')
local used = tonumber(redis.call('HGET', KEYS[1], 'tokens_used')) or 0
if (not last) or last < ARGV[1] then
  last = ARGV[1]
  used = 0
end
local delta = tonumber(ARGV[2])
if used > tonumber(ARGV[3]) - delta then
  return redis.error_reply('` + overflowReply + ` tokens_used would pass ' .. ARGV[3])
end
used = used + delta
local out = string.format('%d', used)
redis.call('HSET', KEYS[1], 'tokens_used', out, 'last_reset', last)
return {out, last}
`

// KVStore keeps governor state in a Valkey/Redis hash shared by every process.
type KVStore struct {
	store kvStore
	key   string
}

// NewKVStore creates a hash-backed store. The key is {prefix}governor:state.
func NewKVStore(s kvStore, prefix string) *KVStore {
	return &KVStore{
		store: s,
		key:   prefix + "governor:state",
	}
}

// Key returns the hash key.
func (s *KVStore) Key() string { return s.key }

// Ping checks the server.
func (s *KVStore) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("budget store: %w", err)
	}
	return nil
}

// Load reads the hash.
func (s *KVStore) Load(ctx context.Context) (domgov.State, error) {
	fields, err := s.store.HGetAll(ctx, s.key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domgov.State{}, fmt.Errorf("%w: %s", domain.ErrStateNotFound, s.key)
		}
		return domgov.State{}, fmt.Errorf("budget HGETALL %s: %w", s.key, err)
	}
	return decodeFields(fields[fieldTokensUsed], fields[fieldLastReset])
}

// Save overwrites the hash.
func (s *KVStore) Save(ctx context.Context, st domgov.State) error {
	err := s.store.HSet(ctx, s.key, map[string]string{
		fieldTokensUsed: strconv.FormatInt(st.TokensUsed, 10),
		fieldLastReset:  string(st.LastReset),
	})
	if err != nil {
		return fmt.Errorf("budget HSET %s: %w", s.key, err)
	}
	return nil
}

// Record applies rollover and increment in one script call.
// An increment that would carry tokens_used past maxKVTokens fails with
// domain.ErrInvalidAmount and leaves the hash untouched.
func (s *KVStore) Record(ctx context.Context, day domgov.Day, delta int64) (domgov.State, error) {
	if delta < 0 || delta > maxKVTokens {
		return domgov.State{}, fmt.Errorf("%w: delta %d outside [0, %d]", domain.ErrInvalidAmount, delta, maxKVTokens)
	}
	out, err := s.store.Eval(ctx, recordScript,
		[]string{s.key},
		[]string{string(day), strconv.FormatInt(delta, 10), strconv.FormatInt(maxKVTokens, 10)},
	)
	if err != nil {
		if strings.Contains(err.Error(), overflowReply) {
			return domgov.State{}, fmt.Errorf("%w: %w", domain.ErrInvalidAmount, err)
		}
		return domgov.State{}, fmt.Errorf("budget EVAL %s: %w", s.key, err)
	}
	if len(out) != 2 {
		return domgov.State{}, fmt.Errorf("%w: script returned %d values", domain.ErrCorruptState, len(out))
	}
	return decodeFields(out[0], out[1])
}
