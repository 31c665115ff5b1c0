package budget

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/tokgov/internal/domain"
	domgov "github.com/kailas-cloud/tokgov/internal/domain/governor"
)

// Hash/JSON field names of the persisted record.
const (
	fieldTokensUsed = "tokens_used"
	fieldLastReset  = "last_reset"
)

// record is the stored shape: {"tokens_used": N, "last_reset": "YYYY-MM-DD"}.
type record struct {
	TokensUsed int64  `json:"tokens_used"`
	LastReset  string `json:"last_reset"`
}

func toRecord(s domgov.State) record {
	return record{TokensUsed: s.TokensUsed, LastReset: string(s.LastReset)}
}

func (r record) state() (domgov.State, error) {
	if r.TokensUsed < 0 {
		return domgov.State{}, fmt.Errorf("%w: negative %s %d", domain.ErrCorruptState, fieldTokensUsed, r.TokensUsed)
	}
	day, err := domgov.ParseDay(r.LastReset)
	if err != nil {
		return domgov.State{}, fmt.Errorf("%w: %s %q: %w", domain.ErrCorruptState, fieldLastReset, r.LastReset, err)
	}
	return domgov.State{TokensUsed: r.TokensUsed, LastReset: day}, nil
}

func decodeJSON(data []byte) (domgov.State, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return domgov.State{}, fmt.Errorf("%w: %w", domain.ErrCorruptState, err)
	}
	return r.state()
}

func encodeJSON(s domgov.State) ([]byte, error) {
	data, err := json.Marshal(toRecord(s))
	if err != nil {
		return nil, fmt.Errorf("marshal governor state: %w", err)
	}
	return data, nil
}

// decodeFields parses the hash form where every value is a string.
func decodeFields(used, lastReset string) (domgov.State, error) {
	n, err := strconv.ParseInt(used, 10, 64)
	if err != nil {
		return domgov.State{}, fmt.Errorf("%w: %s %q: %w", domain.ErrCorruptState, fieldTokensUsed, used, err)
	}
	return record{TokensUsed: n, LastReset: lastReset}.state()
}
