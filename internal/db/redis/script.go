package redis

import (
	"context"

	"github.com/kailas-cloud/tokgov/internal/db"
)

// Eval runs a Lua script with EVAL and returns its array reply as strings.
func (s *Store) Eval(ctx context.Context, script string, keys, args []string) ([]string, error) {
	cmd := s.b().Eval().Script(script).Numkeys(int64(len(keys))).Key(keys...).Arg(args...).Build()
	out, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpEval, Err: err}
	}
	return out, nil
}
