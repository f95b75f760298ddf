package log_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/valtask/internal/log"
)

func TestCtxWithValues(t *testing.T) {
	tests := map[string]struct {
		initial log.Kv
		added   log.Kv
		exp     log.Kv
	}{
		"Values on an empty context should be stored.": {
			added: log.Kv{"workspace": 1},
			exp:   log.Kv{"workspace": 1},
		},
		"Values should be merged with the existing ones, overriding duplicates.": {
			initial: log.Kv{"workspace": 1, "type": "variables"},
			added:   log.Kv{"type": "testTakers", "run": "abc"},
			exp:     log.Kv{"workspace": 1, "type": "testTakers", "run": "abc"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if test.initial != nil {
				ctx = log.CtxWithValues(ctx, test.initial)
			}
			ctx = log.CtxWithValues(ctx, test.added)

			assert.Equal(t, test.exp, log.ValuesFromCtx(ctx))
		})
	}
}

func TestNoopSetValuesOnCtx(t *testing.T) {
	ctx := context.Background()
	got := log.Noop.SetValuesOnCtx(ctx, log.Kv{"a": 1})
	assert.Nil(t, log.ValuesFromCtx(got))
}
