package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elys-network/lpvalidator/internal/types"
)

func TestLogSink_SubmitNeverErrors(t *testing.T) {
	sink := NewLogSink()
	err := sink.Submit(context.Background(), "round-1", []types.RebalanceDecision{
		{Block: 100, Positions: []types.Position{{TickLower: -100, TickUpper: 100}}},
	})
	assert.NoError(t, err)
}

func TestLogSink_SatisfiesSinkInterface(t *testing.T) {
	var _ Sink = NewLogSink()
}
