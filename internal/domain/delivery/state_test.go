package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairState(t *testing.T) {
	assert.Equal(t, StateNotDue, PairState(false, false))
	assert.Equal(t, StateDueUnsent, PairState(true, false))
	assert.Equal(t, StateSent, PairState(true, true))
	assert.Equal(t, StateSent, PairState(false, true))
}
