package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreakpointSpecKind(t *testing.T) {
	assert.Equal(t, KindBreakpoint, BreakpointSpec{Line: 3}.Kind())
	assert.Equal(t, KindBreakpoint, BreakpointSpec{Line: 3, Condition: "x > 1"}.Kind())
	assert.Equal(t, KindLogpoint, BreakpointSpec{Line: 3, LogMessage: "x={x}"}.Kind())
}

func TestLogLevelValid(t *testing.T) {
	for _, l := range []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError} {
		assert.True(t, l.Valid(), l)
	}
	assert.False(t, LogLevel("").Valid())
	assert.False(t, LogLevel("fatal").Valid())
}
