package envelope

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wasmind-run/fabric/internal/fabscope"
)

func TestNewStampsFreshCorrelationID(t *testing.T) {
	t.Parallel()

	e, err := New("t:logger", fabscope.Root, "", ActorReady{})
	require.NoError(t, err)
	require.NotEmpty(t, e.ID)
	require.Equal(t, MessageTypeOf[ActorReady](), e.MessageType)
}

func TestNewPropagatesCorrelationID(t *testing.T) {
	t.Parallel()

	e, err := New("t:logger", fabscope.Root, "corr-1", ActorReady{})
	require.NoError(t, err)
	require.Equal(t, "corr-1", e.ID)
}

func TestParseAsRoundTrip(t *testing.T) {
	t.Parallel()

	msg := AddMessage{Agent: "planner", Message: "hello"}

	e, err := New("t:assistant", fabscope.Root, "corr-2", msg)
	require.NoError(t, err)

	got, ok := ParseAs[AddMessage](e)
	require.True(t, ok)
	require.Equal(t, msg, got)
}

func TestParseAsRejectsTypeMismatch(t *testing.T) {
	t.Parallel()

	e, err := New("t:assistant", fabscope.Root, "corr-3", ActorReady{})
	require.NoError(t, err)

	_, ok := ParseAs[AddMessage](e)
	require.False(t, ok)
}

func TestReplayableSet(t *testing.T) {
	t.Parallel()

	require.True(t, Replayable[SystemPromptContribution]())
	require.True(t, Replayable[BaseUrlUpdate]())
	require.False(t, Replayable[ActorReady]())
	require.False(t, Replayable[Exit]())
}
