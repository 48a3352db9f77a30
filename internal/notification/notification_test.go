package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerNotifierWritesMessage(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLoggerNotifier(zap.New(core))

	err := n.Send(context.Background(), Message{Kind: KindTransferReceived, Destination: "2002", Body: "received 40.00"})
	require.NoError(t, err)

	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, KindTransferReceived, fields["kind"])
	assert.Equal(t, "2002", fields["destination"])
}

func TestNilLoggerNotifierIsSilent(t *testing.T) {
	var n *LoggerNotifier
	assert.NoError(t, n.Send(context.Background(), Message{Kind: KindTransferReceived}))
}
