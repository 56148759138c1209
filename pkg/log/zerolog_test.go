package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gmmerrors "github.com/YuminosukeSato/gmmsgd/pkg/errors"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &rec))
	return rec
}

func TestZerologProviderLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProvider(&buf, LevelInfo)
	logger := p.GetLoggerWithName("mixture.sgd_gmm").With(ComponentsKey, 3)

	logger.Debug("epoch finished", EpochKey, 1)
	assert.Zero(t, buf.Len(), "debug record should be filtered at info level")

	logger.Info("restart finished", RestartKey, 2, LossKey, 1.5)
	rec := lastLine(t, &buf)
	assert.Equal(t, "mixture.sgd_gmm", rec[ComponentKey])
	assert.Equal(t, float64(3), rec[ComponentsKey])
	assert.Equal(t, float64(2), rec[RestartKey])
	assert.Equal(t, 1.5, rec[LossKey])

	assert.False(t, logger.Enabled(context.Background(), LevelDebug))
	p.SetLevel(LevelDebug)
	assert.True(t, p.GetLogger().Enabled(context.Background(), LevelDebug))
}

func TestZerologErrorAttachesError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologProvider(&buf, LevelDebug).GetLogger()

	logger.Error("restart failed", errors.New("boom"), RestartKey, 4)
	rec := lastLine(t, &buf)
	assert.Equal(t, "boom", rec[zerolog.ErrorFieldName])
	assert.Equal(t, float64(4), rec[RestartKey])
}

func TestSetupLoggerTo(t *testing.T) {
	prevLevel, prevMsg, prevErr := zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.ErrorFieldName
	providerMu.RLock()
	prevProvider := defaultProvider
	providerMu.RUnlock()
	t.Cleanup(func() {
		zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.ErrorFieldName = prevLevel, prevMsg, prevErr
		SetProvider(prevProvider)
	})

	var buf bytes.Buffer
	require.NoError(t, SetupLoggerTo(&buf, "warn"))

	GetLogger().Info("dropped")
	assert.Zero(t, buf.Len())

	GetLoggerWithName("cli").Warn("kept")
	rec := lastLine(t, &buf)
	assert.Equal(t, "warn", rec["severity"])
	assert.Equal(t, "kept", rec["message"])

	assert.Error(t, SetupLoggerTo(&buf, "verbose"))
}

func TestToLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ToLogLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, strings.ToUpper(tt.in), got.String())
		})
	}
}

func TestWarningsRouteToProvider(t *testing.T) {
	providerMu.RLock()
	prevProvider := defaultProvider
	providerMu.RUnlock()
	t.Cleanup(func() { SetProvider(prevProvider) })

	p := NewTestLoggerProvider(LevelDebug)
	SetProvider(p)

	gmmerrors.Warn(gmmerrors.NewConvergenceWarning("SGDGMM", 10, "epoch limit reached"))

	assert.True(t, p.Logger().ContainsMessage("failed to converge"))
	assert.True(t, p.Logger().ContainsField(ComponentKey, "warnings"))
}

func TestTestLoggerWith(t *testing.T) {
	logger := NewTestLogger(LevelInfo)
	child := logger.With(RestartKey, 1)

	child.Debug("hidden")
	child.Info("epoch finished", EpochKey, 5)
	child.Error("restart failed", errors.New("nan loss"))

	records := logger.Records()
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Fields[RestartKey])
	assert.Equal(t, 5, records[0].Fields[EpochKey])
	assert.Equal(t, "nan loss", records[1].Fields[ErrAttrKey])
	assert.Equal(t, 1, logger.Count("epoch finished"))

	logger.Clear()
	assert.Empty(t, logger.Records())
}
