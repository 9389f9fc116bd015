package repository

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alexlav17/SafeWatch-ReceiveData/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

func TestCSVLogger_StartLogStop(t *testing.T) {
	dir := t.TempDir()
	l := NewCSVLogger(dir, zap.NewNop())

	recording, _ := l.Recording()
	assert.False(t, recording)

	filename, err := l.Start()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filename, "data_esp32_"))

	recording, current := l.Recording()
	assert.True(t, recording)
	assert.Equal(t, filename, current)

	bpm := 72.0
	ecg := int64(2500)
	l.Log(&models.SensorPacket{
		Timestamp: time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
		ECG:       &ecg,
		BPM:       &bpm,
		X:         0.123, Y: -0.456, Z: 0.987,
	})

	require.NoError(t, l.Stop())
	recording, _ = l.Recording()
	assert.False(t, recording)

	data, err := os.ReadFile(filepath.Join(dir, filename))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "timestamp,ecg,bpm,accel_x,accel_y,accel_z", lines[0])
	assert.Contains(t, lines[1], "2500,72,0.123,-0.456,0.987")
}

func TestCSVLogger_StartIdempotent(t *testing.T) {
	l := NewCSVLogger(t.TempDir(), zap.NewNop())

	first, err := l.Start()
	require.NoError(t, err)
	second, err := l.Start()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, l.Stop())
	require.NoError(t, l.Stop()) // 重复 Stop 为空操作
}

func TestCSVLogger_LogWhileStopped(t *testing.T) {
	l := NewCSVLogger(t.TempDir(), zap.NewNop())
	// 未开始记录时 Log 不得崩溃
	l.Log(&models.SensorPacket{Timestamp: time.Now()})
}
