package core

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/devblok/vkframe/gfx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetAfter removes variables a .env file put into the process environment.
func unsetAfter(t *testing.T, keys ...string) {
	for _, k := range keys {
		k := k
		t.Cleanup(func() { os.Unsetenv(k) })
	}
}

func TestDefaultConfigurationIsValid(t *testing.T) {
	cfg := DefaultConfiguration()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Second, cfg.Renderer.Frame.FenceTimeout)
	assert.Equal(t, uint32(4096), cfg.Renderer.Frame.Descriptors.MaxSets)
	assert.Equal(t, 1.5, cfg.Renderer.Frame.Descriptors.GrowthFactor)
}

func TestLoadConfigurationFromEnvironment(t *testing.T) {
	t.Setenv(EnvFramesPerSecond, "144")
	t.Setenv(EnvFenceTimeout, "250ms")
	t.Setenv(EnvDescriptorGrowth, "2")
	t.Setenv(EnvDebug, "true")
	t.Setenv(EnvShaderArchive, "shaders.kar")
	t.Setenv(EnvShaderEmbedded, "true")

	cfg, err := LoadConfiguration()
	require.NoError(t, err)
	assert.Equal(t, 144, cfg.Time.FramesPerSecond)
	assert.Equal(t, 250*time.Millisecond, cfg.Renderer.Frame.FenceTimeout)
	assert.Equal(t, 2.0, cfg.Renderer.Frame.Descriptors.GrowthFactor)
	assert.True(t, cfg.Instance.Debug)
	assert.Equal(t, "shaders.kar", cfg.Renderer.ShaderArchive)
	assert.True(t, cfg.Renderer.ShaderEmbedded)
	assert.Equal(t, uint32(1280), cfg.Renderer.ScreenWidth, "unset keeps default")
}

func TestLoadConfigurationFromFile(t *testing.T) {
	unsetAfter(t, EnvWidth, EnvPresentMode, EnvLogLevel)
	t.Setenv(EnvHeight, "900")

	cfg, err := LoadConfiguration("testdata/test.env", "testdata/missing.env")
	require.NoError(t, err)
	assert.Equal(t, uint32(800), cfg.Renderer.ScreenWidth)
	assert.Equal(t, uint32(900), cfg.Renderer.ScreenHeight, "environment wins over the file")
	assert.Equal(t, gfx.PresentModeFifo, cfg.Renderer.Frame.PresentMode)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigurationInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{EnvFramesPerSecond, "fast"},
		{EnvWidth, "-1"},
		{EnvFenceTimeout, "1 parsec"},
		{EnvPresentMode, "vsync"},
		{EnvDebug, "maybe"},
		{EnvDescriptorGrowth, "0.5"},
		{EnvLogFormat, "xml"},
		{EnvEventPollDelay, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadConfiguration()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(LogConfiguration{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, log.Level)

	var out bytes.Buffer
	log.Out = &out
	log.WithField("component", "test").Warn("hello")
	assert.Contains(t, out.String(), `"component":"test"`)

	_, err = NewLogger(LogConfiguration{Level: "loud"})
	assert.Error(t, err)
	_, err = NewLogger(LogConfiguration{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
