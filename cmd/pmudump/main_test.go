package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/taoyao-code/pmu-gateway/internal/protocol/c37118"
	"github.com/taoyao-code/pmu-gateway/internal/testutil"
)

func TestRun_File(t *testing.T) {
	cfg := testutil.SampleConfig(testutil.SampleIDCode)
	dir := t.TempDir()

	raw := filepath.Join(dir, "cfg2.bin")
	require.NoError(t, os.WriteFile(raw, testutil.MustEncodeConfig(cfg), 0o644))
	blob, err := c37118.MarshalConfig(cfg)
	require.NoError(t, err)
	env := filepath.Join(dir, "cfg2.pmuc")
	require.NoError(t, os.WriteFile(env, blob, 0o644))

	for _, path := range []string{raw, env} {
		var out bytes.Buffer
		require.NoError(t, run(options{file: path, crc: true}, &out))

		var doc map[string]any
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &doc))
		conf := doc["config"].(map[string]any)
		assert.Equal(t, "CONFIG2", conf["type"])
		assert.Equal(t, 34, conf["data_frame_size"])
		assert.Nil(t, doc["samples"])
	}
}

func TestRun_Errors(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run(options{}, &out))

	bad := filepath.Join(t.TempDir(), "bad.bin")
	frame := testutil.MustEncodeConfig(testutil.SampleConfig(1))
	frame[len(frame)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(bad, frame, 0o644))
	err := run(options{file: bad, crc: true}, &out)
	assert.ErrorIs(t, err, c37118.ErrChecksumMismatch)
	assert.NoError(t, run(options{file: bad, crc: false}, &out))
}

func TestRun_Device(t *testing.T) {
	pmu := testutil.NewFakePMU(t, testutil.SampleConfig(testutil.SampleIDCode), 5*time.Millisecond)

	var out bytes.Buffer
	err := run(options{
		network: "tcp",
		addr:    pmu.Addr(),
		idcode:  uint(testutil.SampleIDCode),
		version: 2,
		crc:     true,
		samples: 3,
		timeout: 5 * time.Second,
	}, &out)
	require.NoError(t, err)

	var d struct {
		Config struct {
			IDCode uint16 `yaml:"idcode"`
		} `yaml:"config"`
		Samples []struct {
			Timestamp string `yaml:"timestamp"`
			PMUs      []struct {
				Freq float64 `yaml:"freq"`
			} `yaml:"pmus"`
		} `yaml:"samples"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &d))
	assert.Equal(t, testutil.SampleIDCode, d.Config.IDCode)
	require.Len(t, d.Samples, 3)
	assert.NotEmpty(t, d.Samples[0].Timestamp)
	require.Len(t, d.Samples[0].PMUs, 1)
}
