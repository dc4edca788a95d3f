package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"gotest.tools/assert"
)

func TestNewLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"trace", logrus.TraceLevel},
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"ERROR", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"verbose", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cfproxy.log")
			log, err := New(path, tt.in)
			assert.NilError(t, err)
			assert.Equal(t, log.GetLevel(), tt.want)
		})
	}
}

func TestNewAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfproxy.log")
	assert.NilError(t, os.WriteFile(path, []byte("previous run\n"), 0o600))

	log, err := New(path, "debug")
	assert.NilError(t, err)
	log.WithField("conn", "abc").Debug("handshake")

	b, err := os.ReadFile(path)
	assert.NilError(t, err)
	out := string(b)
	assert.Assert(t, strings.HasPrefix(out, "previous run\n"), out)
	assert.Assert(t, strings.Contains(out, "logging to file"), out)
	assert.Assert(t, strings.Contains(out, `msg=handshake conn=abc`), out)
}

func TestNewBadPath(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "cfproxy.log"), "info")
	assert.ErrorContains(t, err, "open log file")
}
