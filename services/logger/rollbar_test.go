package logsvc

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollcall/core"
)

func TestRollbarLogger_localOutput(t *testing.T) {
	var buf bytes.Buffer
	conf := &core.Config{Env: "TEST", Build: "abc"}
	logger := NewRollbarLogger(NewLocalLogger(&buf, "API", conf), conf)
	logger.Enable(false)

	logger.Error(
		"saving attendance",
		errors.New("disk full"),
		map[string]interface{}{"class_name": "X"},
		core.Identity{Username: "teacher1", Roles: []string{"teacher:"}},
	)
	logger.Debug("not at info level")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "saving attendance", entry["message"])
	assert.Equal(t, "disk full", entry["error"])
	assert.Equal(t, "X", entry["class_name"])
	assert.Equal(t, "teacher1", entry["user"])
	assert.Equal(t, "API", entry["component"])
	assert.Equal(t, "abc", entry["build"])
}

func TestRollbarLogger_prepare(t *testing.T) {
	l := RollbarLogger{}
	err := errors.New("boom")
	args := l.prepare("msg", []interface{}{err, core.Identity{Username: "a"}, core.Identity{Username: "b"}})
	assert.Equal(t, []interface{}{"msg", err}, args, "identities are not forwarded as extras")
}
