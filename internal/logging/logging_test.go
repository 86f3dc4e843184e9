package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWriter_JSONCarriesTaskFields(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, true, true)
	t.Cleanup(func() { Init(false) })

	assert.True(t, DebugEnabled())
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	l := Task("abc", 2)
	l.Debug().Str("status", "completed").Msg("prediction recorded")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "abc", rec["task_id"])
	assert.EqualValues(t, 2, rec["test_index"])
	assert.Equal(t, "completed", rec["status"])
	assert.Equal(t, "prediction recorded", rec["message"])
}

func TestInitWriter_InfoLevelDropsDebug(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, false, true)
	t.Cleanup(func() { Init(false) })

	log.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
	log.Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
