package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutputCarriesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("adkamai-test", false, &buf)

	l := Component("ledger")
	l.Info().Int64("account_id", 7).Msg("credited")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "adkamai-test", entry["service"])
	assert.Equal(t, "ledger", entry["component"])
	assert.Equal(t, "credited", entry["message"])
	assert.EqualValues(t, 7, entry["account_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestInfoLevelDropsDebug(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("adkamai-test", false, &buf)

	Debug().Msg("hidden")
	assert.Empty(t, buf.String())

	Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
