package paramutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
)

func TestGetRequiredString(t *testing.T) {
	args := map[string]interface{}{"cmd": "uptime", "count": 3}

	got, err := GetRequiredString(args, "cmd")
	require.NoError(t, err)
	assert.Equal(t, "uptime", got)

	_, err = GetRequiredString(args, "missing")
	var verr *droverrors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "missing required argument 'missing'")

	_, err = GetRequiredString(args, "count")
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "must be a string")
}

func TestGetOptionalString(t *testing.T) {
	args := map[string]interface{}{"chdir": "/tmp"}

	got, found, err := GetOptionalString(args, "chdir")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "/tmp", got)

	_, found, err = GetOptionalString(args, "creates")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetOptionalBool(t *testing.T) {
	args := map[string]interface{}{
		"native": true,
		"yes":    "yes",
		"off":    "no",
		"bad":    42,
	}

	for key, want := range map[string]bool{"native": true, "yes": true, "off": false} {
		got, err := GetOptionalBool(args, key, false)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}

	got, err := GetOptionalBool(args, "absent", true)
	require.NoError(t, err)
	assert.True(t, got)

	_, err = GetOptionalBool(args, "bad", false)
	var verr *droverrors.ValidationError
	require.ErrorAs(t, err, &verr)
}
