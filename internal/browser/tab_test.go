package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHarvestScriptEmbedsFragmentAsLiteral(t *testing.T) {
	fragment := "<a href=\"/p\">it's & more</a>\n</script>"
	script, err := harvestScript(fragment)
	require.NoError(t, err)

	const marker = "box.innerHTML = "
	start := strings.Index(script, marker)
	require.GreaterOrEqual(t, start, 0)
	rest := script[start+len(marker):]
	end := strings.Index(rest, ";\n")
	require.Greater(t, end, 0)

	var decoded string
	require.NoError(t, json.Unmarshal([]byte(rest[:end]), &decoded))
	assert.Equal(t, fragment, decoded)
	assert.NotContains(t, script, "</script>", "markup must not end the script early")
	assert.Contains(t, script, "data-uw-original-href")
	assert.True(t, strings.HasSuffix(script, "})()"))
}

func TestPresent(t *testing.T) {
	ctx := context.Background()

	found, err := present(ctx, nil)
	assert.True(t, found)
	assert.NoError(t, err)

	found, err = present(ctx, fmt.Errorf("wait: %w", context.DeadlineExceeded))
	assert.False(t, found)
	assert.NoError(t, err, "a lookup timeout is absence")

	boom := errors.New("target closed")
	found, err = present(ctx, boom)
	assert.False(t, found)
	assert.ErrorIs(t, err, boom)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	found, err = present(cancelled, context.DeadlineExceeded)
	assert.False(t, found)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCloseIsSafeOnZeroValues(t *testing.T) {
	var b *Browser
	assert.NoError(t, b.Close())
	assert.NoError(t, (&Tab{}).Close())
}

func TestSelectUserAgent(t *testing.T) {
	assert.Equal(t, "custom/1.0", selectUserAgent("custom/1.0"))
	assert.Contains(t, selectUserAgent(" "), "Chrome")
}
