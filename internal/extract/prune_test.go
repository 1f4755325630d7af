package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneFragment(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		want     string
	}{
		{
			name:     "removes up to next marker heading",
			fragment: `<h3>2025 structure</h3><p>old</p><ul><li>old paper</li></ul><h3>2026 structure</h3><p>new</p>`,
			want:     `<h3>2026 structure</h3><p>new</p>`,
		},
		{
			name:     "removes to the end without next marker",
			fragment: `<p>intro</p><h4>Enrolling in 2025</h4><p>old</p><p>older</p>`,
			want:     `<p>intro</p>`,
		},
		{
			name:     "marker nested in container",
			fragment: `<div id="programme-structure"><h3>2025</h3><p>old</p><h2>2026</h2><p>new</p></div>`,
			want:     `<div id="programme-structure"><h2>2026</h2><p>new</p></div>`,
		},
		{
			name:     "non heading next marker is removed",
			fragment: `<h3>2025</h3><p>see 2026 below</p><h3>2026</h3>`,
			want:     `<h3>2026</h3>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PruneFragment(tt.fragment, "2025", "2026")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPruneFragmentNoMarkerIsIdentity(t *testing.T) {
	fragments := []string{
		"<div>\n  <h3>2026</h3>\n  <p>Keep   spacing &amp; entities</p>\n</div>\n",
		`<p>2025 mentioned only in a paragraph</p>`,
		"",
	}
	for _, f := range fragments {
		got, err := PruneFragment(f, "2025", "2026")
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
}

func TestPruneFragmentThroughDropsNextHeading(t *testing.T) {
	got, err := PruneFragmentThrough(`<h3>2025 structure</h3><p>old</p><h3>2026 structure</h3><p>new</p>`, "2025", "2026")
	require.NoError(t, err)
	assert.Equal(t, `<p>new</p>`, got)

	same := `<h3>2026 structure</h3><p>new</p>`
	got, err = PruneFragmentThrough(same, "2025", "2026")
	require.NoError(t, err)
	assert.Equal(t, same, got)
}
