package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoldenScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			require.Equal(t, name, scenario.Name, "scenario name must match its file")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestMarshalTrace(t *testing.T) {
	ok := true
	data, err := MarshalTrace("tiny", []StepTrace{
		{Step: 0, Cells: map[string]string{"(0)": "9"}},
		{Step: 1, Bound: 1, Changed: true, Cells: map[string]string{"(1)": "3", "(0)": "3"}, AllCompliant: &ok},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario":"tiny","steps":[{"bound":0,"cells":{"(0)":9},"changed":false,"step":0},`+
			`{"all_compliant":true,"bound":1,"cells":{"(0)":3,"(1)":3},"changed":true,"step":1}]}`,
		string(data))

	_, err = MarshalTrace("bad", []StepTrace{{Cells: map[string]string{"(0)": "x"}}})
	assert.Error(t, err)
}

func TestTraceDigestIsStable(t *testing.T) {
	trace := []StepTrace{{Step: 0, Cells: map[string]string{"(0,0)": "100"}}}
	a, err := TraceDigest("d", trace)
	require.NoError(t, err)
	b, err := TraceDigest("d", trace)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := TraceDigest("e", trace)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
