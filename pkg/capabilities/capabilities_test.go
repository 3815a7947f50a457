package capabilities

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSatisfies(t *testing.T) {
	t.Parallel()

	stereotype := Capabilities{
		"browserName":    "cheese",
		"browserVersion": "1.0",
		"platformName":   "linux",
	}

	tests := []struct {
		name string
		want Capabilities
		ok   bool
	}{
		{"exact subset matches", Capabilities{"browserName": "cheese"}, true},
		{"mismatched value rejected", Capabilities{"browserName": "wine"}, false},
		{"null requested value ignored", Capabilities{"browserName": "cheese", "proxy": nil}, true},
		{"unknown key rejected", Capabilities{"browserName": "cheese", "extension": true}, false},
		{"empty request matches anything", Capabilities{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.ok, stereotype.Satisfies(tt.want))
		})
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	a := Capabilities{"browserName": "cheese", "count": 1}
	b := Capabilities{"count": float64(1), "browserName": "cheese"}
	assert.True(t, a.Equal(b))

	c := Capabilities{"browserName": "wine"}
	assert.False(t, a.Equal(c))
}

func TestMerge(t *testing.T) {
	t.Parallel()

	base := Capabilities{"browserName": "cheese", "platformName": "linux"}
	overlay := Capabilities{"browserName": "wine", "acceptInsecureCerts": true}

	merged, err := base.Merge(overlay)
	require.NoError(t, err)

	want := Capabilities{
		"browserName":         "wine",
		"platformName":        "linux",
		"acceptInsecureCerts": true,
	}
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Errorf("merged capabilities mismatch (-want +got):\n%s", diff)
	}

	// base is untouched.
	assert.Equal(t, "cheese", base["browserName"])
}

func TestMarshalJSONIsDeterministic(t *testing.T) {
	t.Parallel()

	c := Capabilities{"b": 1, "a": 2, "c": 3}
	out1, err := c.MarshalJSON()
	require.NoError(t, err)
	out2, err := c.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, string(out1))
}
