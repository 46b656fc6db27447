package attendance

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats(t *testing.T) {
	tests := []struct {
		stats    Stats
		rounded  float64
		text     string
		standing Standing
	}{
		{Stats{Present: 0, Total: 0}, 0, "0.0", StandingAtRisk},
		{Stats{Present: 2, Total: 3}, 66.7, "66.7", StandingWarning},
		{Stats{Present: 1, Total: 2}, 50, "50.0", StandingWarning},
		{Stats{Present: 3, Total: 4}, 75, "75.0", StandingGood},
		{Stats{Present: 1, Total: 3}, 33.3, "33.3", StandingAtRisk},
		{Stats{Present: 2999, Total: 4000}, 75, "75.0", StandingGood},
		{Stats{Present: 999, Total: 2000}, 50, "50.0", StandingWarning},
		{Stats{Present: 1499, Total: 2000}, 75, "75.0", StandingGood},
	}

	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.rounded, tc.stats.Rounded())
			assert.Equal(t, tc.text, tc.stats.String())
			assert.Equal(t, tc.standing, tc.stats.Standing())
		})
	}
}

func TestStats_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(Stats{Present: 2, Total: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"present":2,"total":3,"percentage":66.7,"standing":"warning"}`, string(data))
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" faculty ")
	assert.True(t, ok)
	assert.Equal(t, RoleFaculty, r)

	_, ok = ParseRole("dean")
	assert.False(t, ok)
}

func TestDecodeDocument(t *testing.T) {
	doc, err := decodeDocument(nil)
	require.NoError(t, err)
	assert.NotNil(t, doc.Attendance)

	doc, err = decodeDocument([]byte(`{"Admin":{"root":"pw"}}`))
	require.NoError(t, err)
	assert.Equal(t, "pw", doc.Admin["root"])
	assert.NotNil(t, doc.StudentsPerSubject, "absent sections decode to empty maps")

	_, err = decodeDocument([]byte(`{"Subjects":{"f":[{"subject":"X","code":""}]}}`))
	var derr *DocumentError
	assert.ErrorAs(t, err, &derr)

	_, err = decodeDocument([]byte(`not json`))
	assert.ErrorAs(t, err, &derr)

	_, err = decodeDocument([]byte("  null\n"))
	assert.ErrorAs(t, err, &derr)
}
