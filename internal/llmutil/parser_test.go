package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Action string `json:"action"`
	Delta  int    `json:"delta"`
}

func TestParseJSONResponse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
	}{
		{"raw json", `{"action":"bows","delta":2}`},
		{"fenced json", "```json\n{\"action\":\"bows\",\"delta\":2}\n```"},
		{"fenced without tag", "```\n{\"action\":\"bows\",\"delta\":2}\n```"},
		{"conversational wrapping", "Here is my decision:\n{\"action\":\"bows\",\"delta\":2}\nLet me know."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseJSONResponse[sample](tc.input)
			require.NoError(t, err)
			assert.Equal(t, "bows", got.Action)
			assert.Equal(t, 2, got.Delta)
		})
	}

	t.Run("no json at all", func(t *testing.T) {
		t.Parallel()
		_, err := ParseJSONResponse[sample]("I refuse to answer in the requested format.")
		require.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()
		_, err := ParseJSONResponse[sample](`{"action": "bows", "delta": }`)
		require.Error(t, err)
	})
}
