package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskmantle/courtmind/api/schemas"
	"github.com/duskmantle/courtmind/internal/engine"
)

func TestNewRootCommandStructure(t *testing.T) {
	root := NewRootCommand()

	assert.Equal(t, "courtmind", root.Use)
	assert.Equal(t, Version, root.Version)
	require.NotNil(t, root.PersistentFlags().Lookup("config"))

	play, _, err := root.Find([]string{"play"})
	require.NoError(t, err)
	assert.Equal(t, "play", play.Use)
	assert.NotNil(t, play.Flags().Lookup("seed"))
	assert.NotNil(t, play.Flags().Lookup("resume"))
	assert.NotNil(t, play.Flags().Lookup("snapshot"))

	version, _, err := root.Find([]string{"version"})
	require.NoError(t, err)
	assert.Equal(t, "version", version.Use)
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	var buf bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetOut(&buf)
	cmd.Run(cmd, nil)

	assert.Contains(t, buf.String(), "courtmind version "+Version)
}

func TestPrintTurn(t *testing.T) {
	var buf bytes.Buffer
	printTurn(&buf, engine.TurnResult{
		Turn: schemas.Turn{
			Text: "The Seneschal studies you for a long moment.",
			Script: []schemas.DialogueLine{
				{Speaker: "Corvin", Line: "Bold, for an envoy."},
			},
		},
		Choices: []string{"Hold his gaze", "Look away"},
	})

	out := buf.String()
	assert.Contains(t, out, "The Seneschal studies you")
	assert.Contains(t, out, "Corvin: Bold, for an envoy.")
	assert.Contains(t, out, "[1] Hold his gaze")
	assert.Contains(t, out, "[2] Look away")
}
