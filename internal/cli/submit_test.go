package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"serve", "submit", "reprocess", "stats"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		require.Equal(t, name, cmd.Name())
	}
}

func TestSubmitRejectsMalformedRequest(t *testing.T) {
	cmd := NewSubmitCommand()
	cmd.SetIn(bytes.NewBufferString("{not json"))
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	err := cmd.Execute()
	require.ErrorContains(t, err, "decode order request")
}
