package cli_test

import (
	"io"
	"strings"
	"testing"

	"github.com/adrianliechti/wingman-pilot/pkg/cli"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineReader(t *testing.T) {
	var out strings.Builder

	r := cli.NewLineReader(strings.NewReader("  first query \n\nlast"), &out)

	line, err := r.ReadLine("Query:")
	require.NoError(t, err)
	assert.Equal(t, "first query", line)

	line, err = r.ReadLine("Query:")
	require.NoError(t, err)
	assert.Equal(t, "", line)

	line, err = r.ReadLine("Query:")
	require.NoError(t, err)
	assert.Equal(t, "last", line)

	_, err = r.ReadLine("Query:")
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, "Query: Query: Query: Query: ", out.String())
}
