package fifocmd

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kg9x/x10d/x10"
)

func TestServerDeliversLinesWrittenToFIFO(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x10d.fifo")
	put := &capturingPutter{}
	proc := NewCommandProcessor(put, log.New(io.Discard))
	srv, err := NewServer(path, proc, log.New(io.Discard), "")
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer srv.Stop()

	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = w.WriteString("A1 ON\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.Eventually(t, func() bool {
		return len(put.batches) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, x10.FnOn, put.batches[0][1].(x10.FunctionEvent).Function)
}

func TestNewServerRejectsBadTimestampFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x10d.fifo")
	put := &capturingPutter{}
	proc := NewCommandProcessor(put, log.New(io.Discard))
	_, err := NewServer(path, proc, log.New(io.Discard), "%Q")
	require.Error(t, err)
}
