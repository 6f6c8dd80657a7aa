package s3blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowton/ipbond/internal/domain"
	"github.com/knowton/ipbond/internal/store/memory"
)

type captureWriter struct {
	paths  []string
	bodies map[string][]byte
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{bodies: make(map[string][]byte)}
}

func (w *captureWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.paths = append(w.paths, path)
	w.bodies[path] = body
	return nil
}

func (w *captureWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "")
}

func TestArchiveAuditLog(t *testing.T) {
	ctx := context.Background()
	audit := memory.NewAuditStore()
	cutoff := time.Now().Add(time.Hour)

	require.NoError(t, audit.Log(ctx, "bond.issue", map[string]any{"bond_id": "b1"}))
	require.NoError(t, audit.Log(ctx, "bond.invest", map[string]any{"bond_id": "b1"}))

	w := newCaptureWriter()
	arch := NewArchiver(w, memory.NewLedger(), audit)

	count, err := arch.ArchiveAuditLog(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.Len(t, w.paths, 1)
	assert.Equal(t, "archive/audit/"+cutoff.Format("2006-01")+".jsonl", w.paths[0])

	lines := bytes.Split(bytes.TrimSpace(w.bodies[w.paths[0]]), []byte("\n"))
	assert.Len(t, lines, 2)
	assert.True(t, strings.Contains(string(lines[0]), "bond.issue"))
}

func TestArchiveDistributionsEmpty(t *testing.T) {
	w := newCaptureWriter()
	arch := NewArchiver(w, memory.NewLedger(), memory.NewAuditStore())

	count, err := arch.ArchiveDistributions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, w.paths, "no upload when there is nothing to archive")
}

var _ domain.BlobWriter = (*captureWriter)(nil)
