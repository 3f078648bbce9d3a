package snapshot

import (
	"Go2Mgen/internal/flow"
	"Go2Mgen/internal/session"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopController struct{}

func (nopController) SendEvent(string) error { return nil }

type fakeSource struct {
	reg *flow.Registry
}

func (s *fakeSource) Name() string         { return "lab-1" }
func (s *fakeSource) State() session.State { return session.Ready }
func (s *fakeSource) Flows() []*flow.Flow  { return s.reg.Flows() }

func TestWriter_WriteSnapshot(t *testing.T) {
	reg := flow.NewRegistry(nopController{})
	for _, id := range []int{1, 2} {
		f := flow.New(id)
		require.NoError(t, f.SetProtocol(flow.UDP))
		require.NoError(t, f.SetDestination("10.0.0.2", 5000))
		require.NoError(t, f.SetPattern("periodic [1 1024]"))
		require.NoError(t, reg.Add(f))
	}
	f, _ := reg.Get(2)
	require.NoError(t, f.SetTextPayload("hi"))
	require.NoError(t, f.Start(0))

	tmpDir := t.TempDir()
	dir, err := NewWriter().Write(&fakeSource{reg: reg}, tmpDir, "2026-03-01_10-00-00")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "2026-03-01_10-00-00", "lab-1"), dir)

	summaryBytes, err := os.ReadFile(filepath.Join(dir, "summary.json"))
	require.NoError(t, err)
	var summary SummaryData
	require.NoError(t, json.Unmarshal(summaryBytes, &summary))
	assert.Equal(t, "lab-1", summary.Instance)
	assert.Equal(t, "ready", summary.State)
	assert.Equal(t, 2, summary.TotalFlows)
	assert.Equal(t, 1, summary.ActiveFlows)

	infos, err := ReadFlows(filepath.Join(dir, "flows.dat"))
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, 1, infos[0].ID)
	assert.False(t, infos[0].Active)
	assert.Equal(t, "10.0.0.2/5000", infos[1].Destination)
	assert.True(t, infos[1].Active)
	assert.Equal(t, f.Info().Payload, infos[1].Payload)
}

func TestWriter_EmptySessionWritesSummaryOnly(t *testing.T) {
	tmpDir := t.TempDir()
	dir, err := NewWriter().WriteSnapshot(&fakeSource{reg: flow.NewRegistry(nopController{})}, tmpDir)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "summary.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "flows.dat"))
	assert.True(t, os.IsNotExist(err))
}
