package status

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProgress struct {
	started int64
	totals  []int64
	added   int64
	stopped bool
}

func (p *recordingProgress) Start(total int64)    { p.started = total }
func (p *recordingProgress) SetTotal(total int64) { p.totals = append(p.totals, total) }
func (p *recordingProgress) Add(n int64)          { p.added += n }
func (p *recordingProgress) Stop()                { p.stopped = true }

func newTestManager(t *testing.T, p Progress) (*Manager, context.Context) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	return New(&logger, p), logger.WithContext(context.Background())
}

func TestManagerTracksFilesInOrder(t *testing.T) {
	m, ctx := newTestManager(t, nil)

	m.TrackFile(ctx, FileInfo{Block: "photos", Source: "/a", Destination: "/out/a", Status: StatusPlanned})
	m.TrackFile(ctx, FileInfo{Block: "photos", Source: "/b", Destination: "/out/b", Status: StatusExists})
	m.TrackFile(ctx, FileInfo{Block: "photos", Source: "/a", Destination: "/out/a", Status: StatusCopied, Size: 10})

	files := m.ListFiles()
	require.Len(t, files, 2)
	assert.Equal(t, "/a", files[0].Source)
	assert.Equal(t, StatusCopied, files[0].Status, "retracking replaces the outcome")
	assert.Equal(t, "/b", files[1].Source)

	files[0].Source = "mutated"
	assert.Equal(t, "/a", m.ListFiles()[0].Source, "ListFiles returns a copy")
}

func TestManagerSummary(t *testing.T) {
	m, ctx := newTestManager(t, nil)

	statuses := []FileStatus{StatusCopied, StatusCopied, StatusExists, StatusConflict, StatusFailed, StatusPlanned}
	for i, s := range statuses {
		info := FileInfo{Source: string(rune('a' + i)), Status: s}
		if s == StatusFailed {
			info.Error = errors.New("boom")
		}
		m.TrackFile(ctx, info)
	}
	m.StartOperation(ctx, 100)
	m.AddBytes(40)

	s := m.Summary()
	assert.Equal(t, Summary{Copied: 2, Exists: 1, Conflict: 1, Failed: 1, Planned: 1, Bytes: 40}, s)
	assert.Equal(t, 6, s.Total())
}

func TestManagerProgress(t *testing.T) {
	p := &recordingProgress{}
	m, ctx := newTestManager(t, p)

	m.StartOperation(ctx, 100)
	assert.Equal(t, int64(100), p.started)

	m.AddBytes(30)
	m.ShrinkTotal(50)
	copied, total := m.Progress()
	assert.Equal(t, int64(30), copied)
	assert.Equal(t, int64(50), total)

	m.ShrinkTotal(40)
	_, total = m.Progress()
	assert.Equal(t, int64(30), total, "total never drops below copied bytes")
	assert.Equal(t, []int64{50, 30}, p.totals)

	m.FinishOperation(ctx)
	assert.True(t, p.stopped)
	assert.Equal(t, int64(30), p.added)
}

func TestManagerConcurrentUse(t *testing.T) {
	m, ctx := newTestManager(t, nil)
	m.StartOperation(ctx, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.AddBytes(10)
			m.TrackFile(ctx, FileInfo{Source: string(rune(0x4e00 + i)), Status: StatusCopied})
		}(i)
	}
	wg.Wait()

	assert.Len(t, m.ListFiles(), 50)
	assert.Equal(t, int64(500), m.Summary().Bytes)
}

func TestFileStatusString(t *testing.T) {
	tests := []struct {
		status FileStatus
		want   string
	}{
		{StatusCopied, "copied"},
		{StatusExists, "exists"},
		{StatusConflict, "conflict"},
		{StatusFailed, "failed"},
		{StatusPlanned, "planned"},
		{StatusUnknown, "unknown"},
		{FileStatus(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestBarProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewBarProgress("copying", &buf)

	p.Start(0)
	assert.Nil(t, p.bar, "nothing to show for an empty run")

	p.Start(10)
	require.NotNil(t, p.bar)

	p.SetTotal(8)
	assert.Equal(t, 8, p.bar.Total)

	p.Add(3)
	assert.Equal(t, 3, p.bar.Current)

	p.Add(5)
	assert.Nil(t, p.bar, "the bar stops once complete")
	assert.NotPanics(t, p.Stop)
	assert.NotPanics(t, func() { p.Add(1) })
}
