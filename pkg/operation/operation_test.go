package operation

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/ingest/pkg/config"
	"github.com/walteh/ingest/pkg/match"
	"github.com/walteh/ingest/pkg/state"
	"github.com/walteh/ingest/pkg/status"
)

const (
	photoSource      = `photos/(?P<y>\d{4})/.*\.jpg`
	photoDestination = `out/{{ match.y }}/{{ ext }}`
)

// testContext chdirs into a fresh workspace and returns a logging context
func testContext(t *testing.T) context.Context {
	t.Helper()
	t.Chdir(t.TempDir())
	logger := zerolog.New(zerolog.NewTestWriter(t))
	return logger.WithContext(context.Background())
}

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	if !mtime.IsZero() {
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
}

func newConfig(t *testing.T, blocks ...config.Block) *config.Config {
	t.Helper()
	cfg := &config.Config{Ingest: blocks}
	require.NoError(t, cfg.Validate())
	return cfg
}

func openStore(t *testing.T, ctx context.Context) *state.Store {
	t.Helper()
	store, err := state.Open(ctx, "ingest.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newOperator(t *testing.T, opts Options) *Operator {
	t.Helper()
	op, err := New(opts)
	require.NoError(t, err)
	return op
}

func statusOf(t *testing.T, op *Operator) map[string]status.FileStatus {
	t.Helper()
	out := map[string]status.FileStatus{}
	for _, f := range op.Status().ListFiles() {
		out[filepath.Base(filepath.Dir(f.Source))+"/"+filepath.Base(f.Source)] = f.Status
	}
	return out
}

func TestRunCopiesOnceAcrossRuns(t *testing.T) {
	ctx := testContext(t)
	mtime := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	writeFile(t, "photos/2023/img.jpg", "jpeg bytes", mtime)
	writeFile(t, "photos/2023/notes.txt", "skip me", time.Time{})

	cfg := newConfig(t, config.Block{Name: "photos", Source: photoSource, Destination: photoDestination})
	store := openStore(t, ctx)

	summary, err := newOperator(t, Options{Config: cfg, Store: store}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Copied)
	assert.Equal(t, int64(len("jpeg bytes")), summary.Bytes)

	got, err := os.ReadFile("out/2023/.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(got))

	info, err := os.Stat("out/2023/.jpg")
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime), "modification time is carried over")

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	records, err := store.List(ctx, "photos")
	require.NoError(t, err)
	require.Len(t, records, 1)
	abs, err := filepath.Abs("out/2023/.jpg")
	require.NoError(t, err)
	assert.Equal(t, abs, records[0].Destination)
	assert.Len(t, records[0].ContentHash, 20)

	// remove the copy; the record alone keeps the file from being ingested again
	require.NoError(t, os.Remove("out/2023/.jpg"))

	summary, err = newOperator(t, Options{Config: cfg, Store: store}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total())
	assert.NoFileExists(t, "out/2023/.jpg")

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunChangedSourceIsNewOrigin(t *testing.T) {
	ctx := testContext(t)
	writeFile(t, "photos/2023/img.jpg", "v1", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))

	cfg := newConfig(t, config.Block{Name: "photos", Source: photoSource, Destination: "out/{{ stat.mtime_unix }}{{ ext }}"})
	store := openStore(t, ctx)

	_, err := newOperator(t, Options{Config: cfg, Store: store}).Run(ctx)
	require.NoError(t, err)

	writeFile(t, "photos/2023/img.jpg", "v2", time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC))

	summary, err := newOperator(t, Options{Config: cfg, Store: store}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Copied)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunExistingDestination(t *testing.T) {
	ctx := testContext(t)
	writeFile(t, "photos/2022/img.jpg", "same", time.Time{})
	writeFile(t, "photos/2023/img.jpg", "longer content", time.Time{})
	writeFile(t, "out/2022/.jpg", "SAME", time.Time{})
	writeFile(t, "out/2023/.jpg", "short", time.Time{})

	cfg := newConfig(t, config.Block{Name: "photos", Source: photoSource, Destination: photoDestination})
	store := openStore(t, ctx)

	op := newOperator(t, Options{Config: cfg, Store: store})
	summary, err := op.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, map[string]status.FileStatus{
		"2022/img.jpg": status.StatusExists,
		"2023/img.jpg": status.StatusConflict,
	}, statusOf(t, op))
	assert.Equal(t, 1, summary.Exists)
	assert.Equal(t, 1, summary.Conflict)

	got, err := os.ReadFile("out/2022/.jpg")
	require.NoError(t, err)
	assert.Equal(t, "SAME", string(got), "existing destination is left untouched")

	got, err = os.ReadFile("out/2023/.jpg")
	require.NoError(t, err)
	assert.Equal(t, "short", string(got), "conflicting destination is never overwritten")

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "skipped files are not recorded")

	copied, total := op.Status().Progress()
	assert.Equal(t, int64(0), copied)
	assert.Equal(t, int64(0), total, "skipped sizes leave the progress total")
}

func TestRunRenderErrorPolicy(t *testing.T) {
	tests := []struct {
		name        string
		policy      config.RenderErrorPolicy
		destination string
		wantStatus  status.FileStatus
		wantFile    string
		wantError   error
	}{
		{
			name:        "fail_marks_file_failed",
			policy:      config.PolicyFail,
			destination: "out/{{ exif.DateTime }}/{{ stat.name }}",
			wantStatus:  status.StatusFailed,
		},
		{
			name:        "drop_uses_partial_path",
			policy:      config.PolicyDrop,
			destination: "out/{{ exif.DateTime }}/{{ stat.name }}",
			wantStatus:  status.StatusCopied,
			wantFile:    "out/img.jpg",
		},
		{
			name:        "empty_destination_always_fails",
			policy:      config.PolicyDrop,
			destination: "{{ exif.Make }}",
			wantStatus:  status.StatusFailed,
			wantError:   ErrEmptyDestination,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testContext(t)
			writeFile(t, "photos/2023/img.jpg", "not really a jpeg", time.Time{})

			cfg := &config.Config{
				OnRenderError: tt.policy,
				Ingest:        []config.Block{{Name: "photos", Source: photoSource, Destination: tt.destination}},
			}
			require.NoError(t, cfg.Validate())
			store := openStore(t, ctx)

			op := newOperator(t, Options{Config: cfg, Store: store})
			_, err := op.Run(ctx)
			require.NoError(t, err, "render problems never abort the run")

			files := op.Status().ListFiles()
			require.Len(t, files, 1)
			assert.Equal(t, tt.wantStatus, files[0].Status)
			if tt.wantError != nil {
				assert.ErrorIs(t, files[0].Error, tt.wantError)
			}

			if tt.wantFile != "" {
				assert.FileExists(t, tt.wantFile)
				assert.Equal(t, 1, files[0].Dropped)
			} else {
				assert.NoDirExists(t, "out")
			}
		})
	}
}

func TestRunDryRun(t *testing.T) {
	ctx := testContext(t)
	writeFile(t, "photos/2023/img.jpg", "jpeg bytes", time.Time{})

	cfg := newConfig(t, config.Block{Name: "photos", Source: photoSource, Destination: photoDestination})
	store := openStore(t, ctx)

	op := newOperator(t, Options{Config: cfg, Store: store, DryRun: true})
	summary, err := op.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Planned)

	files := op.Status().ListFiles()
	require.Len(t, files, 1)
	assert.Equal(t, "out/2023/.jpg", files[0].Destination)

	assert.NoDirExists(t, "out")
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRunConcurrentBlocks(t *testing.T) {
	ctx := testContext(t)
	writeFile(t, "photos/2023/a.jpg", "a", time.Time{})
	writeFile(t, "photos/2023/b.jpg", "bb", time.Time{})
	writeFile(t, "videos/2023/c.mov", "ccc", time.Time{})

	cfg := newConfig(t,
		config.Block{Name: "photos", Source: photoSource, Destination: "out/photos/{{ stat.name }}"},
		config.Block{Name: "videos", Source: `videos/\d{4}/.*\.mov`, Destination: "out/videos/{{ stat.name }}"},
	)
	store := openStore(t, ctx)

	summary, err := newOperator(t, Options{Config: cfg, Store: store, Jobs: 4}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Copied)
	assert.Equal(t, int64(6), summary.Bytes)

	assert.FileExists(t, "out/photos/a.jpg")
	assert.FileExists(t, "out/photos/b.jpg")
	assert.FileExists(t, "out/videos/c.mov")
}

func TestRunParallelBlocksShareDestination(t *testing.T) {
	ctx := testContext(t)
	writeFile(t, "a/x.bin", strings.Repeat("A", 1<<20), time.Time{})
	writeFile(t, "b/x.bin", strings.Repeat("B", 1<<20), time.Time{})

	cfg := newConfig(t,
		config.Block{Name: "a", Source: `a/.*\.bin`, Destination: "out/{{ stat.name }}"},
		config.Block{Name: "b", Source: `b/.*\.bin`, Destination: "out/{{ stat.name }}"},
	)
	store := openStore(t, ctx)

	op := newOperator(t, Options{Config: cfg, Store: store, Jobs: 2})
	summary, err := op.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Copied)
	assert.Equal(t, 1, summary.Exists)

	var copiedFrom string
	for _, f := range op.Status().ListFiles() {
		if f.Status == status.StatusCopied {
			copiedFrom = f.Source
		}
	}
	require.NotEmpty(t, copiedFrom)

	want, err := os.ReadFile(copiedFrom)
	require.NoError(t, err)
	got, err := os.ReadFile("out/x.bin")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(want, got), "destination holds the recorded source")

	records, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, records, 1, "only the copied file is recorded")
	assert.Equal(t, copiedFrom, records[0].Source)
}

// cancelingProgress cancels the run as soon as the first bytes are copied
type cancelingProgress struct {
	cancel context.CancelFunc
}

func (p cancelingProgress) Start(int64)    {}
func (p cancelingProgress) SetTotal(int64) {}
func (p cancelingProgress) Add(int64)      { p.cancel() }
func (p cancelingProgress) Stop()          {}

func TestRunAbortsOnCopyFailure(t *testing.T) {
	ctx := testContext(t)
	writeFile(t, "photos/2023/a.jpg", "aaaa", time.Time{})
	writeFile(t, "photos/2023/b.jpg", "bbbb", time.Time{})

	cfg := newConfig(t, config.Block{Name: "photos", Source: photoSource, Destination: "out/{{ stat.name }}"})
	store := openStore(t, ctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	logger := zerolog.New(zerolog.NewTestWriter(t))
	manager := status.New(&logger, cancelingProgress{cancel: cancel})

	op := newOperator(t, Options{Config: cfg, Store: store, Status: manager})
	_, err := op.Run(runCtx)
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir("out")
	require.NoError(t, err)
	assert.Empty(t, entries, "no destination or temporary file is left behind")

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, op.Status().ListFiles())
}

func TestCopyReadFailureLeavesNothing(t *testing.T) {
	ctx := testContext(t)
	writeFile(t, "photos/2023/a.jpg", "aaaa", time.Time{})

	cfg := newConfig(t, config.Block{Name: "photos", Source: photoSource, Destination: "out/a.jpg"})
	store := &fakeStore{}
	op := newOperator(t, Options{Config: cfg, Store: store})

	file, err := match.MatchPath(ctx, photoSource, "photos/2023/a.jpg")
	require.NoError(t, err)

	src, err := os.Open(file.AbsPath)
	require.NoError(t, err)
	require.NoError(t, src.Close())

	p := &Pending{Block: &cfg.Ingest[0], File: file, DestinationPath: "out/a.jpg"}
	err = op.copy(ctx, src, p)
	require.ErrorIs(t, err, os.ErrClosed)

	entries, err := os.ReadDir("out")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, store.records)
}

type fakeStore struct {
	exists    map[state.Key]bool
	recordErr error
	records   []state.Record
}

func (s *fakeStore) Exists(ctx context.Context, key state.Key) (bool, error) {
	return s.exists[key], nil
}

func (s *fakeStore) Record(ctx context.Context, rec state.Record) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.records = append(s.records, rec)
	return nil
}

func TestRunRecordFailureAborts(t *testing.T) {
	ctx := testContext(t)
	writeFile(t, "photos/2023/a.jpg", "a", time.Time{})
	writeFile(t, "photos/2023/b.jpg", "b", time.Time{})

	cfg := newConfig(t, config.Block{Name: "photos", Source: photoSource, Destination: "out/{{ stat.name }}"})
	store := &fakeStore{recordErr: errors.WithStack(state.ErrDuplicateRecord)}

	op := newOperator(t, Options{Config: cfg, Store: store})
	_, err := op.Run(ctx)
	require.ErrorIs(t, err, state.ErrDuplicateRecord)

	assert.Empty(t, op.Status().ListFiles(), "the run stops at the first aborting error")
	assert.NoFileExists(t, "out/b.jpg")
}

func TestNewRejectsSyntaxErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{
			name: "destination",
			cfg:  &config.Config{Ingest: []config.Block{{Name: "a", Source: "x/.*", Destination: "out/{{ match.y "}}},
		},
		{
			name: "source",
			cfg:  &config.Config{Ingest: []config.Block{{Name: "a", Source: "{{ var.root", Destination: "out"}}},
		},
		{
			name: "variable",
			cfg: &config.Config{
				Var:    map[string]string{"root": "{% x = %}"},
				Ingest: []config.Block{{Name: "a", Source: "x/.*", Destination: "out"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Options{Config: tt.cfg, Store: &fakeStore{}})
			require.Error(t, err)
		})
	}

	_, err := New(Options{Store: &fakeStore{}})
	require.Error(t, err, "config is required")
	_, err = New(Options{Config: &config.Config{}})
	require.Error(t, err, "store is required")
}

func TestRender(t *testing.T) {
	ctx := testContext(t)
	writeFile(t, "photos/2023/img.JPG", "jpeg bytes", time.Time{})

	cfg := &config.Config{
		Var: map[string]string{
			"root":    "photos",
			"archive": "out/{{ match.y }}",
		},
		Ingest: []config.Block{{
			Name:        "photos",
			Source:      `{{ var.root }}/(?P<y>\d{4})/.*\.JPG`,
			Destination: `{{ var.archive }}/{{ upper(trimspace(" x ")) }}{{ ext }}`,
		}},
	}
	require.NoError(t, cfg.Validate())

	op := newOperator(t, Options{Config: cfg, Store: &fakeStore{}})

	res, err := op.Render(ctx, "photos", "photos/2023/img.JPG")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "out/2023/X.jpg", res.Text)

	_, err = op.Render(ctx, "videos", "photos/2023/img.JPG")
	require.Error(t, err)

	writeFile(t, "elsewhere/img.JPG", "x", time.Time{})
	_, err = op.Render(ctx, "photos", "elsewhere/img.JPG")
	require.Error(t, err)
}

func TestStreamReportsProgress(t *testing.T) {
	ctx := testContext(t)
	cfg := newConfig(t, config.Block{Name: "a", Source: "x/.*", Destination: "out"})
	op := newOperator(t, Options{Config: cfg, Store: &fakeStore{}})

	op.Status().StartOperation(ctx, 10)

	var dst bytes.Buffer
	hash, err := op.stream(ctx, &dst, bytes.NewReader([]byte("0123456789")), 3)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", dst.String())
	assert.Equal(t, "87acec17cd9dcd20a716cc2cf67417b71c8a7016", hex.EncodeToString(hash))

	copied, _ := op.Status().Progress()
	assert.Equal(t, int64(10), copied)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = op.stream(cancelled, &dst, bytes.NewReader([]byte("x")), 3)
	require.ErrorIs(t, err, context.Canceled)
}
