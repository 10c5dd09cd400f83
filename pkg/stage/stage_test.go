package stage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataforge/etlengine/pkg/connector"
	"github.com/dataforge/etlengine/pkg/execctx"
	"github.com/dataforge/etlengine/pkg/record"
)

type mockSource struct {
	records []*record.Record
}

func (m *mockSource) Open(ctx context.Context) error  { return nil }
func (m *mockSource) Close(ctx context.Context) error { return nil }
func (m *mockSource) TestConnection(ctx context.Context) (connector.ConnectionTestResult, error) {
	return connector.ConnectionTestResult{Success: true}, nil
}
func (m *mockSource) Metadata(ctx context.Context) (connector.Metadata, error) {
	return connector.Metadata{}, nil
}
func (m *mockSource) EstimatedRecordCount(ctx context.Context) (int64, bool) {
	return int64(len(m.records)), true
}
func (m *mockSource) Read(ctx context.Context, sink func(*record.Record) error) error {
	for _, r := range m.records {
		if err := sink(r); err != nil {
			return err
		}
	}
	return nil
}

type mockDestination struct {
	written []*record.Record
}

func (m *mockDestination) Open(ctx context.Context) error  { return nil }
func (m *mockDestination) Close(ctx context.Context) error { return nil }
func (m *mockDestination) TestConnection(ctx context.Context) (connector.ConnectionTestResult, error) {
	return connector.ConnectionTestResult{Success: true}, nil
}
func (m *mockDestination) Metadata(ctx context.Context) (connector.Metadata, error) {
	return connector.Metadata{}, nil
}
func (m *mockDestination) Write(ctx context.Context, r *record.Record) error {
	m.written = append(m.written, r)
	return nil
}
func (m *mockDestination) WriteBatch(ctx context.Context, records []*record.Record) (int, int, error) {
	m.written = append(m.written, records...)
	return len(records), 0, nil
}

func newCtx() *execctx.ExecutionContext {
	return execctx.New(context.Background(), "pipeline-1", nil, nil)
}

func TestExtractStage_ReadsAllRecords(t *testing.T) {
	r1 := record.New()
	r1.Set("id", record.NewInt(1))
	r2 := record.New()
	r2.Set("id", record.NewInt(2))

	var buf []*record.Record
	st, err := NewExtractStage("e1", "extract", "", 0, &mockSource{records: []*record.Record{r1, r2}}, &buf)
	require.NoError(t, err)

	ctx := newCtx()
	require.NoError(t, st.Prepare(ctx))
	n, err := st.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, buf, 2)
}

func TestLoadStage_WritesBatches(t *testing.T) {
	var buf []*record.Record
	for i := 0; i < 5; i++ {
		r := record.New()
		r.Set("id", record.NewInt(int64(i)))
		buf = append(buf, r)
	}

	dest := &mockDestination{}
	st, err := NewLoadStage("l1", "load", "", 1, dest, &buf, 2)
	require.NoError(t, err)

	ctx := newCtx()
	require.NoError(t, st.Prepare(ctx))
	n, err := st.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Len(t, dest.written, 5)
}

func TestNewBase_RejectsEmptyNameAndNegativeOrder(t *testing.T) {
	_, err := NewBase("1", "", "", TypeExtract, 0)
	assert.Error(t, err)

	_, err = NewBase("1", "stage", "", TypeExtract, -1)
	assert.Error(t, err)
}

func TestBase_StatusStartsReadyAndIsSettable(t *testing.T) {
	base, err := NewBase("1", "stage", "", TypeTransform, 0)
	require.NoError(t, err)

	assert.Equal(t, StatusReady, base.Status())
	base.SetStatus(StatusRunning)
	assert.Equal(t, StatusRunning, base.Status())
}
