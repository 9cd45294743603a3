package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zwinlu/tidb-dashboard/pkg/apperrors"
	"github.com/zwinlu/tidb-dashboard/pkg/dashboard"
	"github.com/zwinlu/tidb-dashboard/pkg/models"
)

// mockDashboardClient is a hand-written mock of the dashboard API for
// controller tests.
type mockDashboardClient struct {
	mu sync.Mutex

	config     dashboard.StatementConfig
	configErr  error
	schemas    []string
	schemasErr error
	ranges     []models.StatementTimeRange
	rangesErr  error
	types      []string
	typesErr   error

	// metaGate, when non-nil, blocks every metadata call until closed.
	metaGate chan struct{}

	// overviewsFn lets a test script each list fetch. Defaults to an
	// empty result set.
	overviewsFn    func(req dashboard.StatementsRequest) ([]models.StatementModel, error)
	overviewsCalls []dashboard.StatementsRequest

	token      string
	tokenErr   error
	tokenCalls []dashboard.StatementsRequest
}

var _ dashboard.Client = (*mockDashboardClient)(nil)

func (m *mockDashboardClient) waitMetaGate() {
	m.mu.Lock()
	gate := m.metaGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (m *mockDashboardClient) Config(ctx context.Context) (dashboard.StatementConfig, error) {
	m.waitMetaGate()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config, m.configErr
}

func (m *mockDashboardClient) Schemas(ctx context.Context) ([]string, error) {
	m.waitMetaGate()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schemas, m.schemasErr
}

func (m *mockDashboardClient) TimeRanges(ctx context.Context) ([]models.StatementTimeRange, error) {
	m.waitMetaGate()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ranges, m.rangesErr
}

func (m *mockDashboardClient) StmtTypes(ctx context.Context) ([]string, error) {
	m.waitMetaGate()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.types, m.typesErr
}

func (m *mockDashboardClient) Overviews(ctx context.Context, req dashboard.StatementsRequest) ([]models.StatementModel, error) {
	m.mu.Lock()
	m.overviewsCalls = append(m.overviewsCalls, req)
	fn := m.overviewsFn
	m.mu.Unlock()
	if fn == nil {
		return []models.StatementModel{}, nil
	}
	return fn(req)
}

func (m *mockDashboardClient) DownloadToken(ctx context.Context, req dashboard.StatementsRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenCalls = append(m.tokenCalls, req)
	return m.token, m.tokenErr
}

func (m *mockDashboardClient) DownloadURL(token string) string {
	return "http://dashboard.local/api/statements/download?token=" + token
}

func (m *mockDashboardClient) overviewCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.overviewsCalls)
}

func (m *mockDashboardClient) lastOverviewCall(t *testing.T) dashboard.StatementsRequest {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.overviewsCalls)
	return m.overviewsCalls[len(m.overviewsCalls)-1]
}

func newTestController(client dashboard.Client) *StatementController {
	store := NewMemoryOptionStore(models.DefaultQueryOptions())
	return NewStatementController(client, store, zap.NewNop(), nil)
}

func TestRefresh_PopulatesMetadata(t *testing.T) {
	client := &mockDashboardClient{
		config:  dashboard.StatementConfig{Enable: true},
		schemas: []string{"db1", "db2"},
		ranges:  []models.StatementTimeRange{{BeginTime: 0, EndTime: 100}},
		types:   []string{"Select", "Insert"},
	}
	c := newTestController(client)
	c.Refresh(context.Background())

	state := c.ViewState()
	assert.True(t, state.Enable)
	assert.Equal(t, []string{"db1", "db2"}, state.AllSchemas)
	assert.Equal(t, []string{"Select", "Insert"}, state.AllStmtTypes)
	require.Len(t, state.AllTimeRanges, 1)
	assert.False(t, state.Loading)
}

func TestRefresh_MetadataFailuresAreIsolated(t *testing.T) {
	client := &mockDashboardClient{
		config:     dashboard.StatementConfig{Enable: true},
		schemasErr: errors.New("schemas unavailable"),
		rangesErr:  errors.New("time ranges unavailable"),
		types:      []string{"Select"},
	}
	c := newTestController(client)
	c.Refresh(context.Background())

	state := c.ViewState()
	// The two failures were captured without affecting the other two
	// sources, and without triggering a list fetch (no known ranges).
	assert.True(t, state.Enable)
	assert.Equal(t, []string{"Select"}, state.AllStmtTypes)
	assert.Empty(t, state.AllSchemas)
	assert.Empty(t, state.AllTimeRanges)
	assert.Len(t, state.Errors, 2)
	assert.Equal(t, 0, client.overviewCallCount())
	assert.Empty(t, state.Statements)
	assert.False(t, state.Loading)
}

func TestRefresh_ClearsErrorsSynchronously(t *testing.T) {
	client := &mockDashboardClient{
		configErr:  errors.New("boom"),
		schemasErr: errors.New("boom"),
		rangesErr:  errors.New("boom"),
		typesErr:   errors.New("boom"),
	}
	c := newTestController(client)
	c.Refresh(context.Background())
	require.Len(t, c.ViewState().Errors, 4)

	gate := make(chan struct{})
	client.mu.Lock()
	client.metaGate = gate
	client.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Refresh(context.Background())
	}()

	// The error list empties before any of the gated fetches completes.
	require.Eventually(t, func() bool {
		return len(c.ViewState().Errors) == 0
	}, time.Second, time.Millisecond)

	close(gate)
	<-done
}

func TestReload_EmptyTimeRanges_ShortCircuits(t *testing.T) {
	client := &mockDashboardClient{config: dashboard.StatementConfig{Enable: true}}
	c := newTestController(client)
	c.Refresh(context.Background())

	err := c.SetQueryOptions(context.Background(), models.QueryOptions{
		TimeRange: models.RecentTimeRange(600),
	})
	require.NoError(t, err)

	state := c.ViewState()
	assert.Equal(t, 0, client.overviewCallCount())
	assert.Empty(t, state.Statements)
	assert.False(t, state.Loading)
	assert.Empty(t, state.Errors)
}

func TestSetQueryOptions_IssuesListFetchWithFilters(t *testing.T) {
	client := &mockDashboardClient{
		config: dashboard.StatementConfig{Enable: true},
		ranges: []models.StatementTimeRange{{BeginTime: 0, EndTime: 100}},
	}
	c := newTestController(client)
	c.Refresh(context.Background())

	err := c.SetQueryOptions(context.Background(), models.QueryOptions{
		TimeRange: models.AbsoluteTimeRange(0, 100),
		Schemas:   []string{"db1"},
		StmtTypes: []string{},
	})
	require.NoError(t, err)

	call := client.lastOverviewCall(t)
	assert.Equal(t, int64(0), call.BeginTime)
	assert.Equal(t, int64(100), call.EndTime)
	assert.Equal(t, []string{"db1"}, call.Schemas)
	assert.Empty(t, call.StmtTypes)
	assert.Equal(t, "", call.Text)
	for _, derived := range DerivedStmtFields {
		assert.Contains(t, call.Fields, derived)
	}

	state := c.ViewState()
	assert.Empty(t, state.Statements)
	assert.Empty(t, state.Errors)
	assert.False(t, state.Loading)
}

func TestSetQueryOptions_RejectsIncompleteValue(t *testing.T) {
	client := &mockDashboardClient{}
	c := newTestController(client)

	err := c.SetQueryOptions(context.Background(), models.QueryOptions{Schemas: []string{"db1"}})
	assert.ErrorIs(t, err, apperrors.ErrIncompleteQueryOptions)
	assert.Equal(t, 0, client.overviewCallCount())
}

func TestListSuccess_ClearsPriorErrors(t *testing.T) {
	client := &mockDashboardClient{
		config:     dashboard.StatementConfig{Enable: true},
		schemasErr: errors.New("schemas unavailable"),
		ranges:     []models.StatementTimeRange{{BeginTime: 0, EndTime: 100}},
		types:      []string{"Select"},
	}
	c := newTestController(client)
	c.Refresh(context.Background())

	// The schema failure was captured, then the list fetch succeeded and
	// wiped it: once the primary data loads, stale metadata errors are
	// not surfaced.
	state := c.ViewState()
	assert.Empty(t, state.Errors)
	assert.Empty(t, state.AllSchemas)
}

func TestListFailure_AppendsAndKeepsPreviousRows(t *testing.T) {
	rows := []models.StatementModel{{Digest: "d1", DigestText: "select 1"}}
	client := &mockDashboardClient{
		config: dashboard.StatementConfig{Enable: true},
		ranges: []models.StatementTimeRange{{BeginTime: 0, EndTime: 100}},
		overviewsFn: func(req dashboard.StatementsRequest) ([]models.StatementModel, error) {
			return rows, nil
		},
	}
	c := newTestController(client)
	c.Refresh(context.Background())
	require.Len(t, c.ViewState().Statements, 1)

	client.mu.Lock()
	client.overviewsFn = func(req dashboard.StatementsRequest) ([]models.StatementModel, error) {
		return nil, errors.New("list unavailable")
	}
	client.mu.Unlock()

	err := c.SetQueryOptions(context.Background(), models.QueryOptions{
		TimeRange:  models.RecentTimeRange(60),
		SearchText: "select",
	})
	require.NoError(t, err)

	state := c.ViewState()
	assert.Len(t, state.Errors, 1)
	// The previous rows stay in place on failure.
	require.Len(t, state.Statements, 1)
	assert.Equal(t, "d1", state.Statements[0].Digest)
	assert.False(t, state.Loading)
}

func TestSetColumnVisibility_RefetchesOnlyOnFieldChange(t *testing.T) {
	client := &mockDashboardClient{
		config: dashboard.StatementConfig{Enable: true},
		ranges: []models.StatementTimeRange{{BeginTime: 0, EndTime: 100}},
	}
	c := newTestController(client)
	c.Refresh(context.Background())
	baseline := client.overviewCallCount()

	// Toggling a derived field on does not change the requested set.
	vis := DefaultColumnVisibility()
	vis["digest"] = true
	c.SetColumnVisibility(context.Background(), vis)
	assert.Equal(t, baseline, client.overviewCallCount())

	// Adding a new optional field does.
	vis = DefaultColumnVisibility()
	vis["plan_count"] = true
	c.SetColumnVisibility(context.Background(), vis)
	assert.Equal(t, baseline+1, client.overviewCallCount())
}

func TestOverlappingReloads_LatestIssuedWins(t *testing.T) {
	firstIssued := make(chan struct{})
	releaseFirst := make(chan struct{})
	var calls int
	var callsMu sync.Mutex

	client := &mockDashboardClient{
		config: dashboard.StatementConfig{Enable: true},
		ranges: []models.StatementTimeRange{{BeginTime: 0, EndTime: 100}},
	}
	client.overviewsFn = func(req dashboard.StatementsRequest) ([]models.StatementModel, error) {
		callsMu.Lock()
		calls++
		n := calls
		callsMu.Unlock()
		if n == 2 {
			// Second call (first SetQueryOptions): park until released.
			close(firstIssued)
			<-releaseFirst
			return []models.StatementModel{{Digest: "stale"}}, nil
		}
		return []models.StatementModel{{Digest: "fresh"}}, nil
	}

	c := newTestController(client)
	c.Refresh(context.Background()) // call 1

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.SetQueryOptions(context.Background(), models.QueryOptions{
			TimeRange:  models.RecentTimeRange(60),
			SearchText: "old",
		}) // call 2, parked
	}()
	<-firstIssued

	err := c.SetQueryOptions(context.Background(), models.QueryOptions{
		TimeRange:  models.RecentTimeRange(120),
		SearchText: "new",
	}) // call 3, completes
	require.NoError(t, err)
	require.Len(t, c.ViewState().Statements, 1)
	require.Equal(t, "fresh", c.ViewState().Statements[0].Digest)

	close(releaseFirst)
	<-done

	// The parked completion belongs to a superseded request and must not
	// overwrite the newer rows.
	state := c.ViewState()
	require.Len(t, state.Statements, 1)
	assert.Equal(t, "fresh", state.Statements[0].Digest)
	assert.False(t, state.Loading)
}

func TestExportCSV_ReturnsDownloadURL(t *testing.T) {
	client := &mockDashboardClient{
		config: dashboard.StatementConfig{Enable: true},
		ranges: []models.StatementTimeRange{{BeginTime: 0, EndTime: 100}},
		token:  "one-use-token",
	}
	c := newTestController(client)
	c.Refresh(context.Background())

	url, err := c.ExportCSV(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://dashboard.local/api/statements/download?token=one-use-token", url)

	require.Len(t, client.tokenCalls, 1)
	assert.Equal(t, "*", client.tokenCalls[0].Fields)
	assert.False(t, c.ViewState().Downloading)
}

func TestExportCSV_ErrorStaysOutOfErrorList(t *testing.T) {
	client := &mockDashboardClient{
		config:   dashboard.StatementConfig{Enable: true},
		ranges:   []models.StatementTimeRange{{BeginTime: 0, EndTime: 100}},
		tokenErr: errors.New("token denied"),
	}
	c := newTestController(client)
	c.Refresh(context.Background())

	_, err := c.ExportCSV(context.Background())
	require.Error(t, err)

	state := c.ViewState()
	assert.Empty(t, state.Errors)
	assert.False(t, state.Downloading)
}

func TestExportCSV_EmptyToken(t *testing.T) {
	client := &mockDashboardClient{
		config: dashboard.StatementConfig{Enable: true},
		ranges: []models.StatementTimeRange{{BeginTime: 0, EndTime: 100}},
		token:  "",
	}
	c := newTestController(client)
	c.Refresh(context.Background())

	_, err := c.ExportCSV(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNoDownloadToken)
	assert.False(t, c.ViewState().Downloading)
}

func TestSetOrderOptionsAndShowFullSQL_NoFetch(t *testing.T) {
	client := &mockDashboardClient{
		config: dashboard.StatementConfig{Enable: true},
		ranges: []models.StatementTimeRange{{BeginTime: 0, EndTime: 100}},
	}
	c := newTestController(client)
	c.Refresh(context.Background())
	baseline := client.overviewCallCount()

	c.SetOrderOptions(models.OrderOptions{OrderBy: "exec_count", Desc: false})
	c.SetShowFullSQL(true)

	state := c.ViewState()
	assert.Equal(t, baseline, client.overviewCallCount())
	assert.Equal(t, "exec_count", state.OrderOptions.OrderBy)
	assert.True(t, state.ShowFullSQL)
	assert.True(t, state.Columns[0].MultiLine)
}
