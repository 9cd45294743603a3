package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/zwinlu/tidb-dashboard/pkg/apperrors"
	"github.com/zwinlu/tidb-dashboard/pkg/dashboard"
	"github.com/zwinlu/tidb-dashboard/pkg/logging"
	"github.com/zwinlu/tidb-dashboard/pkg/models"
)

// ViewState is a consistent snapshot of everything the rendering layer
// needs to draw the statement table.
type ViewState struct {
	QueryOptions     models.QueryOptions     `json:"query_options"`
	OrderOptions     models.OrderOptions     `json:"order_options"`
	ColumnVisibility models.ColumnVisibility `json:"column_visibility"`
	ShowFullSQL      bool                    `json:"show_full_sql"`

	Enable        bool                        `json:"enable"`
	AllSchemas    []string                    `json:"all_schemas"`
	AllTimeRanges []models.StatementTimeRange `json:"all_time_ranges"`
	AllStmtTypes  []string                    `json:"all_stmt_types"`

	ValidTimeRange models.StatementTimeRange `json:"valid_time_range"`
	SelectedFields string                    `json:"selected_fields"`

	Statements  []models.StatementModel `json:"statements"`
	Columns     []StmtColumn            `json:"columns"`
	Loading     bool                    `json:"loading"`
	Downloading bool                    `json:"downloading"`
	Errors      []string                `json:"errors"`
}

// StatementController reconciles user-chosen filters, persisted options
// and the four independent metadata sources into a single statement-list
// fetch, and exposes the derived view state.
//
// Every operation runs its remote work in the calling goroutine and
// returns when the state is settled. Overlapping operations from
// different goroutines are safe: state writes are serialized, and each
// fetch carries the generation current at issue time; a completion whose
// generation has been superseded is discarded instead of overwriting
// newer state.
type StatementController struct {
	client dashboard.Client
	store  OptionStore
	logger *zap.Logger

	mu               sync.Mutex
	queryOptions     models.QueryOptions
	orderOptions     models.OrderOptions
	columnVisibility models.ColumnVisibility
	showFullSQL      bool

	enable        bool
	allSchemas    []string
	allTimeRanges []models.StatementTimeRange
	allStmtTypes  []string

	statements  []models.StatementModel
	loading     bool
	downloading bool
	errors      ErrorList

	metaGen uint64
	listGen uint64
}

// NewStatementController creates a controller with options restored from
// the given store. It performs no remote calls; callers trigger the
// initial metadata load with Refresh.
func NewStatementController(client dashboard.Client, store OptionStore, logger *zap.Logger, visibility models.ColumnVisibility) *StatementController {
	if visibility == nil {
		visibility = DefaultColumnVisibility()
	}
	return &StatementController{
		client:           client,
		store:            store,
		logger:           logger.Named("statement-controller"),
		queryOptions:     store.Get(),
		orderOptions:     models.DefaultOrderOptions(),
		columnVisibility: visibility,
		statements:       []models.StatementModel{},
	}
}

// Refresh clears the accumulated errors and re-fetches the four metadata
// sources. The error list is cleared synchronously, before any fetch
// completes. Each source fails independently: a failure is appended to
// the error list without touching the existing value or the other three
// fetches. Once metadata is committed the statement list reloads, since
// the known time ranges may have changed.
//
// Filter changes do not re-run metadata; only Refresh does.
func (c *StatementController) Refresh(ctx context.Context) {
	c.mu.Lock()
	c.errors.Clear()
	c.metaGen++
	gen := c.metaGen
	c.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		c.loadConfig(ctx, gen)
	}()
	go func() {
		defer wg.Done()
		c.loadSchemas(ctx, gen)
	}()
	go func() {
		defer wg.Done()
		c.loadTimeRanges(ctx, gen)
	}()
	go func() {
		defer wg.Done()
		c.loadStmtTypes(ctx, gen)
	}()
	wg.Wait()

	c.reloadStatements(ctx)
}

func (c *StatementController) loadConfig(ctx context.Context, gen uint64) {
	cfg, err := c.client.Config(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.metaGen {
		return
	}
	if err != nil {
		c.errors.Append(err)
		c.logger.Warn("Failed to fetch statement config", zap.String("error", logging.SanitizeError(err)))
		return
	}
	c.enable = cfg.Enable
}

func (c *StatementController) loadSchemas(ctx context.Context, gen uint64) {
	schemas, err := c.client.Schemas(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.metaGen {
		return
	}
	if err != nil {
		c.errors.Append(err)
		c.logger.Warn("Failed to fetch schema list", zap.String("error", logging.SanitizeError(err)))
		return
	}
	if schemas == nil {
		schemas = []string{}
	}
	c.allSchemas = schemas
}

func (c *StatementController) loadTimeRanges(ctx context.Context, gen uint64) {
	ranges, err := c.client.TimeRanges(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.metaGen {
		return
	}
	if err != nil {
		c.errors.Append(err)
		c.logger.Warn("Failed to fetch time ranges", zap.String("error", logging.SanitizeError(err)))
		return
	}
	if ranges == nil {
		ranges = []models.StatementTimeRange{}
	}
	c.allTimeRanges = ranges
}

func (c *StatementController) loadStmtTypes(ctx context.Context, gen uint64) {
	types, err := c.client.StmtTypes(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.metaGen {
		return
	}
	if err != nil {
		c.errors.Append(err)
		c.logger.Warn("Failed to fetch statement types", zap.String("error", logging.SanitizeError(err)))
		return
	}
	if types == nil {
		types = []string{}
	}
	c.allStmtTypes = types
}

// SetQueryOptions replaces the filter selection wholesale, persists it
// through the option store, and reloads the statement list. The options
// must be a complete value; partial updates are rejected.
func (c *StatementController) SetQueryOptions(ctx context.Context, opts models.QueryOptions) error {
	if opts.TimeRange.Kind == "" {
		return apperrors.ErrIncompleteQueryOptions
	}
	if err := c.store.Set(opts); err != nil {
		return err
	}

	c.mu.Lock()
	c.queryOptions = opts
	c.mu.Unlock()

	c.reloadStatements(ctx)
	return nil
}

// SetColumnVisibility replaces the column selection. The statement list
// reloads only if the selection changes the requested field set.
func (c *StatementController) SetColumnVisibility(ctx context.Context, visibility models.ColumnVisibility) {
	c.mu.Lock()
	oldFields := SelectStmtFields(c.columnVisibility, DerivedStmtFields)
	newFields := SelectStmtFields(visibility, DerivedStmtFields)
	c.columnVisibility = visibility
	c.mu.Unlock()

	if oldFields != newFields {
		c.reloadStatements(ctx)
	}
}

// SetOrderOptions replaces the sort column and direction. Ordering is a
// view concern; no fetch happens.
func (c *StatementController) SetOrderOptions(opts models.OrderOptions) {
	c.mu.Lock()
	c.orderOptions = opts
	c.mu.Unlock()
}

// SetShowFullSQL toggles between truncated and full statement templates.
// Column descriptors are derived on snapshot; no fetch happens.
func (c *StatementController) SetShowFullSQL(show bool) {
	c.mu.Lock()
	c.showFullSQL = show
	c.mu.Unlock()
}

// reloadStatements runs one statement-list fetch against the current
// effective inputs. With no known time ranges the list is emptied
// without a remote call and without an error.
func (c *StatementController) reloadStatements(ctx context.Context) {
	c.mu.Lock()
	c.listGen++
	gen := c.listGen

	if len(c.allTimeRanges) == 0 {
		c.statements = []models.StatementModel{}
		c.loading = false
		c.mu.Unlock()
		return
	}

	c.loading = true
	valid := ValidateTimeRange(c.queryOptions.TimeRange, c.allTimeRanges)
	req := dashboard.StatementsRequest{
		BeginTime: valid.BeginTime,
		EndTime:   valid.EndTime,
		Fields:    SelectStmtFields(c.columnVisibility, DerivedStmtFields),
		Schemas:   c.queryOptions.Schemas,
		StmtTypes: c.queryOptions.StmtTypes,
		Text:      c.queryOptions.SearchText,
	}
	c.mu.Unlock()

	rows, err := c.client.Overviews(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.listGen {
		// A newer fetch owns the state now; drop this completion.
		return
	}
	c.loading = false
	if err != nil {
		c.errors.Append(err)
		c.logger.Warn("Failed to fetch statement overviews", zap.String("error", logging.SanitizeError(err)))
		return
	}
	if rows == nil {
		rows = []models.StatementModel{}
	}
	c.statements = rows
	// Policy: a successful list fetch clears every previously captured
	// error, metadata errors included. Once the primary data loads,
	// stale auxiliary errors are no longer surfaced.
	c.errors.Clear()
}

// ExportCSV requests a one-use download token for the current effective
// time range and filters (with all fields) and returns the download URL
// the browser should be navigated to.
//
// Unlike metadata and list fetches, export errors are returned to the
// caller and never appended to the shared error list.
func (c *StatementController) ExportCSV(ctx context.Context) (string, error) {
	c.mu.Lock()
	c.downloading = true
	opts := c.queryOptions
	valid := ValidateTimeRange(opts.TimeRange, c.allTimeRanges)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.downloading = false
		c.mu.Unlock()
	}()

	token, err := c.client.DownloadToken(ctx, dashboard.StatementsRequest{
		BeginTime: valid.BeginTime,
		EndTime:   valid.EndTime,
		Fields:    "*",
		Schemas:   opts.Schemas,
		StmtTypes: opts.StmtTypes,
		Text:      opts.SearchText,
	})
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", apperrors.ErrNoDownloadToken
	}
	return c.client.DownloadURL(token), nil
}

// ViewState returns a consistent snapshot of the controller state, with
// the derived values (valid time range, selected fields, column
// descriptors) computed from the snapshot inputs.
func (c *StatementController) ViewState() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()

	errs := c.errors.Errors()
	messages := make([]string, len(errs))
	for i, err := range errs {
		messages[i] = err.Error()
	}

	visibility := make(models.ColumnVisibility, len(c.columnVisibility))
	for key, shown := range c.columnVisibility {
		visibility[key] = shown
	}

	schemas := make([]string, len(c.allSchemas))
	copy(schemas, c.allSchemas)
	ranges := make([]models.StatementTimeRange, len(c.allTimeRanges))
	copy(ranges, c.allTimeRanges)
	types := make([]string, len(c.allStmtTypes))
	copy(types, c.allStmtTypes)
	statements := make([]models.StatementModel, len(c.statements))
	copy(statements, c.statements)

	return ViewState{
		QueryOptions:     c.queryOptions,
		OrderOptions:     c.orderOptions,
		ColumnVisibility: visibility,
		ShowFullSQL:      c.showFullSQL,

		Enable:        c.enable,
		AllSchemas:    schemas,
		AllTimeRanges: ranges,
		AllStmtTypes:  types,

		ValidTimeRange: ValidateTimeRange(c.queryOptions.TimeRange, c.allTimeRanges),
		SelectedFields: SelectStmtFields(c.columnVisibility, DerivedStmtFields),

		Statements:  statements,
		Columns:     BuildStmtColumns(c.statements, c.showFullSQL),
		Loading:     c.loading,
		Downloading: c.downloading,
		Errors:      messages,
	}
}
