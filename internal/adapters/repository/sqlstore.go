package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/bpbrianpark/enigma-game/internal/domain/model"
	"github.com/bpbrianpark/enigma-game/pkg/logger"
	"github.com/bpbrianpark/enigma-game/pkg/metrics"
)

const (
	categoryColumns = "id, slug, name, base_query, update_query_template, is_dynamic, is_daily, has_been_selected, played_on, tags"
	entryColumns    = "id, category_id, label, norm, url, tally_count, created_at, updated_at"
	aliasColumns    = "id, entry_id, category_id, label, norm"
)

type categoryRow struct {
	ID                  string        `db:"id"`
	Slug                string        `db:"slug"`
	Name                string        `db:"name"`
	Query               string        `db:"base_query"`
	UpdateQueryTemplate string        `db:"update_query_template"`
	IsDynamic           bool          `db:"is_dynamic"`
	IsDaily             bool          `db:"is_daily"`
	HasBeenSelected     bool          `db:"has_been_selected"`
	PlayedOn            sql.NullInt64 `db:"played_on"`
	Tags                string        `db:"tags"`
}

func (r *categoryRow) model() model.Category {
	c := model.Category{
		ID:                  r.ID,
		Slug:                r.Slug,
		Name:                r.Name,
		Query:               r.Query,
		UpdateQueryTemplate: r.UpdateQueryTemplate,
		IsDynamic:           r.IsDynamic,
		IsDaily:             r.IsDaily,
		HasBeenSelected:     r.HasBeenSelected,
	}
	if r.PlayedOn.Valid {
		p := time.Unix(r.PlayedOn.Int64, 0).UTC()
		c.PlayedOn = &p
	}
	if r.Tags != "" {
		c.Tags = strings.Split(r.Tags, ",")
	}
	return c
}

type entryRow struct {
	ID         string `db:"id"`
	CategoryID string `db:"category_id"`
	Label      string `db:"label"`
	Norm       string `db:"norm"`
	URL        string `db:"url"`
	Count      int    `db:"tally_count"`
	CreatedAt  int64  `db:"created_at"`
	UpdatedAt  int64  `db:"updated_at"`
}

func (r *entryRow) model() model.Entry {
	return model.Entry{
		ID:         r.ID,
		CategoryID: r.CategoryID,
		Label:      r.Label,
		Norm:       r.Norm,
		URL:        r.URL,
		Count:      r.Count,
		CreatedAt:  time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:  time.Unix(r.UpdatedAt, 0).UTC(),
	}
}

type aliasRow struct {
	ID         string `db:"id"`
	EntryID    string `db:"entry_id"`
	CategoryID string `db:"category_id"`
	Label      string `db:"label"`
	Norm       string `db:"norm"`
}

func (r *aliasRow) model() model.Alias {
	return model.Alias{ID: r.ID, EntryID: r.EntryID, CategoryID: r.CategoryID, Label: r.Label, Norm: r.Norm}
}

// SQLStore implements Store over database/sql through sqlx. Timestamps are
// stored as unix seconds.
type SQLStore struct {
	db     *sqlx.DB
	d      dialect
	now    func() time.Time
	newID  func() string
	logger logger.Logger
}

var _ Store = (*SQLStore)(nil)

// OpenSQLite opens (or creates) the SQLite database at path and ensures
// the schema exists.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLStore, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, storageErr("open sqlite", err)
	}
	// One writer keeps in-memory databases on a single connection and
	// avoids busy errors on upgrade.
	db.SetMaxOpenConns(1)
	return open(ctx, db, sqliteDialect, opts)
}

// OpenMySQL connects to MySQL with dsn and ensures the schema exists.
func OpenMySQL(ctx context.Context, dsn string, opts ...Option) (*SQLStore, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: mysql dsn: %v", model.ErrInvalidInput, err)
	}
	cfg.ParseTime = true
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}

	db, err := sqlx.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, storageErr("open mysql", err)
	}
	return open(ctx, db, mysqlDialect, opts)
}

func open(ctx context.Context, db *sqlx.DB, d dialect, opts []Option) (*SQLStore, error) {
	s, err := NewSQLStore(db, d.name, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storageErr("ping "+d.name, err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open handle. driver is "sqlite" or "mysql". The
// schema is not touched; call Migrate for that.
func NewSQLStore(db *sqlx.DB, driver string, opts ...Option) (*SQLStore, error) {
	var d dialect
	switch driver {
	case sqliteDialect.name:
		d = sqliteDialect
	case mysqlDialect.name:
		d = mysqlDialect
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	s := defaultSettings()
	for _, opt := range opts {
		opt(s)
	}
	if s.maxOpenConns > 0 {
		db.SetMaxOpenConns(s.maxOpenConns)
	}
	return &SQLStore{db: db, d: d, now: s.now, newID: s.newID, logger: s.log("sqlstore")}, nil
}

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storageErr("create schema", err)
		}
	}
	s.logger.Debug(ctx, "schema ready", logger.String("dialect", s.d.name))
	return nil
}

func observe(op string, write bool, start time.Time) {
	ms := float64(time.Since(start).Milliseconds())
	if write {
		metrics.RecordRepositoryUpdateLatency(op, ms)
		return
	}
	metrics.RecordRepositoryQueryLatency(op, ms)
}

// FindCategoryBySlug implements Store.
func (s *SQLStore) FindCategoryBySlug(ctx context.Context, slug string) (*model.Category, error) {
	defer observe("find_category", false, time.Now())
	var r categoryRow
	err := s.db.GetContext(ctx, &r, "SELECT "+categoryColumns+" FROM categories WHERE slug = ?", slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, storageErr("find category", err)
	}
	c := r.model()
	return &c, nil
}

// ListCategories implements Store.
func (s *SQLStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	defer observe("list_categories", false, time.Now())
	return s.selectCategories(ctx, "list categories", "SELECT "+categoryColumns+" FROM categories ORDER BY slug")
}

func (s *SQLStore) selectCategories(ctx context.Context, op, query string, args ...any) ([]model.Category, error) {
	var rows []categoryRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storageErr(op, err)
	}
	out := make([]model.Category, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

// UpsertCategory implements Store.
func (s *SQLStore) UpsertCategory(ctx context.Context, c model.Category) (*model.Category, error) {
	if strings.TrimSpace(c.Slug) == "" {
		return nil, invalid("category slug is required")
	}
	start := time.Now()
	if c.ID == "" {
		c.ID = s.newID()
	}
	var playedOn any
	if c.PlayedOn != nil {
		playedOn = c.PlayedOn.Unix()
	}
	_, err := s.db.ExecContext(ctx, s.d.upsertCategory,
		c.ID, c.Slug, c.Name, c.Query, c.UpdateQueryTemplate,
		c.IsDynamic, c.IsDaily, c.HasBeenSelected, playedOn, strings.Join(c.Tags, ","))
	observe("upsert_category", true, start)
	if err != nil {
		return nil, storageErr("upsert category", err)
	}
	return s.FindCategoryBySlug(ctx, c.Slug)
}

// FindEntryByURL implements Store.
func (s *SQLStore) FindEntryByURL(ctx context.Context, categoryID, url string) (*model.Entry, error) {
	defer observe("find_entry", false, time.Now())
	var r entryRow
	err := s.db.GetContext(ctx, &r,
		"SELECT "+entryColumns+" FROM entries WHERE category_id = ? AND url = ?", categoryID, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, storageErr("find entry", err)
	}
	e := r.model()
	return &e, nil
}

// CreateOrUpdateEntry implements Store.
func (s *SQLStore) CreateOrUpdateEntry(ctx context.Context, e model.Entry) (*model.Entry, error) {
	return s.upsertEntry(ctx, "upsert_entry", s.d.upsertEntry, e, e.Count)
}

// IncrementEntry implements Store.
func (s *SQLStore) IncrementEntry(ctx context.Context, e model.Entry, delta int) (*model.Entry, error) {
	return s.upsertEntry(ctx, "increment_entry", s.d.incrementEntry, e, delta)
}

func (s *SQLStore) upsertEntry(ctx context.Context, op, stmt string, e model.Entry, count int) (*model.Entry, error) {
	if err := validateEntry(&e); err != nil {
		return nil, err
	}
	start := time.Now()
	if e.ID == "" {
		e.ID = s.newID()
	}
	now := s.now().Unix()
	_, err := s.db.ExecContext(ctx, stmt, e.ID, e.CategoryID, e.Label, e.Norm, e.URL, count, now, now)
	observe(op, true, start)
	if err != nil {
		return nil, storageErr(strings.ReplaceAll(op, "_", " "), err)
	}
	return s.FindEntryByURL(ctx, e.CategoryID, e.URL)
}

// CreateAlias implements Store.
func (s *SQLStore) CreateAlias(ctx context.Context, a model.Alias) (*model.Alias, error) {
	if err := validateAlias(&a); err != nil {
		return nil, err
	}
	start := time.Now()
	if a.ID == "" {
		a.ID = s.newID()
	}
	_, err := s.db.ExecContext(ctx, s.d.insertAlias, a.ID, a.EntryID, a.CategoryID, a.Label, a.Norm)
	observe("create_alias", true, start)
	if err != nil {
		return nil, storageErr("create alias", err)
	}

	var r aliasRow
	if err := s.db.GetContext(ctx, &r,
		"SELECT "+aliasColumns+" FROM aliases WHERE entry_id = ? AND norm = ?", a.EntryID, a.Norm); err != nil {
		return nil, storageErr("read alias", err)
	}
	out := r.model()
	return &out, nil
}

// ListEntriesForCategory implements Store.
func (s *SQLStore) ListEntriesForCategory(ctx context.Context, categoryID string) ([]model.Entry, error) {
	defer observe("list_entries", false, time.Now())
	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT "+entryColumns+" FROM entries WHERE category_id = ? ORDER BY "+s.d.seq, categoryID); err != nil {
		return nil, storageErr("list entries", err)
	}
	out := make([]model.Entry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

// ListAliasesForCategory implements Store.
func (s *SQLStore) ListAliasesForCategory(ctx context.Context, categoryID string) ([]model.Alias, error) {
	defer observe("list_aliases", false, time.Now())
	var rows []aliasRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT "+aliasColumns+" FROM aliases WHERE category_id = ? ORDER BY "+s.d.seq, categoryID); err != nil {
		return nil, storageErr("list aliases", err)
	}
	out := make([]model.Alias, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

// UpdateCategoryDailyState implements Store.
func (s *SQLStore) UpdateCategoryDailyState(ctx context.Context, id string, hasBeenSelected bool, playedOn *time.Time) error {
	defer observe("update_daily_state", true, time.Now())
	var played any
	if playedOn != nil {
		played = playedOn.Unix()
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE categories SET has_been_selected = ?, played_on = ? WHERE id = ?",
		hasBeenSelected, played, id); err != nil {
		return storageErr("update daily state", err)
	}
	return nil
}

// ListDailyEligibleCategories implements Store.
func (s *SQLStore) ListDailyEligibleCategories(ctx context.Context, onlyUnselected bool) ([]model.Category, error) {
	defer observe("list_daily", false, time.Now())
	q := "SELECT " + categoryColumns + " FROM categories WHERE is_daily = 1"
	if onlyUnselected {
		q += " AND has_been_selected = 0"
	}
	return s.selectCategories(ctx, "list daily categories", q+" ORDER BY id")
}

// FindDailyPlayedBetween implements Store.
func (s *SQLStore) FindDailyPlayedBetween(ctx context.Context, from, to time.Time) (*model.Category, error) {
	defer observe("find_daily", false, time.Now())
	var r categoryRow
	err := s.db.GetContext(ctx, &r,
		"SELECT "+categoryColumns+" FROM categories WHERE is_daily = 1 AND played_on >= ? AND played_on < ? ORDER BY id LIMIT 1",
		from.Unix(), to.Unix())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, storageErr("find daily category", err)
	}
	c := r.model()
	return &c, nil
}

// ResetDailySelection implements Store.
func (s *SQLStore) ResetDailySelection(ctx context.Context) error {
	defer observe("reset_daily", true, time.Now())
	if _, err := s.db.ExecContext(ctx, "UPDATE categories SET has_been_selected = 0 WHERE is_daily = 1"); err != nil {
		return storageErr("reset daily selection", err)
	}
	return nil
}

// ClaimDailyCategory implements Store.
func (s *SQLStore) ClaimDailyCategory(ctx context.Context, id string, day time.Time) (bool, error) {
	defer observe("claim_daily", true, time.Now())
	from, to := day.Unix(), day.Add(24*time.Hour).Unix()
	if s.d.claimLocksRows {
		return s.claimLocked(ctx, id, from, to)
	}
	res, err := s.db.ExecContext(ctx, claimGuarded, from, id, from, to)
	if err != nil {
		return false, storageErr("claim daily category", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("claim daily category", err)
	}
	return n == 1, nil
}

// claimLocked serializes claimers on the daily rows.
func (s *SQLStore) claimLocked(ctx context.Context, id string, from, to int64) (won bool, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, storageErr("begin claim", err)
	}
	defer func() {
		if !won {
			_ = tx.Rollback()
		}
	}()

	var locked []string
	if err := tx.SelectContext(ctx, &locked, "SELECT id FROM categories WHERE is_daily = 1 FOR UPDATE"); err != nil {
		return false, storageErr("lock daily categories", err)
	}
	var played int
	if err := tx.GetContext(ctx, &played,
		"SELECT COUNT(*) FROM categories WHERE is_daily = 1 AND played_on >= ? AND played_on < ?", from, to); err != nil {
		return false, storageErr("check daily claim", err)
	}
	if played > 0 {
		return false, nil
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE categories SET has_been_selected = 1, played_on = ? WHERE id = ? AND is_daily = 1", from, id)
	if err != nil {
		return false, storageErr("claim daily category", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("claim daily category", err)
	}
	if n != 1 {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, storageErr("commit claim", err)
	}
	return true, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
