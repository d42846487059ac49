//go:build cgo

package dolt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/dolthub/driver"

	"github.com/tideline/notebook/internal/types"
)

const embeddedOpenMaxElapsed = 30 * time.Second

// defaultReviewThreshold mirrors claims.DefaultThresholds().ReviewThreshold,
// used when a Filter carries NeedsReview but no explicit ReviewThreshold
// (Storage can't import internal/claims without a cycle).
const defaultReviewThreshold = 0.2

func newEmbeddedOpenBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = embeddedOpenMaxElapsed
	return bo
}

// DoltStore implements store.Storage on an embedded Dolt database.
// Every entry write lands as an ordinary SQL insert; a Dolt commit
// records the resulting table state, giving the corpus history and
// diff queries for free.
type DoltStore struct {
	db     *sql.DB
	closed atomic.Bool

	// mu serializes the read-modify-write sequences (sequence counter
	// advance, job leasing, participant edits) this backend can't
	// express as a single SQL statement.
	mu sync.Mutex
}

// New opens (creating if necessary) the Dolt database at cfg.Path and
// brings its schema up to date.
func New(ctx context.Context, cfg Config) (*DoltStore, error) {
	cfg = cfg.withDefaults()

	if info, err := os.Stat(cfg.Path); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("database path %q is a file, not a directory", cfg.Path)
	}
	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}

	initDSN := fmt.Sprintf("file://%s?commitname=%s&commitemail=%s", absPath, cfg.CommitterName, cfg.CommitterEmail)
	dbDSN := fmt.Sprintf("file://%s?commitname=%s&commitemail=%s&database=%s", absPath, cfg.CommitterName, cfg.CommitterEmail, cfg.Database)

	if !cfg.ReadOnly {
		if err := withOpenRetry(ctx, cfg.OpenTimeout, func() error {
			db, err := sql.Open("dolt", initDSN)
			if err != nil {
				return err
			}
			defer db.Close()
			_, err = db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", cfg.Database))
			return err
		}); err != nil {
			return nil, fmt.Errorf("create dolt database: %w", err)
		}
	}

	db, err := sql.Open("dolt", dbDSN)
	if err != nil {
		return nil, fmt.Errorf("open dolt database: %w", err)
	}
	if err := withOpenRetry(ctx, cfg.OpenTimeout, func() error {
		return db.PingContext(context.Background())
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping dolt database: %w", err)
	}

	if !cfg.ReadOnly {
		for _, stmt := range splitSchema(schema) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("init schema: %w", err)
			}
		}
	}

	return &DoltStore{db: db}, nil
}

func withOpenRetry(ctx context.Context, timeout time.Duration, op func() error) error {
	bo := newEmbeddedOpenBackoff()
	if timeout > 0 {
		bo.MaxElapsedTime = timeout
	}
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

func splitSchema(s string) []string {
	var stmts []string
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			stmts = append(stmts, part)
		}
	}
	return stmts
}

func (s *DoltStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const entryColumns = `id, notebook_id, content, content_type, topic, refs, revision_of, fragment_of, fragment_index,
	author, created_at, sequence, entries_revised, references_broken, catalog_shift, orphan,
	claims_status, integration_status, max_friction`

func scanEntry(row rowScanner) (*types.Entry, error) {
	var e types.Entry
	var refsJSON string
	var fragIdx sql.NullInt64
	if err := row.Scan(
		&e.ID, &e.NotebookID, &e.Content, &e.ContentType, &e.Topic, &refsJSON, &e.RevisionOf, &e.FragmentOf, &fragIdx,
		&e.Author, &e.CreatedAt, &e.Sequence, &e.Cost.EntriesRevised, &e.Cost.ReferencesBroken, &e.Cost.CatalogShift, &e.Cost.Orphan,
		&e.ClaimsStatus, &e.IntegrationStatus, &e.MaxFriction,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(refsJSON), &e.References); err != nil {
		return nil, fmt.Errorf("decode references: %w", err)
	}
	if fragIdx.Valid {
		v := uint32(fragIdx.Int64)
		e.FragmentIndex = &v
	}
	return &e, nil
}

func scanNotebook(row rowScanner) (*types.Notebook, error) {
	var nb types.Notebook
	var participantsJSON string
	if err := row.Scan(&nb.ID, &nb.Name, &nb.Owner, &participantsJSON, &nb.CreatedAt, &nb.SequenceCounter); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(participantsJSON), &nb.Participants); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	return &nb, nil
}

func scanComparison(row rowScanner) (*types.Comparison, error) {
	var c types.Comparison
	var contradictionsJSON string
	if err := row.Scan(&c.EntryA, &c.EntryB, &c.Entropy, &c.Friction, &contradictionsJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(contradictionsJSON), &c.Contradictions); err != nil {
		return nil, fmt.Errorf("decode contradictions: %w", err)
	}
	return &c, nil
}

func scanJob(row rowScanner) (*types.Job, error) {
	var j types.Job
	var payload string
	var leaseExpiresAt sql.NullTime
	if err := row.Scan(
		&j.ID, &j.NotebookID, &j.JobType, &payload, &j.Status, &j.Attempts, &j.MaxAttempts,
		&leaseExpiresAt, &j.WorkerID, &j.LastError, &j.CreatedAt,
	); err != nil {
		return nil, err
	}
	j.Payload = []byte(payload)
	if leaseExpiresAt.Valid {
		j.LeaseExpiresAt = leaseExpiresAt.Time
	}
	return &j, nil
}

func requireRowsAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// --- Notebooks ---

func (s *DoltStore) CreateNotebook(ctx context.Context, nb *types.Notebook) error {
	participantsJSON, err := json.Marshal(nb.Participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO notebooks (id, name, owner, participants, created_at, sequence_counter) VALUES (?, ?, ?, ?, ?, ?)`,
		nb.ID, nb.Name, nb.Owner, string(participantsJSON), nb.CreatedAt, nb.SequenceCounter,
	); err != nil {
		return fmt.Errorf("insert notebook: %w", err)
	}
	return nil
}

func (s *DoltStore) GetNotebook(ctx context.Context, id string) (*types.Notebook, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, owner, participants, created_at, sequence_counter FROM notebooks WHERE id = ?`, id)
	nb, err := scanNotebook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotebookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notebook: %w", err)
	}
	return nb, nil
}

func (s *DoltStore) ListNotebooks(ctx context.Context, participant string) ([]*types.Notebook, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, owner, participants, created_at, sequence_counter FROM notebooks`)
	if err != nil {
		return nil, fmt.Errorf("list notebooks: %w", err)
	}
	defer rows.Close()

	var out []*types.Notebook
	for rows.Next() {
		nb, err := scanNotebook(rows)
		if err != nil {
			return nil, err
		}
		if participant == "" || nb.HasPermission(participant, false) {
			out = append(out, nb)
		}
	}
	return out, rows.Err()
}

func (s *DoltStore) RenameNotebook(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notebooks SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("rename notebook: %w", err)
	}
	return requireRowsAffected(res, types.ErrNotebookNotFound)
}

func (s *DoltStore) DeleteNotebook(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete notebook: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM entries WHERE notebook_id = ?`, id)
	if err != nil {
		return fmt.Errorf("list entries for delete: %w", err)
	}
	var entryIDs []string
	for rows.Next() {
		var eid string
		if err := rows.Scan(&eid); err != nil {
			rows.Close()
			return err
		}
		entryIDs = append(entryIDs, eid)
	}
	rows.Close()

	for _, eid := range entryIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM claims WHERE entry_id = ?`, eid); err != nil {
			return fmt.Errorf("delete claims: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM comparisons WHERE entry_a = ? OR entry_b = ?`, eid, eid); err != nil {
			return fmt.Errorf("delete comparisons: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE entry_id = ?`, eid); err != nil {
			return fmt.Errorf("delete embeddings: %w", err)
		}
	}

	for _, stmt := range []string{
		`DELETE FROM entries WHERE notebook_id = ?`,
		`DELETE FROM jobs WHERE notebook_id = ?`,
		`DELETE FROM notebook_config WHERE notebook_id = ?`,
		`DELETE FROM changes WHERE notebook_id = ?`,
		`DELETE FROM notebooks WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete notebook cascade: %w", err)
		}
	}

	return tx.Commit()
}

func (s *DoltStore) getNotebookLocked(ctx context.Context, id string) (*types.Notebook, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, owner, participants, created_at, sequence_counter FROM notebooks WHERE id = ?`, id)
	nb, err := scanNotebook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotebookNotFound
	}
	if err != nil {
		return nil, err
	}
	return nb, nil
}

func (s *DoltStore) saveParticipants(ctx context.Context, notebookID string, participants []types.Participant) error {
	data, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE notebooks SET participants = ? WHERE id = ?`, string(data), notebookID); err != nil {
		return fmt.Errorf("update participants: %w", err)
	}
	return nil
}

func (s *DoltStore) SetParticipant(ctx context.Context, notebookID string, p types.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nb, err := s.getNotebookLocked(ctx, notebookID)
	if err != nil {
		return err
	}
	replaced := false
	for i, existing := range nb.Participants {
		if existing.Entity == p.Entity {
			nb.Participants[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		nb.Participants = append(nb.Participants, p)
	}
	return s.saveParticipants(ctx, notebookID, nb.Participants)
}

func (s *DoltStore) RemoveParticipant(ctx context.Context, notebookID, entity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nb, err := s.getNotebookLocked(ctx, notebookID)
	if err != nil {
		return err
	}
	out := nb.Participants[:0]
	for _, p := range nb.Participants {
		if p.Entity != entity {
			out = append(out, p)
		}
	}
	return s.saveParticipants(ctx, notebookID, out)
}

// --- Entries ---

func (s *DoltStore) NextSequence(ctx context.Context, notebookID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin next sequence: %w", err)
	}
	defer tx.Rollback()

	var current uint64
	if err := tx.QueryRowContext(ctx, `SELECT sequence_counter FROM notebooks WHERE id = ?`, notebookID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, types.ErrNotebookNotFound
		}
		return 0, fmt.Errorf("read sequence counter: %w", err)
	}
	next := current + 1
	if _, err := tx.ExecContext(ctx, `UPDATE notebooks SET sequence_counter = ? WHERE id = ?`, next, notebookID); err != nil {
		return 0, fmt.Errorf("advance sequence counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit sequence advance: %w", err)
	}
	return next, nil
}

func (s *DoltStore) InsertEntry(ctx context.Context, e *types.Entry) error {
	refsJSON, err := json.Marshal(e.References)
	if err != nil {
		return fmt.Errorf("encode references: %w", err)
	}
	var fragIdx any
	if e.FragmentIndex != nil {
		fragIdx = *e.FragmentIndex
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (
			id, notebook_id, content, content_type, topic, refs, revision_of, fragment_of, fragment_index,
			author, created_at, sequence, entries_revised, references_broken, catalog_shift, orphan,
			claims_status, integration_status, max_friction
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.NotebookID, e.Content, e.ContentType, e.Topic, string(refsJSON), e.RevisionOf, e.FragmentOf, fragIdx,
		e.Author, e.CreatedAt, e.Sequence, e.Cost.EntriesRevised, e.Cost.ReferencesBroken, e.Cost.CatalogShift, e.Cost.Orphan,
		e.ClaimsStatus, e.IntegrationStatus, e.MaxFriction,
	); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// WriteEntryBatch assigns each entry its sequence, inserts it, records
// its change event, and enqueues its distill job, all within one
// transaction: either every entry and job in the batch commits, or the
// whole batch rolls back.
func (s *DoltStore) WriteEntryBatch(ctx context.Context, notebookID string, entries []*types.Entry, distillJobs []*types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write batch: %w", err)
	}
	defer tx.Rollback()

	var current uint64
	if err := tx.QueryRowContext(ctx, `SELECT sequence_counter FROM notebooks WHERE id = ?`, notebookID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrNotebookNotFound
		}
		return fmt.Errorf("read sequence counter: %w", err)
	}

	for i, e := range entries {
		current++
		e.Sequence = current
		e.CreatedAt = time.Now()

		refsJSON, err := json.Marshal(e.References)
		if err != nil {
			return fmt.Errorf("encode references: %w", err)
		}
		var fragIdx any
		if e.FragmentIndex != nil {
			fragIdx = *e.FragmentIndex
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entries (
				id, notebook_id, content, content_type, topic, refs, revision_of, fragment_of, fragment_index,
				author, created_at, sequence, entries_revised, references_broken, catalog_shift, orphan,
				claims_status, integration_status, max_friction
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.NotebookID, e.Content, e.ContentType, e.Topic, string(refsJSON), e.RevisionOf, e.FragmentOf, fragIdx,
			e.Author, e.CreatedAt, e.Sequence, e.Cost.EntriesRevised, e.Cost.ReferencesBroken, e.Cost.CatalogShift, e.Cost.Orphan,
			e.ClaimsStatus, e.IntegrationStatus, e.MaxFriction,
		); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO changes (notebook_id, sequence, entry_id, kind, at) VALUES (?, ?, ?, ?, ?)`,
			notebookID, e.Sequence, e.ID, "written", e.CreatedAt,
		); err != nil {
			return fmt.Errorf("record change: %w", err)
		}

		if i < len(distillJobs) {
			j := distillJobs[i]
			var leaseExpiresAt any
			if !j.LeaseExpiresAt.IsZero() {
				leaseExpiresAt = j.LeaseExpiresAt
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO jobs (id, notebook_id, job_type, payload, status, attempts, max_attempts, lease_expires_at, worker_id, last_error, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				j.ID, j.NotebookID, j.JobType, string(j.Payload), j.Status, j.Attempts, j.MaxAttempts, leaseExpiresAt, j.WorkerID, j.LastError, j.CreatedAt,
			); err != nil {
				return fmt.Errorf("enqueue distill job: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE notebooks SET sequence_counter = ? WHERE id = ?`, current, notebookID); err != nil {
		return fmt.Errorf("advance sequence counter: %w", err)
	}

	return tx.Commit()
}

func (s *DoltStore) GetEntry(ctx context.Context, notebookID, entryID string) (*types.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE notebook_id = ? AND id = ?`, notebookID, entryID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

func (s *DoltStore) FindEntryByID(ctx context.Context, entryID string) (*types.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, entryID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find entry: %w", err)
	}
	return e, nil
}

func (s *DoltStore) ListEntries(ctx context.Context, notebookID string) ([]*types.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE notebook_id = ? ORDER BY sequence ASC`, notebookID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []*types.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListEntriesFiltered implements the browse operation of spec §4.6. The
// predicate set is conjunctive and cheap enough per-notebook that
// filtering in Go after one ordered fetch is simpler than compiling it
// to dynamic SQL, and keeps the semantics identical to the in-memory
// backend.
func (s *DoltStore) ListEntriesFiltered(ctx context.Context, notebookID string, f types.Filter) (types.Page, error) {
	all, err := s.ListEntries(ctx, notebookID)
	if err != nil {
		return types.Page{}, err
	}

	var filtered []*types.Entry
	for _, e := range all {
		if f.Query != "" {
			q := strings.ToLower(f.Query)
			if !strings.Contains(strings.ToLower(e.Topic), q) && !strings.Contains(strings.ToLower(string(e.Content)), q) {
				continue
			}
		}
		if f.TopicPrefix != "" && !strings.HasPrefix(e.Topic, f.TopicPrefix) {
			continue
		}
		if f.ClaimsStatus != nil && e.ClaimsStatus != *f.ClaimsStatus {
			continue
		}
		if f.Author != "" && e.Author != f.Author {
			continue
		}
		if f.SequenceMin != nil && e.Sequence < *f.SequenceMin {
			continue
		}
		if f.SequenceMax != nil && e.Sequence > *f.SequenceMax {
			continue
		}
		if f.FragmentOf != "" && e.FragmentOf != f.FragmentOf {
			continue
		}
		if f.HasFrictionAbove != nil && e.MaxFriction <= *f.HasFrictionAbove {
			continue
		}
		if f.NeedsReview != nil {
			threshold := f.ReviewThreshold
			if threshold <= 0 {
				threshold = defaultReviewThreshold
			}
			needsReview := e.MaxFriction > threshold
			if needsReview != *f.NeedsReview {
				continue
			}
		}
		filtered = append(filtered, e)
	}

	if f.FragmentOf != "" {
		sortByFragmentIndex(filtered)
	} else {
		sortBySequenceDesc(filtered)
	}

	total := len(filtered)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(filtered) {
		offset = len(filtered)
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}
	return types.Page{Entries: filtered[offset:end], Total: total}, nil
}

func sortByFragmentIndex(entries []*types.Entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && fragmentIndexOf(entries[j]) < fragmentIndexOf(entries[j-1]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func fragmentIndexOf(e *types.Entry) uint32 {
	if e.FragmentIndex != nil {
		return *e.FragmentIndex
	}
	return 0
}

func sortBySequenceDesc(entries []*types.Entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Sequence > entries[j-1].Sequence; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func (s *DoltStore) ListRevisions(ctx context.Context, notebookID, entryID string) ([]*types.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE notebook_id = ? AND revision_of = ? ORDER BY sequence ASC`, notebookID, entryID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var out []*types.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *DoltStore) UpdateEnrichment(ctx context.Context, e *types.Entry) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entries SET topic = ?, claims_status = ?, integration_status = ?, max_friction = ? WHERE id = ?`,
		e.Topic, e.ClaimsStatus, e.IntegrationStatus, e.MaxFriction, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update enrichment: %w", err)
	}
	return requireRowsAffected(res, types.ErrEntryNotFound)
}

func (s *DoltStore) RecordChange(ctx context.Context, notebookID string, ev types.ChangeEvent) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO changes (notebook_id, sequence, entry_id, kind, at) VALUES (?, ?, ?, ?, ?)`,
		notebookID, ev.Sequence, ev.EntryID, ev.Kind, ev.At,
	); err != nil {
		return fmt.Errorf("record change: %w", err)
	}
	return nil
}

func (s *DoltStore) ListChanges(ctx context.Context, notebookID string, since uint64) ([]types.ChangeEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, entry_id, kind, at FROM changes WHERE notebook_id = ? AND sequence > ? ORDER BY sequence ASC`,
		notebookID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	var out []types.ChangeEvent
	for rows.Next() {
		var ev types.ChangeEvent
		if err := rows.Scan(&ev.Sequence, &ev.EntryID, &ev.Kind, &ev.At); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// --- Claims & comparisons ---

func (s *DoltStore) InsertClaims(ctx context.Context, entryID string, claims []types.Claim) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert claims: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM claims WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("clear existing claims: %w", err)
	}
	for _, c := range claims {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO claims (id, entry_id, ordinal, text, confidence) VALUES (?, ?, ?, ?, ?)`,
			c.ID, entryID, c.Ordinal, c.Text, c.Confidence,
		); err != nil {
			return fmt.Errorf("insert claim: %w", err)
		}
	}
	return tx.Commit()
}

func (s *DoltStore) GetClaims(ctx context.Context, entryID string) ([]types.Claim, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, entry_id, ordinal, text, confidence FROM claims WHERE entry_id = ? ORDER BY ordinal ASC`, entryID)
	if err != nil {
		return nil, fmt.Errorf("get claims: %w", err)
	}
	defer rows.Close()

	var out []types.Claim
	for rows.Next() {
		var c types.Claim
		if err := rows.Scan(&c.ID, &c.EntryID, &c.Ordinal, &c.Text, &c.Confidence); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *DoltStore) ClaimsBatch(ctx context.Context, entryIDs []string) ([]types.ClaimsBatchEntry, error) {
	if len(entryIDs) > 100 {
		entryIDs = entryIDs[:100]
	}
	var out []types.ClaimsBatchEntry
	for _, id := range entryIDs {
		row := s.db.QueryRowContext(ctx, `SELECT id, topic, claims_status, integration_status FROM entries WHERE id = ?`, id)
		var entry types.ClaimsBatchEntry
		if err := row.Scan(&entry.ID, &entry.Topic, &entry.ClaimsStatus, &entry.IntegrationStatus); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("claims batch entry: %w", err)
		}
		claims, err := s.GetClaims(ctx, id)
		if err != nil {
			return nil, err
		}
		entry.Claims = claims
		out = append(out, entry)
	}
	return out, nil
}

func (s *DoltStore) UpsertComparison(ctx context.Context, c types.Comparison) error {
	a, b := c.Pair()
	contradictionsJSON, err := json.Marshal(c.Contradictions)
	if err != nil {
		return fmt.Errorf("encode contradictions: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO comparisons (entry_a, entry_b, entropy, friction, contradictions)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE entropy = VALUES(entropy), friction = VALUES(friction), contradictions = VALUES(contradictions)`,
		a, b, c.Entropy, c.Friction, string(contradictionsJSON),
	); err != nil {
		return fmt.Errorf("upsert comparison: %w", err)
	}
	return nil
}

func (s *DoltStore) GetComparison(ctx context.Context, a, b string) (*types.Comparison, error) {
	key := types.Comparison{EntryA: a, EntryB: b}
	ka, kb := key.Pair()
	row := s.db.QueryRowContext(ctx, `SELECT entry_a, entry_b, entropy, friction, contradictions FROM comparisons WHERE entry_a = ? AND entry_b = ?`, ka, kb)
	c, err := scanComparison(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get comparison: %w", err)
	}
	return c, nil
}

func (s *DoltStore) ComparisonsForEntry(ctx context.Context, entryID string) ([]types.Comparison, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entry_a, entry_b, entropy, friction, contradictions FROM comparisons WHERE entry_a = ? OR entry_b = ?`, entryID, entryID)
	if err != nil {
		return nil, fmt.Errorf("comparisons for entry: %w", err)
	}
	defer rows.Close()

	var out []types.Comparison
	for rows.Next() {
		c, err := scanComparison(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// --- Jobs ---

func (s *DoltStore) EnqueueJob(ctx context.Context, j *types.Job) error {
	var leaseExpiresAt any
	if !j.LeaseExpiresAt.IsZero() {
		leaseExpiresAt = j.LeaseExpiresAt
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, notebook_id, job_type, payload, status, attempts, max_attempts, lease_expires_at, worker_id, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.NotebookID, j.JobType, string(j.Payload), j.Status, j.Attempts, j.MaxAttempts, leaseExpiresAt, j.WorkerID, j.LastError, j.CreatedAt,
	); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func (s *DoltStore) LeaseNext(ctx context.Context, notebookID, workerID string, jobType *types.JobType, leaseTTL time.Duration) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	query := `SELECT id, notebook_id, job_type, payload, status, attempts, max_attempts, lease_expires_at, worker_id, last_error, created_at
		FROM jobs WHERE notebook_id = ? AND (status = ? OR (status = ? AND lease_expires_at < ?))`
	args := []any{notebookID, types.JobPending, types.JobInProgress, now}
	if jobType != nil {
		query += ` AND job_type = ?`
		args = append(args, *jobType)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lease candidates: %w", err)
	}
	var candidate *types.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		candidate = j
		break
	}
	rows.Close()
	if candidate == nil {
		return nil, nil
	}

	candidate.Status = types.JobInProgress
	candidate.Attempts++
	candidate.WorkerID = workerID
	candidate.LeaseExpiresAt = now.Add(leaseTTL)

	if _, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempts = ?, worker_id = ?, lease_expires_at = ? WHERE id = ?`,
		candidate.Status, candidate.Attempts, candidate.WorkerID, candidate.LeaseExpiresAt, candidate.ID,
	); err != nil {
		return nil, fmt.Errorf("lease job: %w", err)
	}
	return candidate, nil
}

func (s *DoltStore) getJob(ctx context.Context, jobID string) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, notebook_id, job_type, payload, status, attempts, max_attempts, lease_expires_at, worker_id, last_error, created_at FROM jobs WHERE id = ?`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (s *DoltStore) CompleteJob(ctx context.Context, jobID, workerID string) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status == types.JobCompleted {
		return nil, types.ErrStaleLease
	}
	if j.Status != types.JobInProgress || j.WorkerID != workerID {
		return nil, types.ErrStaleLease
	}
	j.Status = types.JobCompleted
	if _, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = ? WHERE id = ?`, j.Status, j.ID); err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}
	return j, nil
}

func (s *DoltStore) FailJob(ctx context.Context, jobID, workerID, errMsg string) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != types.JobInProgress || j.WorkerID != workerID {
		return nil, types.ErrStaleLease
	}
	j.LastError = errMsg
	var leaseExpiresAt any
	if j.Attempts < j.MaxAttempts {
		j.Status = types.JobPending
		j.WorkerID = ""
		j.LeaseExpiresAt = time.Time{}
	} else {
		j.Status = types.JobFailed
		leaseExpiresAt = j.LeaseExpiresAt
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, worker_id = ?, lease_expires_at = ?, last_error = ? WHERE id = ?`,
		j.Status, j.WorkerID, leaseExpiresAt, j.LastError, j.ID,
	); err != nil {
		return nil, fmt.Errorf("fail job: %w", err)
	}
	return j, nil
}

func (s *DoltStore) GetJob(ctx context.Context, jobID string) (*types.Job, error) {
	return s.getJob(ctx, jobID)
}

func (s *DoltStore) JobStats(ctx context.Context, notebookID string) (map[types.JobType]map[types.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT job_type, status, COUNT(*) FROM jobs WHERE notebook_id = ? GROUP BY job_type, status`, notebookID)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	out := make(map[types.JobType]map[types.JobStatus]int)
	for rows.Next() {
		var jobType types.JobType
		var status types.JobStatus
		var count int
		if err := rows.Scan(&jobType, &status, &count); err != nil {
			return nil, err
		}
		if out[jobType] == nil {
			out[jobType] = make(map[types.JobStatus]int)
		}
		out[jobType][status] = count
	}
	return out, rows.Err()
}

// --- Embeddings ---

func (s *DoltStore) SetEmbedding(ctx context.Context, entryID string, vec []float32) error {
	e, err := s.FindEntryByID(ctx, entryID)
	if err != nil {
		return err
	}
	vecJSON, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (entry_id, notebook_id, vector) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE vector = VALUES(vector)`,
		entryID, e.NotebookID, string(vecJSON),
	); err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}
	return nil
}

func (s *DoltStore) GetEmbedding(ctx context.Context, entryID string) ([]float32, bool, error) {
	var vecJSON string
	err := s.db.QueryRowContext(ctx, `SELECT vector FROM embeddings WHERE entry_id = ?`, entryID).Scan(&vecJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get embedding: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
		return nil, false, fmt.Errorf("decode embedding: %w", err)
	}
	return vec, true, nil
}

func (s *DoltStore) ListEmbeddings(ctx context.Context, notebookID string) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT entry_id, vector FROM embeddings WHERE notebook_id = ?`, notebookID)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var entryID, vecJSON string
		if err := rows.Scan(&entryID, &vecJSON); err != nil {
			return nil, err
		}
		var vec []float32
		if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
		out[entryID] = vec
	}
	return out, rows.Err()
}

// --- Config ---

func (s *DoltStore) SetConfig(ctx context.Context, notebookID, key, value string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO notebook_config (notebook_id, config_key, config_value) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE config_value = VALUES(config_value)`,
		notebookID, key, value,
	); err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	return nil
}

func (s *DoltStore) GetConfig(ctx context.Context, notebookID, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT config_value FROM notebook_config WHERE notebook_id = ? AND config_key = ?`, notebookID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get config: %w", err)
	}
	return value, nil
}
