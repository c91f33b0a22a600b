package memory

import (
	_ "embed"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

//go:embed schema_episodic.sql
var schemaEpisodic string

// EpisodicStore is the encrypted on-disk history of individual task
// runs. Recall-by-similarity loads every row carrying an embedding and
// ranks by cosine similarity — acceptable at the scale one orchestrator
// process accumulates between lifecycle sweeps.
type EpisodicStore struct {
	store    *SealedStore
	embedder EmbeddingProvider
}

// NewEpisodicStore opens (or creates) the episodic tier at dbDir/episodic.db[.enc].
func NewEpisodicStore(dbDir, keychainService, keyEnv string, embedder EmbeddingProvider) (*EpisodicStore, error) {
	store, err := OpenSealed(dbDir, "episodic", keychainService, keyEnv, schemaEpisodic)
	if err != nil {
		return nil, err
	}
	return &EpisodicStore{store: store, embedder: embedder}, nil
}

func (e *EpisodicStore) KeySource() string { return e.store.KeySource() }
func (e *EpisodicStore) Close() error      { return e.store.Close() }

// Store persists a task record, computing its embedding from the
// refined task text if one isn't already set (open question (a):
// embeddings always key off the refined task, never the raw one).
func (e *EpisodicStore) Store(rec *TaskRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.LastAccessed = now
	if rec.Tier == "" {
		rec.Tier = TierEpisodic
	}

	if len(rec.Embedding) == 0 && e.embedder != nil {
		vec, err := e.embedder.Embed(rec.RefinedTask)
		if err == nil {
			rec.Embedding = vec
		}
	}

	_, err := e.store.DB.Exec(`
		INSERT INTO episodic_memories
			(id, created_at, last_accessed, access_count, current_tier,
			 raw_task, refined_task, class, reference, tools_used,
			 outcome, duration_ms, error_text, summary, result_payload,
			 rating, embedding)
		VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			outcome=excluded.outcome, duration_ms=excluded.duration_ms,
			error_text=excluded.error_text, summary=excluded.summary,
			result_payload=excluded.result_payload, embedding=excluded.embedding,
			last_accessed=excluded.last_accessed, current_tier=excluded.current_tier
	`,
		rec.ID, rec.CreatedAt, rec.LastAccessed, string(rec.Tier),
		rec.RawTask, rec.RefinedTask, rec.Class, rec.Reference, encodeStrings(rec.Tools),
		string(rec.Outcome), rec.DurationMS, rec.ErrorText, rec.Summary, rec.ResultPayload,
		rec.Rating, encodeEmbedding(rec.Embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to store episodic entry: %w", err)
	}
	return nil
}

func (e *EpisodicStore) scanRow(row interface {
	Scan(dest ...any) error
}) (*TaskRecord, error) {
	var rec TaskRecord
	var tier, tools, embBlob []byte
	var outcome string
	if err := row.Scan(
		&rec.ID, &rec.CreatedAt, &rec.LastAccessed, &rec.AccessCount, &tier,
		&rec.RawTask, &rec.RefinedTask, &rec.Class, &rec.Reference, &tools,
		&outcome, &rec.DurationMS, &rec.ErrorText, &rec.Summary, &rec.ResultPayload,
		&rec.Rating, &embBlob,
	); err != nil {
		return nil, err
	}
	rec.Tier = Tier(tier)
	rec.Outcome = Outcome(outcome)
	rec.Tools = decodeStrings(string(tools))
	rec.Embedding = decodeEmbedding(embBlob)
	return &rec, nil
}

const episodicColumns = `id, created_at, last_accessed, access_count, current_tier,
	raw_task, refined_task, class, reference, tools_used,
	outcome, duration_ms, error_text, summary, result_payload, rating, embedding`

// RecallByID fetches one episodic entry, touching its access metadata.
func (e *EpisodicStore) RecallByID(id string) (*TaskRecord, error) {
	e.touch(id)
	row := e.store.DB.QueryRow(`SELECT `+episodicColumns+` FROM episodic_memories WHERE id = ?`, id)
	rec, err := e.scanRow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("episodic entry %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to recall episodic entry: %w", err)
	}
	return rec, nil
}

// RecallSimilar returns the top-k episodic entries by cosine similarity
// of their embedding to query's, touching each returned row.
func (e *EpisodicStore) RecallSimilar(query []float32, k int, onlySuccess bool, class string) ([]*TaskRecord, error) {
	sqlQuery := `SELECT ` + episodicColumns + ` FROM episodic_memories WHERE embedding IS NOT NULL`
	var args []any
	if onlySuccess {
		sqlQuery += ` AND outcome = ?`
		args = append(args, string(OutcomeSuccess))
	}
	if class != "" {
		sqlQuery += ` AND class = ?`
		args = append(args, class)
	}

	rows, err := e.store.DB.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodic entries: %w", err)
	}
	defer rows.Close()

	var candidates []*TaskRecord
	for rows.Next() {
		rec, err := e.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episodic row: %w", err)
		}
		candidates = append(candidates, rec)
	}

	type scored struct {
		rec   *TaskRecord
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, rec := range candidates {
		ranked = append(ranked, scored{rec, cosineSimilarity(query, rec.Embedding)})
	}
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].score > ranked[j-1].score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]*TaskRecord, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, ranked[i].rec)
		e.touch(ranked[i].rec.ID)
	}
	return out, nil
}

func (e *EpisodicStore) touch(id string) {
	_, _ = e.store.DB.Exec(`UPDATE episodic_memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`, time.Now(), id)
}

// AllForLifecycle returns every episodic entry for the lifecycle pass
// to score — intentionally unfiltered since scoring needs recency,
// frequency, and outcome for every row.
func (e *EpisodicStore) AllForLifecycle() ([]*TaskRecord, error) {
	rows, err := e.store.DB.Query(`SELECT ` + episodicColumns + ` FROM episodic_memories`)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodic entries: %w", err)
	}
	defer rows.Close()

	var out []*TaskRecord
	for rows.Next() {
		rec, err := e.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (e *EpisodicStore) setTier(id string, tier Tier) error {
	_, err := e.store.DB.Exec(`UPDATE episodic_memories SET current_tier = ? WHERE id = ?`, string(tier), id)
	return err
}

func (e *EpisodicStore) delete(id string) error {
	_, err := e.store.DB.Exec(`DELETE FROM episodic_memories WHERE id = ?`, id)
	return err
}

// Archive moves a compressed snapshot of the entry into the archive
// table and removes the live row.
func (e *EpisodicStore) archive(rec *TaskRecord, snapshot []byte) error {
	tx, err := e.store.DB.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO archived_memories (id, class, archived_at, snapshot) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Class, time.Now(), snapshot); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`DELETE FROM episodic_memories WHERE id = ?`, rec.ID); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ArchivedSnapshot returns the compressed snapshot stored for id in
// the archive table.
func (e *EpisodicStore) ArchivedSnapshot(id string) ([]byte, error) {
	var blob []byte
	err := e.store.DB.QueryRow(`SELECT snapshot FROM archived_memories WHERE id = ?`, id).Scan(&blob)
	if err != nil {
		return nil, fmt.Errorf("failed to read archived snapshot: %w", err)
	}
	return blob, nil
}

// ReferencedImages returns the distinct non-empty references cited by
// successful episodic entries, used by cleanup's image GC.
func (e *EpisodicStore) ReferencedImages(since time.Time) (map[string]bool, error) {
	rows, err := e.store.DB.Query(`SELECT DISTINCT reference FROM episodic_memories WHERE outcome = ? AND reference != '' AND created_at >= ?`,
		string(OutcomeSuccess), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query referenced images: %w", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		out[ref] = true
	}
	return out, nil
}
