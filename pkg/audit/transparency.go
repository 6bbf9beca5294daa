package audit

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"runtime"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/civicmind/civicmind/pkg/config"
)

const transparencyCollection = "decisions"

// embeddingDim for the local feature-hash embedding. Oversight tooling only
// needs coarse similarity between decision summaries, not model-grade
// embeddings, so the sink stays free of external services.
const embeddingDim = 128

// Transparency mirrors audit records into an embedded vector store so
// oversight tooling can search decisions semantically. It is strictly
// write-only from the service's perspective and always best-effort: a failed
// write never fails the pipeline. A nil *Transparency is a no-op.
type Transparency struct {
	db  *chromem.DB
	col *chromem.Collection
}

// NewTransparency opens the sink. Disabled config returns nil, which every
// method accepts.
func NewTransparency(cfg *config.TransparencyConfig) (*Transparency, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var db *chromem.DB
	if cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create transparency dir: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("open transparency store: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	col, err := db.GetOrCreateCollection(transparencyCollection, nil, localEmbedding)
	if err != nil {
		return nil, fmt.Errorf("open transparency collection: %w", err)
	}
	return &Transparency{db: db, col: col}, nil
}

// Write mirrors one record into the sink.
func (t *Transparency) Write(ctx context.Context, rec *Record) error {
	if t == nil {
		return nil
	}
	location := ""
	if rec.Request != nil {
		location = rec.Request.Location
	}
	doc := chromem.Document{
		ID:      rec.ID,
		Content: transparencyText(rec),
		Metadata: map[string]string{
			"agent":    string(rec.AgentType),
			"decision": string(rec.Decision),
			"location": location,
			"risk":     string(rec.Risk),
		},
	}
	if err := t.col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("transparency write: %w", err)
	}
	return nil
}

// transparencyText renders the searchable summary of a record.
func transparencyText(rec *Record) string {
	var b strings.Builder
	if rec.Request != nil {
		fmt.Fprintf(&b, "%s at %s. ", rec.Request.Type, rec.Request.Location)
	}
	fmt.Fprintf(&b, "Agent %s decided %s (confidence %.2f, risk %s). ",
		rec.AgentType, rec.Decision, rec.Confidence, rec.Risk)
	if rec.Rationale != "" {
		b.WriteString(rec.Rationale)
	}
	return b.String()
}

// localEmbedding is a deterministic feature-hash embedding over whitespace
// tokens, L2-normalized.
func localEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDim)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%embeddingDim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
