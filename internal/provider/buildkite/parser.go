package buildkite

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bgricker/stepstats/internal/provider"
	"golang.org/x/sync/errgroup"
)

const ProviderName = "buildkite"

// Parser loads saved Buildkite build pages from disk.
type Parser struct {
	Root string
}

// NewParser constructs a Parser that resolves page paths relative to root.
func NewParser(root string) *Parser {
	return &Parser{Root: root}
}

// ParseFiles decodes the supplied page files concurrently. Builds are returned
// in file order, then page order.
func (p *Parser) ParseFiles(paths []string) ([]provider.Build, error) {
	pages := make([][]provider.Build, len(paths))

	var g errgroup.Group
	for i, relPath := range paths {
		full := relPath
		if !filepath.IsAbs(full) {
			full = filepath.Join(p.Root, relPath)
		}
		g.Go(func() error {
			builds, err := parseFile(full, relPath)
			if err != nil {
				return err
			}
			pages[i] = builds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []provider.Build
	for _, page := range pages {
		out = append(out, page...)
	}
	return out, nil
}

func parseFile(fullPath, displayPath string) ([]provider.Build, error) {
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("open builds %q: %w", displayPath, err)
	}
	defer f.Close()
	return Decode(f, displayPath)
}

// DecodePages decodes raw page bodies as returned by the REST API or the cache.
func DecodePages(pages [][]byte, source string) ([]provider.Build, error) {
	var out []provider.Build
	for i, body := range pages {
		builds, err := Decode(bytes.NewReader(body), fmt.Sprintf("%s page %d", source, i+1))
		if err != nil {
			return nil, err
		}
		out = append(out, builds...)
	}
	return out, nil
}

// Decode reads a JSON array of builds and converts it into validated records.
func Decode(r io.Reader, source string) ([]provider.Build, error) {
	var docs []buildDocument
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("parse builds %q: %w", source, err)
	}

	builds := make([]provider.Build, 0, len(docs))
	for _, doc := range docs {
		build, err := convertBuild(doc)
		if err != nil {
			return nil, fmt.Errorf("parse builds %q: %w", source, err)
		}
		if err := build.Validate(); err != nil {
			return nil, fmt.Errorf("parse builds %q: %w", source, err)
		}
		builds = append(builds, build)
	}
	return builds, nil
}

func convertBuild(doc buildDocument) (provider.Build, error) {
	build := provider.Build{
		ID:     doc.ID,
		Number: doc.Number,
		WebURL: doc.WebURL,
		Branch: doc.Branch,
		State:  provider.State(doc.State),
	}
	if doc.Pipeline != nil {
		build.Pipeline = doc.Pipeline.Slug
	}

	if doc.Jobs == nil {
		return provider.Build{}, fmt.Errorf("%w: build #%d has no jobs field", provider.ErrInvalidRecord, doc.Number)
	}
	build.Jobs = make([]provider.Job, 0, len(*doc.Jobs))
	for _, jobDoc := range *doc.Jobs {
		job := provider.Job{
			ID:            jobDoc.ID,
			Type:          jobDoc.Type,
			Name:          jobDoc.Name,
			ParallelIndex: jobDoc.ParallelGroupIndex,
			RetriesCount:  jobDoc.RetriesCount,
			ExitStatus:    jobDoc.ExitStatus,
		}
		if jobDoc.StepKey != nil {
			job.StepKey = *jobDoc.StepKey
		}
		if jobDoc.State != nil {
			job.State = provider.State(*jobDoc.State)
		}

		created, err := parseTimestamp(jobDoc.CreatedAt)
		if err != nil {
			return provider.Build{}, fmt.Errorf("build #%d job %s created_at: %w", doc.Number, jobDoc.ID, err)
		}
		if created != nil {
			job.CreatedAt = *created
		}
		if job.StartedAt, err = parseTimestamp(jobDoc.StartedAt); err != nil {
			return provider.Build{}, fmt.Errorf("build #%d job %s started_at: %w", doc.Number, jobDoc.ID, err)
		}
		if job.FinishedAt, err = parseTimestamp(jobDoc.FinishedAt); err != nil {
			return provider.Build{}, fmt.Errorf("build #%d job %s finished_at: %w", doc.Number, jobDoc.ID, err)
		}

		build.Jobs = append(build.Jobs, job)
	}
	return build, nil
}

func parseTimestamp(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, *raw)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", *raw, err)
	}
	return &ts, nil
}

type buildDocument struct {
	ID       string            `json:"id"`
	Number   int               `json:"number"`
	WebURL   string            `json:"web_url"`
	Branch   string            `json:"branch"`
	State    string            `json:"state"`
	Pipeline *pipelineDocument `json:"pipeline"`
	Jobs     *[]jobDocument    `json:"jobs"`
}

type pipelineDocument struct {
	Slug string `json:"slug"`
}

type jobDocument struct {
	ID                 string  `json:"id"`
	Type               string  `json:"type"`
	Name               string  `json:"name"`
	StepKey            *string `json:"step_key"`
	ParallelGroupIndex *int    `json:"parallel_group_index"`
	State              *string `json:"state"`
	CreatedAt          *string `json:"created_at"`
	StartedAt          *string `json:"started_at"`
	FinishedAt         *string `json:"finished_at"`
	RetriesCount       *int    `json:"retries_count"`
	ExitStatus         *int    `json:"exit_status"`
}
