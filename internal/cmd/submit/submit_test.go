package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"path/filepath"
	"strings"
	"testing"

	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage/sqlite"
)

func parse(t *testing.T, args ...string) Config {
	t.Helper()
	cfg, err := ParseConfig(flag.NewFlagSet("submit", flag.ContinueOnError), args)
	if err != nil {
		t.Fatalf("parse config %v: %v", args, err)
	}
	return cfg
}

func TestParseConfig_ParsesKindAndFlags(t *testing.T) {
	t.Setenv("DENDRITE_DB_PATH", "/tmp/env.db")

	cfg := parse(t, "page", "-incoming-option", "12-b-0", "-option", "Open", "-option", "Knock", "-author", "Bea")
	if cfg.Kind != KindPage {
		t.Fatalf("kind = %q, want page", cfg.Kind)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("db path = %q, want env value", cfg.DBPath)
	}
	if cfg.IncomingOption != "12-b-0" || cfg.Author != "Bea" {
		t.Fatalf("fields = %+v", cfg)
	}
	if len(cfg.Options) != 2 || cfg.Options[1] != "Knock" {
		t.Fatalf("options = %q", cfg.Options)
	}
}

func TestParseConfig_UsageErrors(t *testing.T) {
	cases := [][]string{
		nil,
		{"chapter"},
		{"moderate"},
		{"page", "-content", "x", "-content-file", "y.txt"},
	}
	for _, args := range cases {
		_, err := ParseConfig(flag.NewFlagSet("submit", flag.ContinueOnError), args)
		if !errors.Is(err, ErrUsage) {
			t.Fatalf("args %v err = %v, want ErrUsage", args, err)
		}
	}
}

func TestRunStoryWritesRecord(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "dendrite.db")
	cfg := parse(t, "story", "-db-path", dbPath, "-title", "Dawn", "-content-file", "-", "-option", "Wake")

	var out bytes.Buffer
	if err := Run(context.Background(), cfg, strings.NewReader("Light.\r\n"), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	var record struct {
		ID      string
		Title   string
		Content string
		Author  string
		Options []string
	}
	if err := json.Unmarshal(out.Bytes(), &record); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	if record.Title != "Dawn" || record.Content != "Light.\n" || record.Author != "???" {
		t.Fatalf("record = %+v", record)
	}

	store, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer store.Close()
	if _, err := store.GetStorySubmission(context.Background(), record.ID); err != nil {
		t.Fatalf("stored submission %s: %v", record.ID, err)
	}
}

func TestRunPageRejectionIsLocalized(t *testing.T) {
	cfg := parse(t, "page", "-db-path", filepath.Join(t.TempDir(), "dendrite.db"), "-page", "99")

	err := Run(context.Background(), cfg, strings.NewReader(""), &bytes.Buffer{})
	if !errors.Is(err, ErrRejected) || !strings.Contains(err.Error(), "Page 99 not found") {
		t.Fatalf("err = %v, want localized page not found", err)
	}
}

func TestRunTokenThenRating(t *testing.T) {
	t.Setenv("DENDRITE_AUTH_SIGNING_KEY", "test-key")

	var token bytes.Buffer
	if err := Run(context.Background(), parse(t, "token", "-subject", "mod-1"), nil, &token); err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if strings.Count(strings.TrimSpace(token.String()), ".") != 2 {
		t.Fatalf("token = %q, want a JWT", token.String())
	}

	cfg := parse(t, "rating",
		"-db-path", filepath.Join(t.TempDir(), "dendrite.db"),
		"-token", strings.TrimSpace(token.String()),
		"-variant", "stories/s1",
		"-approve", "true",
	)
	err := Run(context.Background(), cfg, nil, &bytes.Buffer{})
	if !errors.Is(err, ErrRejected) || !strings.Contains(err.Error(), "Invalid variant stories/s1") {
		t.Fatalf("err = %v, want invalid variant", err)
	}
}

func TestRunAssignThenRateJob(t *testing.T) {
	t.Setenv("DENDRITE_AUTH_SIGNING_KEY", "test-key")
	dbPath := filepath.Join(t.TempDir(), "dendrite.db")
	variant := domain.StoryRef{StoryID: "s1"}.Page("p1").Variant("v1")

	store, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	batch := store.NewBatch()
	batch.CreatePage(variant.Page(), domain.Page{Number: 3})
	batch.CreateVariant(variant, domain.Variant{Name: "a", Content: "A hall.", Rand: 0.4})
	if err := batch.Commit(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close seed store: %v", err)
	}

	var token bytes.Buffer
	if err := Run(context.Background(), parse(t, "token", "-subject", "mod-1"), nil, &token); err != nil {
		t.Fatalf("issue token: %v", err)
	}
	auth := strings.TrimSpace(token.String())

	var out bytes.Buffer
	if err := Run(context.Background(), parse(t, "assign", "-db-path", dbPath, "-token", auth), nil, &out); err != nil {
		t.Fatalf("assign: %v", err)
	}
	var job struct {
		ModeratorID string
		Variant     domain.VariantRef
	}
	if err := json.Unmarshal(out.Bytes(), &job); err != nil {
		t.Fatalf("decode job %q: %v", out.String(), err)
	}
	if job.ModeratorID != "mod-1" || job.Variant != variant {
		t.Fatalf("job = %+v", job)
	}

	out.Reset()
	if err := Run(context.Background(), parse(t, "rating", "-db-path", dbPath, "-token", auth, "-approve", "false"), nil, &out); err != nil {
		t.Fatalf("rate job: %v", err)
	}
	var rating struct {
		VariantID string
	}
	if err := json.Unmarshal(out.Bytes(), &rating); err != nil {
		t.Fatalf("decode rating %q: %v", out.String(), err)
	}
	if rating.VariantID != variant.Path() {
		t.Fatalf("rating variant = %q, want %q", rating.VariantID, variant.Path())
	}

	err = Run(context.Background(), parse(t, "rating", "-db-path", dbPath, "-token", auth, "-approve", "true"), nil, &bytes.Buffer{})
	if !errors.Is(err, ErrRejected) || !strings.Contains(err.Error(), "No moderation job assigned") {
		t.Fatalf("second rating err = %v, want no job", err)
	}
}

func TestRunReport(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "dendrite.db")

	var out bytes.Buffer
	if err := Run(context.Background(), parse(t, "report", "-db-path", dbPath, "-variant", " 3-a "), nil, &out); err != nil {
		t.Fatalf("report: %v", err)
	}
	var report struct {
		ID      string
		Variant string
	}
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report %q: %v", out.String(), err)
	}
	if report.ID == "" || report.Variant != "3-a" {
		t.Fatalf("report = %+v", report)
	}

	err := Run(context.Background(), parse(t, "report", "-db-path", dbPath), nil, &bytes.Buffer{})
	if !errors.Is(err, ErrRejected) || !strings.Contains(err.Error(), "Missing or invalid variant") {
		t.Fatalf("blank report err = %v, want missing variant", err)
	}
}

func TestRunRatingRejectsBadVerdict(t *testing.T) {
	cfg := parse(t, "rating", "-db-path", filepath.Join(t.TempDir(), "dendrite.db"), "-approve", "maybe")
	if err := Run(context.Background(), cfg, nil, &bytes.Buffer{}); !errors.Is(err, ErrUsage) {
		t.Fatalf("err = %v, want ErrUsage", err)
	}
}

func TestRunTokenRequiresSigningKey(t *testing.T) {
	t.Setenv("DENDRITE_AUTH_SIGNING_KEY", "")
	if err := Run(context.Background(), parse(t, "token", "-subject", "a"), nil, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error without signing key")
	}
}
