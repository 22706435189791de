// Package submit parses submit command flags and records one submission,
// rating, moderation job, report, or author token.
package submit

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/dendrite/internal/platform/cmd"
	apperrors "github.com/louisbranch/dendrite/internal/platform/errors"
	"github.com/louisbranch/dendrite/internal/services/dendrite/app"
	"github.com/louisbranch/dendrite/internal/services/dendrite/intake"
)

// Submission kinds, given as the first argument.
const (
	KindPage   = "page"
	KindStory  = "story"
	KindRating = "rating"
	KindAssign = "assign"
	KindReport = "report"
	KindToken  = "token"
)

// ErrUsage marks invalid command lines.
var ErrUsage = errors.New("usage: submit page|story|rating|assign|report|token [flags]")

// ErrRejected marks submissions refused for bad input rather than a store
// failure.
var ErrRejected = errors.New("submission rejected")

// optionList collects repeated -option flags.
type optionList []string

func (o *optionList) String() string {
	return strings.Join(*o, ", ")
}

func (o *optionList) Set(value string) error {
	*o = append(*o, value)
	return nil
}

// Config holds submit command configuration. Variables carry the DENDRITE_
// prefix.
type Config struct {
	Backend          string `env:"BACKEND" envDefault:"sqlite"`
	DBPath           string `env:"DB_PATH" envDefault:"data/dendrite.db"`
	FirestoreProject string `env:"FIRESTORE_PROJECT"`
	SigningKey       string `env:"AUTH_SIGNING_KEY"`
	Locale           string `env:"LOCALE" envDefault:"en-US"`
	Token            string `env:"AUTH_TOKEN"`

	Kind           string
	IncomingOption string
	Page           string
	Title          string
	Content        string
	ContentFile    string
	Author         string
	Options        []string
	VariantID      string
	Verdict        string
	Subject        string
	TokenTTL       time.Duration
}

// ParseConfig parses environment, the kind argument, and flags.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if len(args) == 0 {
		return Config{}, ErrUsage
	}
	cfg.Kind = strings.ToLower(strings.TrimSpace(args[0]))
	switch cfg.Kind {
	case KindPage, KindStory, KindRating, KindAssign, KindReport, KindToken:
	default:
		return Config{}, fmt.Errorf("%w: unknown kind %q", ErrUsage, args[0])
	}

	var options optionList
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Storage backend: sqlite or firestore")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The SQLite database path")
	fs.StringVar(&cfg.FirestoreProject, "firestore-project", cfg.FirestoreProject, "The Firestore project id")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "Locale for validation messages")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "Bearer token identifying the author or moderator")
	fs.StringVar(&cfg.IncomingOption, "incoming-option", "", "Option followed to the new page, like 12-b-0")
	fs.StringVar(&cfg.Page, "page", "", "Existing page number to add a variant to")
	fs.StringVar(&cfg.Title, "title", "", "Story title")
	fs.StringVar(&cfg.Content, "content", "", "Page content")
	fs.StringVar(&cfg.ContentFile, "content-file", "", "Read page content from a file, - for stdin")
	fs.StringVar(&cfg.Author, "author", "", "Author display name")
	fs.Var(&options, "option", "Option text offered at the end of the page (repeatable)")
	fs.StringVar(&cfg.VariantID, "variant", "", "Variant to rate or report; rating without it rates the assigned job")
	fs.StringVar(&cfg.Verdict, "approve", "", "Rating verdict: true or false")
	fs.StringVar(&cfg.Subject, "subject", "", "Author id to issue a token for")
	fs.DurationVar(&cfg.TokenTTL, "ttl", 24*time.Hour, "Issued token lifetime")
	if err := entrypoint.ParseArgs(fs, args[1:]); err != nil {
		return Config{}, err
	}
	cfg.Options = options
	if cfg.Content != "" && cfg.ContentFile != "" {
		return Config{}, fmt.Errorf("%w: -content and -content-file are exclusive", ErrUsage)
	}
	return cfg, nil
}

// Run executes the configured kind and writes the stored record to out as
// JSON.
func Run(ctx context.Context, cfg Config, stdin io.Reader, out io.Writer) error {
	if cfg.Kind == KindToken {
		return issueToken(cfg, out)
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSubmit, func(ctx context.Context) error {
		return submit(ctx, cfg, stdin, out)
	})
}

func submit(ctx context.Context, cfg Config, stdin io.Reader, out io.Writer) error {
	content, err := readContent(cfg, stdin)
	if err != nil {
		return err
	}
	authors, err := authorResolver(cfg)
	if err != nil {
		return err
	}

	store, err := app.OpenStore(ctx, app.StoreConfig{
		Backend:          cfg.Backend,
		DBPath:           cfg.DBPath,
		FirestoreProject: cfg.FirestoreProject,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close store: %v", closeErr)
		}
	}()
	service, err := intake.NewService(store, authors, nil)
	if err != nil {
		return err
	}

	authorization := ""
	if token := strings.TrimSpace(cfg.Token); token != "" {
		authorization = "Bearer " + token
	}

	var record any
	switch cfg.Kind {
	case KindPage:
		record, err = service.SubmitPage(ctx, intake.PageRequest{
			IncomingOption: cfg.IncomingOption,
			Page:           cfg.Page,
			Content:        content,
			Author:         cfg.Author,
			Options:        cfg.Options,
			Authorization:  authorization,
		})
	case KindStory:
		record, err = service.SubmitStory(ctx, intake.StoryRequest{
			Title:         cfg.Title,
			Content:       content,
			Author:        cfg.Author,
			Options:       cfg.Options,
			Authorization: authorization,
		})
	case KindRating:
		var verdict *bool
		verdict, err = parseVerdict(cfg.Verdict)
		if err != nil {
			return err
		}
		record, err = service.SubmitRating(ctx, intake.RatingRequest{
			VariantID:     cfg.VariantID,
			IsApproved:    verdict,
			Authorization: authorization,
		})
	case KindAssign:
		record, err = service.AssignModerationJob(ctx, intake.AssignRequest{Authorization: authorization})
	case KindReport:
		record, err = service.ReportForModeration(ctx, intake.ReportRequest{Variant: cfg.VariantID})
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrUsage, cfg.Kind)
	}
	if err != nil {
		message := intake.Describe(err, cfg.Locale)
		if apperrors.CodeOf(err).Kind() == apperrors.KindInternal {
			return fmt.Errorf("%s failed: %s: %w", cfg.Kind, message, err)
		}
		return fmt.Errorf("%w: %s: %s", ErrRejected, cfg.Kind, message)
	}
	return writeJSON(out, record)
}

func issueToken(cfg Config, out io.Writer) error {
	resolver, err := intake.NewTokenAuthorResolver([]byte(cfg.SigningKey), nil)
	if err != nil {
		return fmt.Errorf("DENDRITE_AUTH_SIGNING_KEY: %w", err)
	}
	token, err := resolver.IssueToken(cfg.Subject, cfg.TokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// authorResolver verifies tokens when a signing key is configured and treats
// every request as anonymous otherwise.
func authorResolver(cfg Config) (intake.AuthorResolver, error) {
	if strings.TrimSpace(cfg.SigningKey) == "" {
		return intake.Anonymous{}, nil
	}
	return intake.NewTokenAuthorResolver([]byte(cfg.SigningKey), nil)
}

func readContent(cfg Config, stdin io.Reader) (string, error) {
	switch cfg.ContentFile {
	case "":
		return cfg.Content, nil
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read content from stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(cfg.ContentFile)
		if err != nil {
			return "", fmt.Errorf("read content file: %w", err)
		}
		return string(data), nil
	}
}

// parseVerdict leaves the verdict nil when blank so intake reports it.
func parseVerdict(value string) (*bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	approved, err := strconv.ParseBool(value)
	if err != nil {
		return nil, fmt.Errorf("%w: -approve must be true or false", ErrUsage)
	}
	return &approved, nil
}

func writeJSON(out io.Writer, record any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(record)
}
