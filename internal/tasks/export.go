package tasks

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/soundshare/internal/formatter"
	"github.com/desertthunder/soundshare/internal/models"
	"github.com/desertthunder/soundshare/internal/services"
	"github.com/desertthunder/soundshare/internal/session"
	"github.com/desertthunder/soundshare/internal/shared"
)

// Export formats accepted by [Engine.Export].
const (
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatText     = "txt"
)

// ParseFormat normalizes a user-supplied export format.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv", "":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q (want csv, markdown or txt)", shared.ErrInvalidArgument, s)
	}
}

// Item is one reviewed track or album.
type Item struct {
	ID    string
	Media models.MediaType
}

// ItemInfo is what the catalog knows about an [Item].
type ItemInfo struct {
	Title    string // "Artist - Name"
	CoverURL string
}

// LookupFunc fetches display information for one item.
type LookupFunc func(ctx context.Context, item Item) (ItemInfo, error)

// CatalogLookup resolves items through sess, refreshing the token once on a 401.
func CatalogLookup(sess *session.Session) LookupFunc {
	return func(ctx context.Context, item Item) (ItemInfo, error) {
		var artists []services.SpotifyArtist
		var name string
		var images []services.SpotifyImage

		switch item.Media {
		case models.MediaAlbum:
			album, err := session.Call(ctx, sess, func(ctx context.Context, token string) (*services.SpotifyAlbum, error) {
				return sess.Catalog().Album(ctx, token, item.ID)
			})
			if err != nil {
				return ItemInfo{}, err
			}
			artists, name, images = album.Artists, album.Name, album.Images
		default:
			track, err := session.Call(ctx, sess, func(ctx context.Context, token string) (*services.SpotifyTrack, error) {
				return sess.Catalog().Track(ctx, token, item.ID)
			})
			if err != nil {
				return ItemInfo{}, err
			}
			artists, name, images = track.Artists, track.Name, track.Album.Images
		}

		info := ItemInfo{Title: name}
		if len(artists) > 0 && name != "" {
			by := make([]string, 0, len(artists))
			for _, a := range artists {
				by = append(by, a.Name)
			}
			info.Title = strings.Join(by, ", ") + " - " + name
		}
		if len(images) > 0 {
			info.CoverURL = images[0].URL
		}
		return info, nil
	}
}

// Engine runs review exports.
type Engine struct {
	lookup  LookupFunc
	workers int
	logger  *log.Logger
}

type Option func(*Engine)

// WithWorkers sets the lookup concurrency, clamped to 1..10.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = max(1, min(10, n)) }
}

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine builds an engine that resolves titles with lookup. A nil lookup skips title resolution.
func NewEngine(lookup LookupFunc, opts ...Option) *Engine {
	e := &Engine{lookup: lookup, workers: 5, logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// TitleResult holds resolved titles keyed by item id.
type TitleResult struct {
	Titles map[string]string
	Cover  string
	Failed map[string]error
}

type lookupResult struct {
	item Item
	info ItemInfo
	err  error
}

// ResolveTitles looks up every distinct item in reviews. It only fails when ctx ends.
func (e *Engine) ResolveTitles(ctx context.Context, prog chan<- ProgressUpdate, reviews []models.Review) (*TitleResult, error) {
	result := &TitleResult{Titles: map[string]string{}, Failed: map[string]error{}}
	if e.lookup == nil {
		return result, nil
	}

	var items []Item
	seen := map[string]bool{}
	for _, r := range reviews {
		if seen[r.TrackOrAlbumID] {
			continue
		}
		seen[r.TrackOrAlbumID] = true
		items = append(items, Item{ID: r.TrackOrAlbumID, Media: r.MediaType})
	}
	if len(items) == 0 {
		return result, nil
	}

	e.sendProgress(prog, lookupStartedUpdate(len(items)))

	jobs := make(chan Item, len(items))
	results := make(chan lookupResult, len(items))

	var wg sync.WaitGroup
	for range min(e.workers, len(items)) {
		wg.Add(1)
		go e.lookupWorker(ctx, &wg, jobs, results)
	}

	for _, it := range items {
		jobs <- it
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	covers := map[string]string{}
	completed := 0
	for res := range results {
		completed++
		if res.err != nil {
			result.Failed[res.item.ID] = res.err
			e.logger.Warn("catalog lookup failed", "item", res.item.ID, "error", res.err)
			e.sendProgress(prog, lookupFailedUpdate(completed, len(items), res.item.ID, res.err))
			continue
		}
		if res.info.Title != "" {
			result.Titles[res.item.ID] = res.info.Title
		}
		if res.info.CoverURL != "" {
			covers[res.item.ID] = res.info.CoverURL
		}
		e.sendProgress(prog, lookupDoneUpdate(completed, len(items), res.info.Title))
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	for _, it := range items {
		if c, ok := covers[it.ID]; ok {
			result.Cover = c
			break
		}
	}
	return result, nil
}

func (e *Engine) lookupWorker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan Item, results chan<- lookupResult) {
	defer wg.Done()

	for it := range jobs {
		if err := ctx.Err(); err != nil {
			results <- lookupResult{item: it, err: err}
			continue
		}
		info, err := e.lookup(ctx, it)
		results <- lookupResult{item: it, info: info, err: err}
	}
}

// ExportOpts configures [Engine.Export].
type ExportOpts struct {
	Format string // csv, markdown or txt
	Output string // file base (csv), directory (markdown) or file (txt); empty uses the formatter default
	Warn   io.Writer
}

// ExportResult summarizes a finished export.
type ExportResult struct {
	Format        string   `json:"format"`
	Files         []string `json:"files"`
	Reviews       int      `json:"reviews"`
	Titled        int      `json:"titled"`
	FailedLookups int      `json:"failed_lookups"`
}

// Export resolves titles for export.Reviews and writes the export in opts.Format.
func (e *Engine) Export(ctx context.Context, prog chan<- ProgressUpdate, export *formatter.ReviewExport, opts ExportOpts) (*ExportResult, error) {
	format, err := ParseFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	titles, err := e.ResolveTitles(ctx, prog, export.Reviews)
	if err != nil {
		return nil, err
	}
	if export.Titles == nil {
		export.Titles = map[string]string{}
	}
	for id, t := range titles.Titles {
		export.Titles[id] = t
	}

	result := &ExportResult{
		Format:        format,
		Reviews:       len(export.Reviews),
		Titled:        len(titles.Titles),
		FailedLookups: len(titles.Failed),
	}

	e.sendProgress(prog, writingUpdate(format, len(export.Reviews)))

	switch format {
	case FormatCSV:
		res, err := formatter.WriteCSVExport(export, opts.Output)
		if err != nil {
			return nil, fmt.Errorf("CSV export failed: %w", err)
		}
		result.Files = []string{res.ReviewsFile, res.MetadataFile}
	case FormatMarkdown:
		res, err := formatter.WriteMarkdownExport(export, opts.Output, titles.Cover, opts.Warn)
		if err != nil {
			return nil, fmt.Errorf("markdown export failed: %w", err)
		}
		result.Files = res.Files
	default:
		path, err := formatter.WriteTextExport(export, opts.Output)
		if err != nil {
			return nil, fmt.Errorf("text export failed: %w", err)
		}
		result.Files = []string{path}
	}

	e.logger.Info("export written", "format", format, "reviews", result.Reviews, "files", len(result.Files))
	return result, nil
}
