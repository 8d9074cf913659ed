// package formatter renders reviews and friend lists to CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/soundshare/internal/models"
	"github.com/desertthunder/soundshare/internal/shared"
)

// ReviewExport is one author's reviews with display titles for the reviewed items.
type ReviewExport struct {
	Author  models.UserIdentity `json:"author"`
	Reviews []models.Review     `json:"-"`
	// Titles maps a track or album id to "Artist - Title". Missing ids fall back to the raw id.
	Titles     map[string]string `json:"-"`
	ExportedAt time.Time         `json:"exported_at,omitzero"`
	Count      int               `json:"review_count"`
}

func (e *ReviewExport) title(id string) string {
	if t, ok := e.Titles[id]; ok && t != "" {
		return t
	}
	return id
}

// Stars renders a 1..5 rating as filled and empty stars.
func Stars(rating int) string {
	rating = max(0, min(5, rating))
	return strings.Repeat("★", rating) + strings.Repeat("☆", 5-rating)
}

// ExportToCSV converts a ReviewExport to CSV with columns: ID, Item, Title, Type, Rating, Review
func ExportToCSV(export *ReviewExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Item", "Title", "Type", "Rating", "Review"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range export.Reviews {
		record := []string{
			r.ID,
			r.TrackOrAlbumID,
			export.title(r.TrackOrAlbumID),
			r.MediaType.String(),
			strconv.Itoa(r.Rating),
			r.Text,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a ReviewExport to Markdown with an optional cover image
func ExportToMarkdown(export *ReviewExport, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Reviews by %s\n\n", export.Author.Name())

	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}

	fmt.Fprintf(&buf, "**Reviews**: %d\n\n", len(export.Reviews))

	for _, group := range []models.MediaType{models.MediaAlbum, models.MediaTrack} {
		var lines []string
		for _, r := range export.Reviews {
			if r.MediaType != group {
				continue
			}
			line := fmt.Sprintf("%d. %s %s", len(lines)+1, Stars(r.Rating), export.title(r.TrackOrAlbumID))
			if text := strings.TrimSpace(r.Text); text != "" {
				line += fmt.Sprintf("\n\n   > %s", strings.ReplaceAll(text, "\n", " "))
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}
		heading := "Tracks"
		if group == models.MediaAlbum {
			heading = "Albums"
		}
		fmt.Fprintf(&buf, "## %s\n\n%s\n\n", heading, strings.Join(lines, "\n"))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a ReviewExport to plain text
func ExportToText(export *ReviewExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Reviews by: %s\n", export.Author.Name())
	fmt.Fprintf(&buf, "Reviews: %d\n\n", len(export.Reviews))

	for i, r := range export.Reviews {
		fmt.Fprintf(&buf, "%d. [%s] %s %s\n", i+1, r.MediaType, Stars(r.Rating), export.title(r.TrackOrAlbumID))
		if r.Text != "" {
			fmt.Fprintf(&buf, "   %s\n", r.Text)
		}
	}

	return buf.Bytes(), nil
}

// FriendsToCSV renders friends or requests with columns: ID, Name
func FriendsToCSV(friends []models.Friend) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"ID", "Name"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, f := range friends {
		if err := writer.Write([]string{f.ID, f.Name}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// FriendsToText renders one "name (id)" line per friend.
func FriendsToText(title string, friends []models.Friend) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s: %d\n", title, len(friends))
	for i, f := range friends {
		fmt.Fprintf(&buf, "%d. %s (%s)\n", i+1, f.Name, f.ID)
	}
	return buf.Bytes()
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// ToMetadataJSON generates a JSON summary of the export (without the reviews)
func ToMetadataJSON(export *ReviewExport) ([]byte, error) {
	meta := *export
	meta.Count = len(export.Reviews)
	return shared.MarshalJSON(meta, true)
}

func baseName(export *ReviewExport) string {
	if export.Author.ID != "" {
		return export.Author.ID + "_reviews"
	}
	return "reviews"
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	ReviewsFile  string
	MetadataFile string
}

// WriteCSVExport writes {base}.csv and {base}_metadata.json. The base defaults to {author}_reviews.
func WriteCSVExport(export *ReviewExport, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = baseName(export)
	}

	csvData, err := ExportToCSV(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	reviewsFile := baseFilepath + ".csv"
	if err := os.WriteFile(reviewsFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{ReviewsFile: reviewsFile, MetadataFile: metadataFile}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownExport writes {dir}/README.md and, when imageURL downloads, {dir}/cover.jpg.
//
// A failed cover download is reported to warn and does not fail the export.
func WriteMarkdownExport(export *ReviewExport, outputDir, imageURL string, warn io.Writer) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = baseName(export)
	}
	if warn == nil {
		warn = io.Discard
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{Directory: outputDir, Files: []string{}}

	var coverImageFilename string
	if imageURL != "" {
		imageData, err := DownloadImage(imageURL)
		if err != nil {
			fmt.Fprintf(warn, "Warning: failed to download cover image: %v\n", err)
		} else {
			coverImageFilename = "cover.jpg"
			coverImagePath := fmt.Sprintf("%s/%s", outputDir, coverImageFilename)
			if err := os.WriteFile(coverImagePath, imageData, 0644); err != nil {
				fmt.Fprintf(warn, "Warning: failed to save cover image: %v\n", err)
				coverImageFilename = ""
			} else {
				result.CoverImage = coverImagePath
				result.Files = append(result.Files, coverImagePath)
			}
		}
	}

	mdData, err := ExportToMarkdown(export, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := fmt.Sprintf("%s/README.md", outputDir)
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteTextExport writes the plain text rendering, by default to {author}_reviews.txt.
func WriteTextExport(export *ReviewExport, filepath string) (string, error) {
	if filepath == "" {
		filepath = baseName(export) + ".txt"
	}

	textData, err := ExportToText(export)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(filepath, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return filepath, nil
}
