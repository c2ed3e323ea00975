// package formatter renders ranked match results as CSV, Markdown, plain text or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/shared"
	"github.com/go-resty/resty/v2"
)

// Format names an output format accepted by `harmony match --format`.
type Format string

const (
	CSV      Format = "csv"
	Markdown Format = "md"
	Text     Format = "text"
	JSON     Format = "json"
)

// Formats lists every supported [Format].
var Formats = []Format{CSV, Markdown, Text, JSON}

// ParseFormat accepts a format name, case-insensitively. "markdown" and "txt" are aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return CSV, nil
	case "md", "markdown":
		return Markdown, nil
	case "", "text", "txt":
		return Text, nil
	case "json":
		return JSON, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
}

// Extension is the file extension used when writing f to disk.
func (f Format) Extension() string {
	if f == Text {
		return "txt"
	}
	return string(f)
}

// MatchReport is a ranked match run for one user.
type MatchReport struct {
	UserID      string
	Threshold   float64
	GeneratedAt time.Time
	Matches     []models.RankedCandidate
}

type jsonMatch struct {
	Rank        int     `json:"rank"`
	PlaylistID  string  `json:"playlist_id"`
	Name        string  `json:"name"`
	URI         string  `json:"uri,omitempty"`
	SubmittedBy string  `json:"submitted_by"`
	Score       float64 `json:"score"`
	Tracks      int     `json:"tracks"`
}

// Render writes report to w in format f.
func Render(w io.Writer, f Format, report *MatchReport) error {
	var (
		data []byte
		err  error
	)
	switch f {
	case CSV:
		data, err = ExportToCSV(report)
	case Markdown:
		data, err = ExportToMarkdown(report, "")
	case Text:
		data, err = ExportToText(report)
	case JSON:
		data, err = ExportToJSON(report)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Percent formats a score in [0,1] as a whole percentage.
func Percent(score float64) string {
	return strconv.FormatFloat(score*100, 'f', 0, 64) + "%"
}

// ExportToCSV converts a MatchReport to CSV format with columns: Rank, Playlist ID, Name, Submitted By, Score, Tracks
func ExportToCSV(report *MatchReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Rank", "Playlist ID", "Name", "Submitted By", "Score", "Tracks"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, m := range report.Matches {
		record := []string{
			strconv.Itoa(i + 1),
			m.ID,
			m.Name,
			m.SubmittedBy,
			strconv.FormatFloat(m.Score, 'f', 4, 64),
			strconv.Itoa(len(m.Items)),
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

// ExportToMarkdown converts a MatchReport to Markdown with an optional cover image of the best match
func ExportToMarkdown(report *MatchReport, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Matches for %s\n\n", report.UserID)

	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}

	fmt.Fprintf(&buf, "**Playlists**: %d\n", len(report.Matches))
	fmt.Fprintf(&buf, "**Threshold**: %s\n", Percent(report.Threshold))
	if !report.GeneratedAt.IsZero() {
		fmt.Fprintf(&buf, "**Generated**: %s\n", report.GeneratedAt.UTC().Format(time.RFC3339))
	}
	buf.WriteString("\n")

	if len(report.Matches) == 0 {
		buf.WriteString("_No playlists matched._\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("| # | Playlist | Submitted By | Score | Tracks |\n")
	buf.WriteString("|---|----------|--------------|-------|--------|\n")
	for i, m := range report.Matches {
		name := markdownEscape(m.Name)
		if m.URI != "" {
			name = fmt.Sprintf("[%s](%s)", name, m.URI)
		}
		fmt.Fprintf(&buf, "| %d | %s | %s | %s | %d |\n", i+1, name, markdownEscape(m.SubmittedBy), Percent(m.Score), len(m.Items))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a MatchReport to plain text format
func ExportToText(report *MatchReport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Matches for %s: %d\n", report.UserID, len(report.Matches))
	if len(report.Matches) == 0 {
		buf.WriteString("No playlists matched.\n")
		return buf.Bytes(), nil
	}
	buf.WriteString("\n")

	for i, m := range report.Matches {
		fmt.Fprintf(&buf, "%d. %s by %s (%s)\n", i+1, m.Name, m.SubmittedBy, Percent(m.Score))
	}

	return buf.Bytes(), nil
}

// ExportToJSON converts a MatchReport to indented JSON with one-based ranks
func ExportToJSON(report *MatchReport) ([]byte, error) {
	matches := make([]jsonMatch, len(report.Matches))
	for i, m := range report.Matches {
		matches[i] = jsonMatch{
			Rank:        i + 1,
			PlaylistID:  m.ID,
			Name:        m.Name,
			URI:         m.URI,
			SubmittedBy: m.SubmittedBy,
			Score:       m.Score,
			Tracks:      len(m.Items),
		}
	}

	return shared.MarshalJSON(struct {
		UserID      string      `json:"user_id"`
		Threshold   float64     `json:"threshold"`
		GeneratedAt time.Time   `json:"generated_at"`
		Matches     []jsonMatch `json:"matches"`
	}{report.UserID, report.Threshold, report.GeneratedAt, matches}, true)
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	resp, err := resty.New().SetTimeout(30 * time.Second).R().Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// WriteExport writes report to path in format f and returns the path written.
//
// An empty path defaults to matches_{user}.{ext}. Markdown exports go to a directory
// {path}/README.md with the best match's cover saved beside it when imageURL is set.
func WriteExport(report *MatchReport, f Format, path, imageURL string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("matches_%s.%s", report.UserID, f.Extension())
	}
	if f == Markdown {
		return writeMarkdownExport(report, strings.TrimSuffix(path, ".md"), imageURL)
	}

	var buf bytes.Buffer
	if err := Render(&buf, f, report); err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", f, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", f, err)
	}
	return path, nil
}

func writeMarkdownExport(report *MatchReport, dir, imageURL string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	var cover string
	if imageURL != "" {
		if data, err := DownloadImage(imageURL); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to download cover image: %v\n", err)
		} else if err := os.WriteFile(filepath.Join(dir, "cover.jpg"), data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to save cover image: %v\n", err)
		} else {
			cover = "cover.jpg"
		}
	}

	data, err := ExportToMarkdown(report, cover)
	if err != nil {
		return "", fmt.Errorf("failed to generate Markdown: %w", err)
	}

	file := filepath.Join(dir, "README.md")
	if err := os.WriteFile(file, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write Markdown file: %w", err)
	}
	return file, nil
}

func markdownEscape(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
