// package formatter provides functions to export video listings to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/vidx/internal/models"
	"github.com/desertthunder/vidx/internal/shared"
)

// VideoExport is one page of a video listing plus optional dashboard stats.
type VideoExport struct {
	Videos     []models.Video    `json:"videos"`
	Pagination models.Pagination `json:"pagination"`
	Stats      *models.Stats     `json:"stats,omitempty"`
	ExportedAt time.Time         `json:"exportedAt"`
}

// NewVideoExport wraps a listing for export.
func NewVideoExport(list *models.VideoList, stats *models.Stats) *VideoExport {
	export := &VideoExport{Stats: stats, ExportedAt: time.Now().UTC()}
	if list != nil {
		export.Videos = list.Videos
		export.Pagination = list.Pagination
	}
	return export
}

func flagOf(v models.Video) string {
	if v.SensitivityFlag == "" {
		return string(models.FlagUnknown)
	}
	return string(v.SensitivityFlag)
}

func createdOf(v models.Video) string {
	if v.CreatedAt.IsZero() {
		return ""
	}
	return v.CreatedAt.UTC().Format(time.RFC3339)
}

// ExportToCSV converts a VideoExport to CSV format with columns: ID, Title, Status, Progress,
// Sensitivity, Duration, Size, Resolution, Codec, Created
func ExportToCSV(export *VideoExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Status", "Progress", "Sensitivity", "Duration", "Size", "Resolution", "Codec", "Created"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, v := range export.Videos {
		record := []string{
			v.ID.String(),
			v.Title,
			string(v.Status),
			strconv.Itoa(v.ProcessProgress),
			flagOf(v),
			strconv.FormatFloat(v.Duration, 'f', -1, 64),
			strconv.FormatInt(v.Size, 10),
			v.Metadata.Resolution,
			v.Metadata.Codec,
			createdOf(v),
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

// ExportToMarkdown converts a VideoExport to Markdown format with a stats summary when present
func ExportToMarkdown(export *VideoExport) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Videos\n\n")

	if s := export.Stats; s != nil {
		buf.WriteString("## Summary\n\n")
		buf.WriteString("| Total | Pending | Processing | Completed | Failed | Safe | Flagged | Storage |\n")
		buf.WriteString("|---|---|---|---|---|---|---|---|\n")
		fmt.Fprintf(&buf, "| %d | %d | %d | %d | %d | %d | %d | %s |\n\n",
			s.TotalVideos, s.Pending, s.Processing, s.Completed, s.Failed, s.Safe, s.Flagged, shared.FormatBytes(s.TotalSize))
	}

	fmt.Fprintf(&buf, "**Videos**: %d\n", len(export.Videos))
	if p := export.Pagination; p.TotalPages > 0 {
		fmt.Fprintf(&buf, "**Page**: %d of %d\n", p.CurrentPage, p.TotalPages)
	}
	buf.WriteString("\n## Videos\n\n")

	for i, v := range export.Videos {
		fmt.Fprintf(&buf, "%d. **%s** `%s` [%s]", i+1, v.Title, v.ID, statusLabel(v))
		if v.Duration > 0 {
			fmt.Fprintf(&buf, " %s", shared.FormatDuration(v.Duration))
		}
		if v.Size > 0 {
			fmt.Fprintf(&buf, ", %s", shared.FormatBytes(v.Size))
		}
		if v.SensitivityFlag == models.FlagFlagged {
			buf.WriteString(" ⚠ flagged")
		}
		buf.WriteString("\n")
		if v.Description != "" {
			fmt.Fprintf(&buf, "   > %s\n", v.Description)
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts a VideoExport to plain text format
func ExportToText(export *VideoExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Videos: %d\n", len(export.Videos))
	if s := export.Stats; s != nil {
		fmt.Fprintf(&buf, "Completed: %d, Processing: %d, Failed: %d, Flagged: %d\n", s.Completed, s.Processing, s.Failed, s.Flagged)
	}
	buf.WriteString("\n")

	for i, v := range export.Videos {
		fmt.Fprintf(&buf, "%d. %s [%s]\n", i+1, v.Title, statusLabel(v))
	}

	return buf.Bytes(), nil
}

// statusLabel renders the status with progress while processing and the reason when failed.
func statusLabel(v models.Video) string {
	switch v.Status {
	case models.StatusProcessing:
		return fmt.Sprintf("processing %d%%", v.ProcessProgress)
	case models.StatusFailed:
		if v.ErrorMessage != "" {
			return "failed: " + v.ErrorMessage
		}
		return "failed"
	case models.StatusCompleted:
		return "completed, " + flagOf(v)
	default:
		return string(v.Status)
	}
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

// DecodeFrame returns the image bytes of a frame and a file extension for them.
//
// Frame data is either a base64 data URI or a URL to fetch.
func DecodeFrame(frame models.Frame) ([]byte, string, error) {
	if rest, ok := strings.CutPrefix(frame.Data, "data:"); ok {
		meta, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(meta, ";base64") {
			return nil, "", fmt.Errorf("unsupported frame encoding")
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, "", fmt.Errorf("failed to decode frame: %w", err)
		}
		return data, extensionFor(strings.TrimSuffix(meta, ";base64")), nil
	}

	data, err := DownloadImage(frame.Data)
	if err != nil {
		return nil, "", err
	}
	ext := filepath.Ext(frame.Data)
	if ext == "" || len(ext) > 5 {
		ext = ".jpg"
	}
	return data, ext, nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// ToMetadataJSON generates a JSON representation of export metadata (without videos)
func ToMetadataJSON(export *VideoExport) ([]byte, error) {
	meta := struct {
		Pagination models.Pagination `json:"pagination"`
		Stats      *models.Stats     `json:"stats,omitempty"`
		Count      int               `json:"count"`
		ExportedAt time.Time         `json:"exportedAt"`
	}{export.Pagination, export.Stats, len(export.Videos), export.ExportedAt}
	return shared.MarshalJSON(meta, true)
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	VideosFile   string
	MetadataFile string
}

// WriteCSVExport exports videos to CSV format with accompanying metadata JSON file.
//
// Defaults to "videos" as the base filename & creates {base}_videos.csv and {base}_metadata.json
func WriteCSVExport(export *VideoExport, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = "videos"
	}

	csvData, err := ExportToCSV(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	videosFile := baseFilepath + "_videos.csv"
	if err := os.WriteFile(videosFile, csvData, 0644); err != nil {
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

	return &CSVExportResult{
		VideosFile:   videosFile,
		MetadataFile: metadataFile,
	}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport and WriteFramesExport
type MarkdownExportResult struct {
	Directory string
	Files     []string
}

// WriteMarkdownExport exports videos to Markdown format in a dedicated directory.
//
// Directory name defaults to "videos". Creates {dir}/README.md.
func WriteMarkdownExport(export *VideoExport, outputDir string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = "videos"
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	mdData, err := ExportToMarkdown(export)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}

	return &MarkdownExportResult{Directory: outputDir, Files: []string{mdFile}}, nil
}

// WriteFramesExport saves the frames of a video as images with a Markdown index.
//
// Directory name defaults to the video ID. Frames that cannot be decoded are skipped with a
// warning. Creates {dir}/frame_NNN.{ext} and {dir}/README.md.
func WriteFramesExport(video *models.Video, frames []models.Frame, outputDir string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = video.ID.String()
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{Directory: outputDir, Files: []string{}}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n\n", video.Title)
	fmt.Fprintf(&buf, "**Frames**: %d\n\n", len(frames))

	for i, frame := range frames {
		data, ext, err := DecodeFrame(frame)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to export frame %d: %v\n", i+1, err)
			continue
		}

		name := fmt.Sprintf("frame_%03d%s", i+1, ext)
		path := filepath.Join(outputDir, name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to save frame %d: %v\n", i+1, err)
			continue
		}
		result.Files = append(result.Files, path)

		fmt.Fprintf(&buf, "## %s\n\n![Frame %d](%s)\n\n", shared.FormatDuration(frame.Timestamp), i+1, name)
		if frame.Classification != "" {
			fmt.Fprintf(&buf, "Classification: %s\n\n", frame.Classification)
		}
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteTextExport exports videos to plain text format.
//
// Defaults to videos.txt as the filename.
func WriteTextExport(export *VideoExport, filepath string) (string, error) {
	if filepath == "" {
		filepath = "videos.txt"
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
