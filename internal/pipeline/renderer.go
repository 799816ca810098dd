package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ppiankov/stimalign/internal/model"
)

// Artifact kinds recorded in Report.Outputs
const (
	OutputCleanEvents = "clean_events"
	OutputRejected    = "rejected"
	OutputDevice      = "device_events"
	OutputTokens      = "token_events"
	OutputJSON        = "json"
	OutputMarkdown    = "markdown"
)

// CleanEventsHeader lists the columns of the clean-events table
var CleanEventsHeader = []string{"sample", "category", "onset", "form", "sentence_id", "position", "token_id"}

// Renderer writes session artifacts
type Renderer struct {
	markdown bool
}

// NewRenderer creates a renderer; markdown enables the human-readable report
func NewRenderer(markdown bool) *Renderer {
	return &Renderer{markdown: markdown}
}

// RenderSession writes every artifact of a session into dir and records the
// paths in the report
func (r *Renderer) RenderSession(res *SessionResult, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	id := res.Session.ID
	outputs := make(map[string]string)

	path := filepath.Join(dir, id+"-clean-events.csv")
	if err := writeFile(path, func(w io.Writer) error {
		return WriteCleanEvents(w, res.Annotation.Events)
	}); err != nil {
		return err
	}
	outputs[OutputCleanEvents] = path

	if len(res.Annotation.Rejected) > 0 {
		path = filepath.Join(dir, "rejected-"+id+".txt")
		if err := writeFile(path, func(w io.Writer) error {
			return WriteRejected(w, res.Annotation.Rejected)
		}); err != nil {
			return err
		}
		outputs[OutputRejected] = path
	}

	if res.Validation != nil {
		device := make([]model.DeviceEvent, len(res.Filtered))
		tokens := make([]model.DeviceEvent, len(res.Filtered))
		for i, p := range res.Filtered {
			device[i] = p.Device
			tokens[i] = p.Token
		}

		path = filepath.Join(dir, id+"-events.tsv")
		if err := writeFile(path, func(w io.Writer) error { return WriteTriples(w, device) }); err != nil {
			return err
		}
		outputs[OutputDevice] = path

		path = filepath.Join(dir, id+"-tokens.tsv")
		if err := writeFile(path, func(w io.Writer) error { return WriteTriples(w, tokens) }); err != nil {
			return err
		}
		outputs[OutputTokens] = path
	}

	jsonPath := filepath.Join(dir, id+"-report.json")
	outputs[OutputJSON] = jsonPath
	var mdPath string
	if r.markdown {
		mdPath = filepath.Join(dir, id+"-report.md")
		outputs[OutputMarkdown] = mdPath
	}
	res.Report.Outputs = outputs

	if err := r.RenderJSON(res.Report, jsonPath); err != nil {
		return err
	}
	if mdPath != "" {
		if err := r.RenderMarkdown(res.Report, mdPath); err != nil {
			return err
		}
	}
	return nil
}

// WriteCleanEvents writes the annotated log as CSV. Unresolved sentence,
// position and token cells are left empty.
func WriteCleanEvents(w io.Writer, events []model.AnnotatedEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CleanEventsHeader); err != nil {
		return err
	}

	for _, ev := range events {
		record := []string{
			strconv.Itoa(ev.Sample),
			string(ev.Category),
			strconv.FormatFloat(ev.Onset, 'f', -1, 64),
			ev.Form,
			optInt(ev.SentenceID),
			optInt(ev.Position),
			optInt(ev.TokenID),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteRejected writes one rejected sentence candidate per line
func WriteRejected(w io.Writer, rejected []string) error {
	_, err := io.WriteString(w, strings.Join(rejected, "\n"))
	return err
}

// WriteTriples writes device events as sample/duration/code TSV with a
// header, readable by ParseTriggers
func WriteTriples(w io.Writer, events []model.DeviceEvent) error {
	if _, err := io.WriteString(w, "sample\tduration\tcode\n"); err != nil {
		return err
	}
	for _, ev := range events {
		if _, err := fmt.Fprintf(w, "%d\t%d\t%d\n", ev.Sample, ev.Duration, ev.Code); err != nil {
			return err
		}
	}
	return nil
}

// RenderJSON writes the report as indented JSON
func (r *Renderer) RenderJSON(report *model.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// RenderMarkdown writes the human-readable session report
func (r *Renderer) RenderMarkdown(report *model.Report, path string) error {
	if err := os.WriteFile(path, []byte(Markdown(report)), 0644); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	return nil
}

// Markdown formats a report for reading
func Markdown(report *model.Report) string {
	var b strings.Builder
	c := report.Counts

	fmt.Fprintf(&b, "# Session %s\n\n", report.Session)
	if report.RunID != "" {
		fmt.Fprintf(&b, "Run: `%s`\n\n", report.RunID)
	}
	fmt.Fprintf(&b, "- Corpus: `%s`\n", report.Inputs.Corpus)
	fmt.Fprintf(&b, "- Log: `%s`\n", report.Inputs.Log)
	if report.Inputs.Triggers != "" {
		fmt.Fprintf(&b, "- Triggers: `%s`\n", report.Inputs.Triggers)
	}

	b.WriteString("\n## Log\n\n")
	b.WriteString("| Stage | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| Raw rows | %d |\n", c.RawRows)
	fmt.Fprintf(&b, "| Events | %d |\n", c.Events)
	fmt.Fprintf(&b, "| Ignored clusters | %d |\n", c.IgnoredClusters)
	fmt.Fprintf(&b, "| Word events | %d |\n", c.WordEvents)
	fmt.Fprintf(&b, "| Bound tokens | %d |\n", c.BoundTokens)
	fmt.Fprintf(&b, "| Unbound tokens | %d |\n", c.UnboundTokens)

	if report.Inputs.Triggers != "" {
		b.WriteString("\n## Triggers\n\n")
		fmt.Fprintf(&b, "**%.2f%% valid** (confidence: %s)\n\n", report.Score.ValidPercent, report.Score.Confidence)
		b.WriteString("| Outcome | Count |\n|---|---|\n")
		fmt.Fprintf(&b, "| Device events | %d |\n", c.DeviceEvents)
		fmt.Fprintf(&b, "| Accepted | %d |\n", c.Accepted)
		fmt.Fprintf(&b, "| Rejected | %d |\n", c.Rejected)
		fmt.Fprintf(&b, "| Skipped | %d |\n", c.Skipped)
		fmt.Fprintf(&b, "| Dropped | %d |\n", c.Dropped)
		fmt.Fprintf(&b, "| Kept after filtering | %d |\n", c.Cropped)
	}

	if len(report.Score.Signals) > 0 {
		b.WriteString("\n## Signals\n\n")
		for _, s := range report.Score.Signals {
			fmt.Fprintf(&b, "- **%s** [%s]: %s\n", s.Type, s.Severity, s.Description)
		}
	}

	if len(report.RejectedSentences) > 0 {
		b.WriteString("\n## Rejected sentences\n\n")
		for _, s := range report.RejectedSentences {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	return b.String()
}

// RenderSummary prints a short session summary
func RenderSummary(w io.Writer, report *model.Report) {
	c := report.Counts
	fmt.Fprintf(w, "%s: %d events, %d bound tokens, %d rejected sentences\n",
		report.Session, c.Events, c.BoundTokens, len(report.RejectedSentences))
	if report.Inputs.Triggers != "" {
		fmt.Fprintf(w, "  %.2f%% valid (%d accepted / %d rejected), %d kept\n",
			report.Score.ValidPercent, c.Accepted, c.Rejected, c.Cropped)
	}
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
