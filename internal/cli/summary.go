package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/wdm0006/catalogetl/internal/config"
)

func renderSummary(w io.Writer, results []namedResult) error {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"pipeline", "state", "batches", "rows read", "rows written", "duration", "error"})
	for _, r := range results {
		if r.Result == nil {
			t.AppendRow(table.Row{r.Name, "not started", "", "", "", "", errText(r.Err)})
			continue
		}
		res := r.Result
		t.AppendRow(table.Row{r.Name, res.State.String(), res.Batches, res.RowsRead, res.RowsWritten, res.Duration.Round(time.Millisecond).String(), errText(r.Err)})
	}
	t.SetStyle(table.StyleLight)
	t.Style().Format = table.FormatOptions{
		Footer: text.FormatDefault,
		Header: text.FormatDefault,
		Row:    text.FormatDefault,
	}
	t.Style().Options.DrawBorder = false
	_, err := io.WriteString(w, t.Render()+"\n")
	return err
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func writeProfiles(w io.Writer, p *config.Pipeline, format string) error {
	for _, pc := range p.Profiles {
		switch format {
		case "json":
			data, err := json.MarshalIndent(pc.ReportJSON(), "", "  ")
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
				return err
			}
		case "table":
			if err := pc.RenderTable(w); err != nil {
				return err
			}
		default:
			if _, err := io.WriteString(w, pc.ReportText()); err != nil {
				return err
			}
		}
	}
	return nil
}
