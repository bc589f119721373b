package export

import (
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"
)

// HTMLContentType is the media type of WriteReport output.
const HTMLContentType = "text/html; charset=utf-8"

// DefaultReportName titles a report whose request names none.
const DefaultReportName = "IoT Query Report"

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var reportTemplate = template.Must(template.ParseFS(templateFS, "templates/report.html.tmpl"))

// Report is a request to render a standalone HTML report.
type Report struct {
	Table
	Name        string   `json:"reportName"`
	Description string   `json:"description"`
	ChartSVGs   []string `json:"chartSvgs"`
	MapSVG      string   `json:"mapSvg"`
}

type reportView struct {
	Name        string
	Description string
	GeneratedAt time.Time
	Columns     []string
	Rows        [][]string
	TotalRows   int
	Truncated   bool
	Charts      []template.URL
	Map         template.URL
}

// WriteReport renders r with at most maxRows table rows. SVG images are
// embedded as base64 data URIs inside img elements, so any script they
// carry never runs.
func WriteReport(w io.Writer, r Report, maxRows int, now time.Time) error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = DefaultReportName
	}
	view := reportView{
		Name:        name,
		Description: r.Description,
		GeneratedAt: now,
		Columns:     r.Names(),
		TotalRows:   len(r.Rows),
	}

	rows := r.Rows
	if maxRows >= 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
		view.Truncated = true
	}
	view.Rows = make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(view.Columns))
		for j := range cells {
			cells[j] = FormatValue(cell(row, j))
		}
		view.Rows[i] = cells
	}

	for _, svg := range r.ChartSVGs {
		if strings.TrimSpace(svg) != "" {
			view.Charts = append(view.Charts, svgDataURI(svg))
		}
	}
	if strings.TrimSpace(r.MapSVG) != "" {
		view.Map = svgDataURI(r.MapSVG)
	}

	if err := reportTemplate.Execute(w, view); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	return nil
}

func svgDataURI(svg string) template.URL {
	return template.URL("data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg)))
}
