package document

import (
	"encoding/csv"
	"html/template"
	"io"
)

// ExportCSV writes a sheet's rectangular extent as CSV, one row per sheet
// row from row 1 through the last populated row. Formula cells export their
// evaluated values, matching what the grid displays.
func ExportCSV(w io.Writer, c Content) error {
	if c.Kind != KindSheet {
		return ErrKindMismatch
	}
	maxCol, maxRow := sheetExtent(c.Cells)
	cw := csv.NewWriter(w)
	for row := 1; row <= maxRow; row++ {
		record := make([]string, maxCol+1)
		for col := 0; col <= maxCol; col++ {
			record[col] = DisplayValue(c.Cells, CellAddr(col, row))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// sheetExtent returns the largest populated 0-based column and 1-based row.
func sheetExtent(cells map[string]string) (maxCol, maxRow int) {
	maxCol = -1
	for addr := range cells {
		col, row, ok := parseAddr(addr)
		if !ok {
			continue
		}
		if col > maxCol {
			maxCol = col
		}
		if row > maxRow {
			maxRow = row
		}
	}
	return maxCol, maxRow
}

var exportTmpl = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
{{- if eq .Content.Kind "doc"}}
{{.HTML}}
{{- else if eq .Content.Kind "sheet"}}
<table>
{{- range .Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</table>
{{- else}}
{{- range .Content.Slides}}
<section class="slide" data-layout="{{.Layout}}">
{{- range .Elements}}
<div class="el el-{{.Type}}" style="left:{{.X}}px;top:{{.Y}}px;width:{{.W}}px;height:{{.H}}px">
{{- if eq .Type "text"}}{{.Text}}{{else if eq .Type "image"}}<img src="{{.URL}}">{{else}}{{.Shape}}{{end -}}
</div>
{{- end}}
</section>
{{- end}}
{{- end}}
</body>
</html>
`))

type exportData struct {
	Title   string
	Content Content
	HTML    template.HTML
	Rows    [][]string
}

// ExportHTML writes any document as a standalone HTML file. A doc's rich
// text is emitted as-is (it is already HTML); sheets render as a table of
// display values; presentations as one section per slide.
func ExportHTML(w io.Writer, doc Document) error {
	data := exportData{Title: doc.Title, Content: doc.Content}
	switch doc.Content.Kind {
	case KindDoc:
		data.HTML = template.HTML(doc.Content.HTML)
	case KindSheet:
		maxCol, maxRow := sheetExtent(doc.Content.Cells)
		for row := 1; row <= maxRow; row++ {
			record := make([]string, maxCol+1)
			for col := 0; col <= maxCol; col++ {
				record[col] = DisplayValue(doc.Content.Cells, CellAddr(col, row))
			}
			data.Rows = append(data.Rows, record)
		}
	}
	return exportTmpl.Execute(w, data)
}
