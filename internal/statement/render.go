// Package statement renders account statements to HTML and delivers them
// over SMTP. Rendering and transport are separate pieces so the dispatch
// loop can write the artifact, record it, and only then attempt delivery.
package statement

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Line is one open invoice shown on a statement.
type Line struct {
	OrderID     string
	Location    string
	ShipDate    time.Time
	DueDate     time.Time
	Status      string
	Outstanding float64
	PaidAmount  float64
}

// Flag is an invoice called out below the main table: skipped by the
// customer or short-paid.
type Flag struct {
	OrderID  string
	Location string
	ShipDate time.Time
	Amount   float64
}

// Data is everything a statement template needs.
type Data struct {
	CompanyName  string
	CompanyEmail string
	CompanyPhone string

	RecipientName string
	GeneratedAt   time.Time

	Lines     []Line
	Skipped   []Flag
	ShortPaid []Flag

	TotalOutstanding float64
	OverdueAmount    float64
	DaysOverdue      int
}

// Renderer produces statement HTML and writes artifact copies to disk.
type Renderer struct {
	// ArtifactDir receives a copy of every rendered statement. Empty
	// disables artifacts.
	ArtifactDir string

	CompanyName  string
	CompanyEmail string
	CompanyPhone string
}

var funcMap = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("$%.2f", v) },
	"date":  func(t time.Time) string { return t.Format("01/02/2006") },
}

var statementTmpl = template.Must(template.New("statement").Funcs(funcMap).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Account Statement</title></head>
<body style="font-family: Arial, sans-serif; color: #222; max-width: 720px; margin: 0 auto;">
  <h2 style="margin-bottom: 0;">{{.CompanyName}}</h2>
  <p style="margin-top: 4px; color: #555;">Account statement for <strong>{{.RecipientName}}</strong> &mdash; {{date .GeneratedAt}}</p>

  <table width="100%" cellpadding="6" cellspacing="0" style="border-collapse: collapse;">
    <thead>
      <tr style="background: #f0f0f0; text-align: left;">
        <th style="border-bottom: 2px solid #ccc;">Invoice</th>
        <th style="border-bottom: 2px solid #ccc;">Location</th>
        <th style="border-bottom: 2px solid #ccc;">Shipped</th>
        <th style="border-bottom: 2px solid #ccc;">Due</th>
        <th style="border-bottom: 2px solid #ccc;">Status</th>
        <th style="border-bottom: 2px solid #ccc; text-align: right;">Balance</th>
      </tr>
    </thead>
    <tbody>
    {{range .Lines}}
      <tr>
        <td style="border-bottom: 1px solid #eee;">{{.OrderID}}</td>
        <td style="border-bottom: 1px solid #eee;">{{.Location}}</td>
        <td style="border-bottom: 1px solid #eee;">{{date .ShipDate}}</td>
        <td style="border-bottom: 1px solid #eee;">{{date .DueDate}}</td>
        <td style="border-bottom: 1px solid #eee;{{if eq .Status "Overdue"}} color: #b00020; font-weight: bold;{{end}}">{{.Status}}</td>
        <td style="border-bottom: 1px solid #eee; text-align: right;">{{money .Outstanding}}</td>
      </tr>
    {{end}}
    </tbody>
    <tfoot>
      <tr>
        <td colspan="5" style="text-align: right; font-weight: bold; padding-top: 10px;">Total outstanding</td>
        <td style="text-align: right; font-weight: bold; padding-top: 10px;">{{money .TotalOutstanding}}</td>
      </tr>
      {{if gt .OverdueAmount 0.0}}
      <tr>
        <td colspan="5" style="text-align: right; color: #b00020;">Overdue ({{.DaysOverdue}} days)</td>
        <td style="text-align: right; color: #b00020;">{{money .OverdueAmount}}</td>
      </tr>
      {{end}}
    </tfoot>
  </table>

  {{if .Skipped}}
  <h4 style="margin-bottom: 4px;">Skipped invoices</h4>
  <p style="margin-top: 0; color: #555; font-size: 13px;">These older invoices remain unpaid although later invoices at the same location were settled:</p>
  <ul>
  {{range .Skipped}}<li>Invoice {{.OrderID}} ({{.Location}}, shipped {{date .ShipDate}})</li>{{end}}
  </ul>
  {{end}}

  {{if .ShortPaid}}
  <h4 style="margin-bottom: 4px;">Partially paid invoices</h4>
  <ul>
  {{range .ShortPaid}}<li>Invoice {{.OrderID}} ({{.Location}}, shipped {{date .ShipDate}}) &mdash; {{money .Amount}} remaining</li>{{end}}
  </ul>
  {{end}}

  <p style="color: #555; font-size: 13px;">Questions? Contact {{.CompanyName}}{{if .CompanyEmail}} at {{.CompanyEmail}}{{end}}{{if .CompanyPhone}} or {{.CompanyPhone}}{{end}}.</p>
</body>
</html>
`))

// Render produces the statement HTML for data.
func (r *Renderer) Render(data Data) (string, error) {
	if data.CompanyName == "" {
		data.CompanyName = r.CompanyName
	}
	if data.CompanyEmail == "" {
		data.CompanyEmail = r.CompanyEmail
	}
	if data.CompanyPhone == "" {
		data.CompanyPhone = r.CompanyPhone
	}
	var buf bytes.Buffer
	if err := statementTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// WriteArtifact stores a rendered statement under ArtifactDir and returns
// the file path. With no ArtifactDir configured it returns "".
func (r *Renderer) WriteArtifact(recipientName, html string, at time.Time) (string, error) {
	if r.ArtifactDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(r.ArtifactDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("statement_%s_%s.html", safeName(recipientName), at.UTC().Format("20060102_150405"))
	path := filepath.Join(r.ArtifactDir, name)
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// safeName reduces a recipient name to filesystem-safe characters.
func safeName(name string) string {
	var b strings.Builder
	for _, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
			b.WriteRune(ch)
		case ch == ' ':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "statement"
	}
	return b.String()
}
