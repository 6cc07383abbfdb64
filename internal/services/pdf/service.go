package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/ternarybob/tcsync/internal/interfaces"
)

const (
	pageWidth  = 190.0 // A4 width minus margins
	pageBottom = 297.0 - 15.0
	lineHeight = 5.0
)

// Service renders failure reports (markdown) into PDF attachments
type Service struct {
	author string
	logger arbor.ILogger
}

// Compile-time assertion
var _ interfaces.PDFService = (*Service)(nil)

// NewService creates a new PDF service; author is written to the document properties
func NewService(author string, logger arbor.ILogger) *Service {
	return &Service{
		author: author,
		logger: logger,
	}
}

// ConvertMarkdownToPDF converts markdown content to a PDF byte slice
func (s *Service) ConvertMarkdownToPDF(markdown, title string) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("title", title).
				Msg("Recovered from panic while rendering PDF")
			out, err = nil, fmt.Errorf("failed to generate PDF: %v", r)
		}
	}()

	s.logger.Debug().
		Int("markdown_len", len(markdown)).
		Str("title", title).
		Msg("Converting markdown to PDF")

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor(s.author, true)
	pdf.SetCreator("tcsync", true)
	pdf.SetCreationDate(time.Now())
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AliasNbPages("")

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 8, tr(title), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})
	pdf.AddPage()
	pdf.SetFont("Arial", "", 10)

	md := goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough))
	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	renderer := &pdfRenderer{
		pdf:    pdf,
		source: source,
		tr:     tr,
		size:   10,
	}
	if err := ast.Walk(doc, renderer.walk); err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate PDF")
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate PDF output")
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}

	s.logger.Debug().Int("pdf_size", buf.Len()).Msg("PDF generated successfully")
	return buf.Bytes(), nil
}

type pdfRenderer struct {
	pdf       *fpdf.Fpdf
	source    []byte
	tr        func(string) string
	size      float64
	bold      bool
	italic    bool
	listLevel int
}

func (r *pdfRenderer) setFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont("Arial", style, r.size)
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			r.pdf.Ln(4)
			size := 15.0 - float64(node.Level)
			if size < 10 {
				size = 10
			}
			r.pdf.SetFont("Arial", "B", size)
		} else {
			r.pdf.Ln(7)
			r.setFont()
		}
	case *ast.Paragraph:
		if !entering {
			r.pdf.Ln(lineHeight + 1)
		}
	case *ast.Text:
		if entering {
			r.pdf.Write(lineHeight, r.tr(string(node.Segment.Value(r.source))))
			if node.SoftLineBreak() || node.HardLineBreak() {
				r.pdf.Ln(lineHeight)
			}
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.setFont()
	case *ast.CodeSpan:
		if entering {
			r.pdf.SetFont("Courier", "", r.size)
			r.pdf.Write(lineHeight, r.tr(string(node.Text(r.source))))
			r.setFont()
		}
		return ast.WalkSkipChildren, nil
	case *ast.List:
		if entering {
			r.listLevel++
		} else {
			r.listLevel--
			if r.listLevel == 0 {
				r.pdf.Ln(2)
			}
		}
	case *ast.ListItem:
		if entering {
			r.pdf.Ln(1)
			r.pdf.SetX(10 + float64(r.listLevel)*5)
			r.pdf.Write(lineHeight, "- ")
		}
	case *ast.ThematicBreak:
		if entering {
			r.pdf.Ln(2)
			r.pdf.SetDrawColor(180, 180, 180)
			r.pdf.Line(10, r.pdf.GetY(), 10+pageWidth, r.pdf.GetY())
			r.pdf.SetDrawColor(0, 0, 0)
			r.pdf.Ln(4)
		}
	case *extast.Table:
		if entering {
			r.renderTable(r.tableRows(node))
			return ast.WalkSkipChildren, nil
		}
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) tableRows(table *extast.Table) [][]string {
	var rows [][]string
	for child := table.FirstChild(); child != nil; child = child.NextSibling() {
		var cells []string
		for cell := child.FirstChild(); cell != nil; cell = cell.NextSibling() {
			if _, ok := cell.(*extast.TableCell); ok {
				cells = append(cells, strings.TrimSpace(string(cell.Text(r.source))))
			}
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	return rows
}

// renderTable draws rows as bordered, word-wrapped cells; the first row is the header
func (r *pdfRenderer) renderTable(rows [][]string) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	const fontSize = 8.0
	const cellLine = 4.0

	numCols := len(rows[0])
	widths := r.columnWidths(rows, numCols, fontSize)

	r.pdf.Ln(2)
	for i, row := range rows {
		style := ""
		if i == 0 {
			style = "B"
		}
		r.pdf.SetFont("Arial", style, fontSize)

		wrapped := make([][]string, numCols)
		maxLines := 1
		for j := 0; j < numCols; j++ {
			cell := ""
			if j < len(row) {
				cell = row[j]
			}
			wrapped[j] = r.wrap(cell, widths[j]-2)
			if len(wrapped[j]) > maxLines {
				maxLines = len(wrapped[j])
			}
		}

		height := float64(maxLines)*cellLine + 2
		x, y := r.pdf.GetX(), r.pdf.GetY()
		if y+height > pageBottom {
			r.pdf.AddPage()
			x, y = r.pdf.GetX(), r.pdf.GetY()
		}

		cellX := x
		for j := 0; j < numCols; j++ {
			if i == 0 {
				r.pdf.SetFillColor(230, 230, 230)
				r.pdf.Rect(cellX, y, widths[j], height, "FD")
			} else {
				r.pdf.Rect(cellX, y, widths[j], height, "D")
			}
			for k, line := range wrapped[j] {
				r.pdf.SetXY(cellX+1, y+1+float64(k)*cellLine)
				r.pdf.CellFormat(widths[j]-2, cellLine, line, "", 0, "L", false, 0, "")
			}
			cellX += widths[j]
		}
		r.pdf.SetXY(x, y+height)
	}

	r.pdf.Ln(3)
	r.setFont()
}

// wrap breaks UTF-8 text into lines no wider than width and returns them in the
// font encoding. Words wider than a line are split between characters.
func (r *pdfRenderer) wrap(s string, width float64) []string {
	fits := func(line string) bool {
		return r.pdf.GetStringWidth(r.tr(line)) <= width
	}

	var lines []string
	line := ""
	for _, word := range strings.Fields(s) {
		candidate := word
		if line != "" {
			candidate = line + " " + word
		}
		if fits(candidate) {
			line = candidate
			continue
		}
		if line != "" {
			lines = append(lines, r.tr(line))
			line = ""
		}
		if fits(word) {
			line = word
			continue
		}
		for _, ch := range word {
			if line != "" && !fits(line+string(ch)) {
				lines = append(lines, r.tr(line))
				line = ""
			}
			line += string(ch)
		}
	}
	if line != "" {
		lines = append(lines, r.tr(line))
	}
	return lines
}

// columnWidths sizes columns by content, then scales them to the page width
func (r *pdfRenderer) columnWidths(rows [][]string, numCols int, fontSize float64) []float64 {
	widths := make([]float64, numCols)
	r.pdf.SetFont("Arial", "B", fontSize)
	for _, row := range rows {
		for j := 0; j < numCols && j < len(row); j++ {
			if w := r.pdf.GetStringWidth(r.tr(row[j])) + 4; w > widths[j] {
				widths[j] = w
			}
		}
	}

	const minWidth = 15.0
	maxWidth := pageWidth / 2
	total := 0.0
	for j := range widths {
		if widths[j] < minWidth {
			widths[j] = minWidth
		}
		if widths[j] > maxWidth {
			widths[j] = maxWidth
		}
		total += widths[j]
	}

	scale := pageWidth / total
	for j := range widths {
		widths[j] *= scale
	}
	return widths
}
