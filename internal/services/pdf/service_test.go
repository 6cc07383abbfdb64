package pdf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func pageCount(t *testing.T, data []byte) int {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, data, 0644))

	ctx, err := api.ReadContextFile(path)
	require.NoError(t, err)
	return ctx.PageCount
}

func TestConvertMarkdownToPDF(t *testing.T) {
	service := NewService("Acme Safety", arbor.NewLogger())

	tests := []struct {
		name     string
		markdown string
	}{
		{
			name:     "plain paragraph",
			markdown: "Your upload finished with errors.",
		},
		{
			name: "failure report",
			markdown: `# Certificate upload report

**Batch:** 3f2a  
*Uploaded by* ops@acme.test

| Name | Certificate | Reason | Solution |
|------|-------------|--------|----------|
| Jane Doe | 7781 | The certificate could not be saved. | Check the ` + "`certificate_id`" + ` column. |
| José Núñez | 7782 | Unable to locate user in Training Connect. | Verify the user's card id. |

---

- first item
- second item
`,
		},
		{
			name:     "empty",
			markdown: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := service.ConvertMarkdownToPDF(tt.markdown, "Upload report")
			require.NoError(t, err)
			require.True(t, len(data) > 0)
			assert.True(t, strings.HasPrefix(string(data), "%PDF"))
			assert.Equal(t, 1, pageCount(t, data))
		})
	}
}

func TestConvertMarkdownToPDF_LongTableBreaksPages(t *testing.T) {
	service := NewService("Acme Safety", arbor.NewLogger())

	var b strings.Builder
	b.WriteString("| Name | Reason |\n|---|---|\n")
	for i := 0; i < 120; i++ {
		b.WriteString("| Student | User is missing phone number |\n")
	}

	data, err := service.ConvertMarkdownToPDF(b.String(), "Upload report")
	require.NoError(t, err)
	assert.Greater(t, pageCount(t, data), 1)
}

func TestConvertMarkdownToPDF_NonASCIICells(t *testing.T) {
	service := NewService("Acme Safety", arbor.NewLogger())

	markdown := "| Student | Issue | Next Steps |\n|---|---|---|\n" +
		"| José Núñez | Unable to locate user in Training Connect — please check the card id. | Verify the user’s card id. |\n" +
		"| Zoë Ångström-Łukasiewicz | " + strings.Repeat("Ünïcödé ", 40) + " | 田中 太郎 |\n" +
		"| Wordwithoutanyspacesthatiswiderthanthecolumnwordwithoutanyspacesthatiswiderthanthecolumnwordwithoutanyspaces | x | y |\n"

	data, err := service.ConvertMarkdownToPDF(markdown, "Student upload – Núñez")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
	assert.Equal(t, 1, pageCount(t, data))
}

func TestWrapKeepsLinesWithinWidth(t *testing.T) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", 8)
	r := &pdfRenderer{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	lines := r.wrap("José Núñez could not be found in the portal because his card id is missing", 30)
	require.Greater(t, len(lines), 1)
	for _, line := range lines {
		assert.LessOrEqual(t, pdf.GetStringWidth(line), 30.0)
	}
	assert.Equal(t, r.tr("José"), strings.Fields(lines[0])[0])

	long := r.wrap(strings.Repeat("é", 200), 20)
	require.Greater(t, len(long), 1)
	for _, line := range long {
		assert.LessOrEqual(t, pdf.GetStringWidth(line), 20.0)
	}

	assert.Empty(t, r.wrap("", 20))
}
