package research

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractContextFormats(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		data        string
		wantType    string
		wantTitle   string
		wantText    string
	}{
		{
			name:     "plain text by extension",
			filename: "brand.txt",
			data:     "We roast   coffee.\r\n\r\n  Since 2009. ",
			wantType: "text/plain",
			wantText: "We roast coffee.\nSince 2009.",
		},
		{
			name:        "markdown with charset",
			filename:    "voice",
			contentType: "text/markdown; charset=utf-8",
			data:        "# Voice\n\n- warm\n- direct\n",
			wantType:    "text/markdown",
			wantText:    "# Voice\n- warm\n- direct",
		},
		{
			name:        "csv rows",
			filename:    "menu.csv",
			contentType: "application/octet-stream",
			data:        "item,price\nlatte, 4.50\nmocha,5.00,seasonal\n",
			wantType:    "text/csv",
			wantText:    "item | price\nlatte | 4.50\nmocha | 5.00 | seasonal",
		},
		{
			name:     "json is indented",
			filename: "audience.json",
			data:     `{"segment":"students"}`,
			wantType: "application/json",
			wantText: "{\n\"segment\": \"students\"\n}",
		},
		{
			name:        "html drops scripts and chrome",
			contentType: "text/html",
			data: `<html><head><title> Acme  Coffee </title><style>p{}</style></head>` +
				`<body><nav>Home</nav><h1>Acme Coffee</h1><p>We roast beans.</p><script>track()</script></body></html>`,
			wantType:  "text/html",
			wantTitle: "Acme Coffee",
			wantText:  "Acme Coffee\nWe roast beans.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ExtractContext(tt.filename, tt.contentType, []byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, doc.MediaType)
			assert.Equal(t, tt.wantTitle, doc.Title)
			assert.Equal(t, tt.wantText, doc.Text)
			assert.False(t, doc.Truncated)
		})
	}
}

func TestExtractContextRejectsUnsupportedAndEmpty(t *testing.T) {
	_, err := ExtractContext("logo.png", "image/png", []byte{0x89, 'P', 'N', 'G'})
	assert.ErrorIs(t, err, ErrUnsupportedDocument)

	_, err = ExtractContext("blank.txt", "", []byte("  \n\t\n"))
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = ExtractContext("broken.pdf", "", []byte("not a pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "application/pdf")
}

func TestExtractContextTruncatesLongDocuments(t *testing.T) {
	doc, err := ExtractContext("long.txt", "", []byte(strings.Repeat("é", maxContextDocumentRunes+10)))
	require.NoError(t, err)

	assert.True(t, doc.Truncated)
	assert.Equal(t, maxContextDocumentRunes, len([]rune(doc.Text)))
}

func TestContextDocumentPlannerContext(t *testing.T) {
	assert.Equal(t, "Acme\n\nWe roast beans.", ContextDocument{Title: "Acme", Text: "We roast beans."}.PlannerContext())
	assert.Equal(t, "We roast beans.", ContextDocument{Text: "We roast beans."}.PlannerContext())
}
