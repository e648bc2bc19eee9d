package seo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyze_FullySignaledPage(t *testing.T) {
	html := `<html><head>
		<title>  Widgets   for   Sale  </title>
		<meta name="description" content="Buy the best widgets online.">
		<meta property="og:title" content="Widgets">
		<meta name="twitter:card" content="summary">
		<meta name="viewport" content="width=device-width, initial-scale=1">
	</head><body>
		<h1>Welcome</h1>
		<h1>Featured widgets</h1>
		<p>Lots of widgets here.</p>
	</body></html>`

	result := Analyze(html)

	assert.Equal(t, "Widgets for Sale", result.Title)
	assert.Equal(t, "Buy the best widgets online.", result.MetaDescription)
	assert.Equal(t, 2, result.H1Count)
	assert.True(t, result.HasOpenGraph)
	assert.True(t, result.HasTwitterCard)
	assert.True(t, result.HasViewport)
	assert.False(t, result.IsSoft404)
}

func TestAnalyze_MinimalPage(t *testing.T) {
	result := Analyze(`<html><head></head><body><p>hi</p></body></html>`)

	assert.Empty(t, result.Title)
	assert.Empty(t, result.MetaDescription)
	assert.Equal(t, 0, result.H1Count)
	assert.False(t, result.HasOpenGraph)
	assert.False(t, result.HasTwitterCard)
	assert.False(t, result.HasViewport)
}

func TestAnalyze_Soft404DetectedInBody(t *testing.T) {
	result := Analyze(`<html><head><title>Oops</title></head><body><h1>404</h1><p>Sorry, the page you requested could not be found.</p></body></html>`)
	assert.True(t, result.IsSoft404)
}

func TestAnalyze_Soft404DetectedInTitle(t *testing.T) {
	result := Analyze(`<html><head><title>Page Not Found</title></head><body><p>Nothing here.</p></body></html>`)
	assert.True(t, result.IsSoft404)
}

func TestAnalyze_TitleTruncatedAtMaxLength(t *testing.T) {
	long := ""
	for i := 0; i < 600; i++ {
		long += "a"
	}
	result := Analyze(`<html><head><title>` + long + `</title></head><body></body></html>`)
	assert.Len(t, []rune(result.Title), maxTitleLength)
}

func TestAnalyze_InvalidHTMLDoesNotPanic(t *testing.T) {
	result := Analyze("not even close to html <<<>>>")
	assert.NotNil(t, result)
}
