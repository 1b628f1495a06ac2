package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimplifyHTMLStripsNoise(t *testing.T) {
	in := `<html><head>
<script>alert("hi")</script>
<style>.a { color: red }</style>
<meta name="description" content="desc">
<link rel="stylesheet" href="x.css">
</head><body>
<noscript>enable js</noscript>
<iframe src="ad.html"></iframe>
<!-- a comment -->
<div style="display: none">hidden</div>
<p hidden>also hidden</p>
<form id="login" action="/login" method="post" data-track="abc123" onclick="spy()">
  <input type="email" name="email" placeholder="Email">
</form>
</body></html>`

	out, err := SimplifyHTML(in)
	require.NoError(t, err)

	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "<style")
	assert.NotContains(t, out, "<meta")
	assert.NotContains(t, out, "<link")
	assert.NotContains(t, out, "<noscript")
	assert.NotContains(t, out, "<iframe")
	assert.NotContains(t, out, "a comment")
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "onclick")

	// Selector-relevant attributes and data-* survive.
	assert.Contains(t, out, `id="login"`)
	assert.Contains(t, out, `action="/login"`)
	assert.Contains(t, out, `name="email"`)
	assert.Contains(t, out, `placeholder="Email"`)
	assert.Contains(t, out, `data-track="abc123"`)
}

func TestSimplifyHTMLReplacesSVG(t *testing.T) {
	out, err := SimplifyHTML(`<div><svg viewBox="0 0 24 24"><path d="M1 2"/></svg></div>`)
	require.NoError(t, err)
	assert.Contains(t, out, "svg-placeholder")
	assert.NotContains(t, out, "viewBox")
}

func TestSimplifyHTMLCapsClassList(t *testing.T) {
	out, err := SimplifyHTML(`<div class="a b c d e f">x</div>`)
	require.NoError(t, err)
	assert.Contains(t, out, `class="a b c"`)
	assert.NotContains(t, out, `class="a b c d`)
}

func TestVisibleText(t *testing.T) {
	text, err := VisibleText(`<html><body>
<script>var x = 1;</script>
<h1>Welcome</h1>
<p>Log in   to
continue.</p>
</body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "Welcome Log in to continue.", text)
}

func TestMetaDescription(t *testing.T) {
	assert.Equal(t, "A test page",
		MetaDescription(`<head><meta name="description" content="A test page"></head>`))
	assert.Equal(t, "Shared page",
		MetaDescription(`<head><meta property="og:description" content="Shared page"></head>`))
	assert.Empty(t, MetaDescription(`<head><meta name="viewport" content="width=device-width"></head>`))
}
