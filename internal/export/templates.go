package export

const conceptTemplate = `# {{ heading .Concept.Theme }}

*Concept ` + "`{{ .Concept.ID }}`" + `, {{ .Concept.Strategy }} strategy, {{ len .Links }} note(s) from {{ len .Documents }} document(s).*

{{ .Concept.Theme }}
{{ if .Concept.Perspectives }}
## Perspectives
{{ range .Concept.Perspectives }}
- {{ .Statement }}
{{- end }}
{{ end }}
{{- if .Concept.Contradictions }}
## Contradictions
{{ range .Concept.Contradictions }}
- {{ .Description }}
{{- end }}
{{ end }}
## Sources
{{ range .Links }}
{{ quote .Note.Text }}

From **{{ docTitle .Document }}** (` + "`{{ .Document.ID }}`" + ` version ` + "`{{ short .Document.ContentHash }}`" + `), {{ .Note.Type }} ` + "`{{ .Note.ID }}`" + `.
{{ end }}
[Back to index](../index.md)
`

const indexTemplate = `# {{ .Title }}

{{ len .Concepts }} active concept(s).
{{ if .Concepts }}
| Concept | Strategy | Notes | Documents |
|---------|----------|-------|-----------|
{{ range .Concepts }}| [{{ heading .Concept.Theme }}]({{ .Href }}) | {{ .Concept.Strategy }} | {{ len .Concept.Sources }} | {{ .Documents }} |
{{ end }}
{{- end }}
`

// pageTemplate wraps rendered markdown for the HTML export.
const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}} | {{.SiteTitle}}</title>
  <link rel="stylesheet" href="{{.BasePath}}style.css">
</head>
<body>
  <header class="top-bar"><a href="{{.BasePath}}index.html">{{.SiteTitle}}</a></header>
  <article class="page-content">
    {{.Content}}
  </article>
</body>
</html>
`

const cssContent = `:root {
  --bg: #ffffff;
  --fg: #1f2328;
  --muted: #656d76;
  --border: #d0d7de;
  --accent: #0969da;
}
body { margin: 0; background: var(--bg); color: var(--fg); font: 16px/1.6 -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; }
a { color: var(--accent); text-decoration: none; }
a:hover { text-decoration: underline; }
.top-bar { padding: 12px 24px; border-bottom: 1px solid var(--border); font-weight: 600; }
.page-content { max-width: 860px; margin: 0 auto; padding: 24px; }
blockquote { margin: 16px 0 4px; padding: 0 16px; color: var(--fg); border-left: 4px solid var(--border); }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid var(--border); padding: 6px 12px; text-align: left; }
code { background: #f6f8fa; padding: 2px 4px; border-radius: 4px; font-size: 85%; }
em { color: var(--muted); }
`
