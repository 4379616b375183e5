package export

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// WriteMarkdown writes pages under dir, mirroring their paths.
func WriteMarkdown(dir string, pages []Page) error {
	for _, p := range pages {
		outPath := filepath.Join(dir, filepath.FromSlash(p.Path))
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(outPath, p.Markdown, 0o644); err != nil {
			return err
		}
	}
	return nil
}

type pageData struct {
	Title     string
	SiteTitle string
	Content   template.HTML
	BasePath  string
}

// WriteHTML converts pages to a static HTML site under dir. Raw HTML in
// note text is escaped, not passed through.
func WriteHTML(dir, siteTitle string, pages []Page) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "style.css"), []byte(cssContent), 0o644); err != nil {
		return err
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	tmpl, err := template.New("page").Parse(pageTemplate)
	if err != nil {
		return fmt.Errorf("parsing page template: %w", err)
	}

	for _, p := range pages {
		var buf bytes.Buffer
		if err := md.Convert(p.Markdown, &buf); err != nil {
			return fmt.Errorf("converting %s: %w", p.Path, err)
		}

		htmlPath := mdPathToHTML(p.Path)
		outPath := filepath.Join(dir, filepath.FromSlash(htmlPath))
		if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
			return err
		}
		data := pageData{
			Title:     p.Title,
			SiteTitle: siteTitle,
			Content:   template.HTML(rewriteMDLinks(buf.String())),
			BasePath:  strings.Repeat("../", strings.Count(htmlPath, "/")),
		}
		if err := writePage(tmpl, outPath, data); err != nil {
			return fmt.Errorf("rendering %s: %w", p.Path, err)
		}
	}
	return nil
}

func writePage(tmpl *template.Template, path string, data pageData) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := tmpl.Execute(f, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func mdPathToHTML(p string) string {
	return strings.TrimSuffix(p, ".md") + ".html"
}

// rewriteMDLinks points relative .md links at their .html pages.
func rewriteMDLinks(content string) string {
	return strings.ReplaceAll(content, `.md"`, `.html"`)
}
