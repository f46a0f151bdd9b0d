package ingest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	yaml "gopkg.in/yaml.v3"
)

// Extracted is the result of turning raw uploaded bytes into ingestable text
// plus any metadata the format itself carries (markdown frontmatter tags,
// title, ...).
type Extracted struct {
	Text     string
	Title    string
	Tags     []string
	Metadata map[string]any
}

// ExtractText dispatches on filename extension per §4.2a: PDF pages are
// concatenated via ledongthuc/pdf, markdown frontmatter is parsed into
// metadata and stripped from the body, everything else is treated as
// plain text/source with invalid UTF-8 sequences replaced by U+FFFD.
func ExtractText(filename string, raw []byte) (Extracted, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		text, err := extractPDF(raw)
		if err != nil {
			return Extracted{}, fmt.Errorf("extract pdf %q: %w", filename, err)
		}
		return Extracted{Text: text}, nil
	case ".md", ".markdown":
		return extractMarkdown(raw), nil
	default:
		return Extracted{Text: strings.ToValidUTF8(string(raw), "�")}, nil
	}
}

func extractPDF(raw []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		out.WriteString(text)
		out.WriteString("\n\n")
	}
	return strings.TrimSpace(out.String()), nil
}

// frontmatterDelims pairs an opening fence with its closing fence; markdown
// frontmatter is either YAML (---) or TOML (+++). TOML is handled with a
// minimal key="value" line scanner, not a full parser.
var frontmatterDelims = [...][2]string{{"---", "---"}, {"+++", "+++"}}

func extractMarkdown(raw []byte) Extracted {
	text := string(raw)
	meta := map[string]any{}
	var tags []string

	for _, d := range frontmatterDelims {
		open, close := d[0], d[1]
		if !strings.HasPrefix(text, open+"\n") {
			continue
		}
		rest := text[len(open)+1:]
		end := strings.Index(rest, "\n"+close)
		if end < 0 {
			continue
		}
		block := rest[:end]
		body := strings.TrimPrefix(rest[end+1+len(close):], "\n")
		if open == "---" {
			_ = yaml.Unmarshal([]byte(block), &meta)
		} else {
			meta = parseTOMLLines(block)
		}
		tags = extractTags(meta["tags"])
		text = body
		break
	}

	text = normalizeHeadings(text)

	title, _ := meta["title"].(string)
	if title == "" {
		title = firstH1(text)
	}
	return Extracted{Text: strings.TrimSpace(text), Title: title, Tags: tags, Metadata: meta}
}

func parseTOMLLines(block string) map[string]any {
	out := map[string]any{}
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"`)
		out[key] = val
	}
	return out
}

func extractTags(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

var setextRe = []struct {
	suffix string
	level  string
}{
	{"===", "# "},
	{"---", "## "},
}

// normalizeHeadings collapses Setext-style headings (underlined with ===/---)
// to ATX (#) form and collapses runs of two or more blank lines to one.
func normalizeHeadings(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if i+1 < len(lines) && strings.TrimSpace(line) != "" {
			next := strings.TrimSpace(lines[i+1])
			for _, r := range setextRe {
				if next != "" && strings.Count(next, string(next[0])) == len(next) && string(next[0]) == string(r.suffix[0]) {
					out = append(out, r.level+strings.TrimSpace(line))
					i++
					line = ""
					break
				}
			}
			if line == "" {
				continue
			}
		}
		out = append(out, line)
	}
	collapsed := strings.Join(out, "\n")
	for strings.Contains(collapsed, "\n\n\n") {
		collapsed = strings.ReplaceAll(collapsed, "\n\n\n", "\n\n")
	}
	return collapsed
}

func firstH1(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	return ""
}
