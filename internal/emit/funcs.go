package emit

import (
	"strconv"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TemplateFuncs returns the helpers available to every template.
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"goString":  strconv.Quote,
		"goComment": GoComment,
		"mdCell":    MarkdownCell,
		"join":      strings.Join,
		"lower":     strings.ToLower,
		"upper":     strings.ToUpper,
		"title":     Title,
		"firstLine": FirstLine,
	}
}

// GoComment renders text as a block of line comments.
func GoComment(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			lines[i] = "//"
			continue
		}
		lines[i] = "// " + line
	}
	return strings.Join(lines, "\n")
}

// MarkdownCell flattens text for use inside a table cell.
func MarkdownCell(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	return strings.ReplaceAll(text, "|", `\|`)
}

// FirstLine returns the first non-empty line of text.
func FirstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func Title(s string) string {
	return cases.Title(language.English).String(s)
}
