package emit

import (
	"golang.org/x/tools/imports"
)

// FormatGo gofmts src and fixes its import block.
func FormatGo(filename string, src []byte) ([]byte, error) {
	return imports.Process(filename, src, &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: false,
	})
}
