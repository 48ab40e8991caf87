package partition

import (
	"fmt"
	"strings"
)

// Strategy selects how module servers are attached to the root server.
type Strategy string

const (
	// StrategyMount links modules live: the root delegates to each module.
	StrategyMount Strategy = "mount"
	// StrategyImport copies module tools into the root once at startup.
	StrategyImport Strategy = "import"
)

// PrefixFormat selects how resource URIs carry the module prefix.
type PrefixFormat string

const (
	// PrefixPath renders resource://prefix/path.
	PrefixPath PrefixFormat = "path"
	// PrefixProtocol renders prefix+resource://path.
	PrefixProtocol PrefixFormat = "protocol"
)

// Mount attaches one module under the root server.
type Mount struct {
	Module string `json:"module"`
	Prefix string `json:"prefix"`
	Tools  int    `json:"tools"`
}

// Graph is the composition graph: a single root with one mount per module.
type Graph struct {
	Root         string       `json:"root"`
	Strategy     Strategy     `json:"strategy"`
	PrefixFormat PrefixFormat `json:"resource_prefix_format"`
	Mounts       []Mount      `json:"mounts"`
}

// BuildGraph mounts every module under root, prefixed by its name.
func BuildGraph(root string, modules []Module, strategy Strategy, format PrefixFormat) (Graph, error) {
	switch strategy {
	case "":
		strategy = StrategyMount
	case StrategyMount, StrategyImport:
	default:
		return Graph{}, fmt.Errorf("invalid composition strategy: %s (valid: mount, import)", strategy)
	}
	switch format {
	case "":
		format = PrefixPath
	case PrefixPath, PrefixProtocol:
	default:
		return Graph{}, fmt.Errorf("invalid resource prefix format: %s (valid: path, protocol)", format)
	}

	g := Graph{Root: root, Strategy: strategy, PrefixFormat: format}
	for _, m := range modules {
		g.Mounts = append(g.Mounts, Mount{
			Module: m.Name,
			Prefix: m.Name,
			Tools:  len(m.Operations),
		})
	}
	return g, nil
}

// PrefixURI applies the module prefix to a resource URI template.
func (g Graph) PrefixURI(prefix, uri string) string {
	if prefix == "" {
		return uri
	}
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	if g.PrefixFormat == PrefixProtocol {
		return prefix + "+" + scheme + "://" + rest
	}
	return scheme + "://" + prefix + "/" + rest
}
