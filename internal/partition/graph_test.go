package partition

import (
	"testing"

	"github.com/kolah/mcpforge/internal/model"
	"github.com/stretchr/testify/require"
)

func TestBuildGraph(t *testing.T) {
	modules := []Module{
		{Name: "default", Operations: []model.Operation{{ID: "health"}}},
		{Name: "pet", Operations: []model.Operation{{ID: "addPet"}, {ID: "updatePet"}}},
	}

	g, err := BuildGraph("petstore", modules, "", "")
	require.NoError(t, err)
	require.Equal(t, Graph{
		Root:         "petstore",
		Strategy:     StrategyMount,
		PrefixFormat: PrefixPath,
		Mounts: []Mount{
			{Module: "default", Prefix: "default", Tools: 1},
			{Module: "pet", Prefix: "pet", Tools: 2},
		},
	}, g)
}

func TestBuildGraphValidation(t *testing.T) {
	tests := []struct {
		name        string
		strategy    Strategy
		format      PrefixFormat
		errContains string
	}{
		{name: "import", strategy: StrategyImport, format: PrefixProtocol},
		{name: "bad strategy", strategy: "copy", errContains: "invalid composition strategy: copy"},
		{name: "bad format", format: "query", errContains: "invalid resource prefix format: query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildGraph("root", nil, tt.strategy, tt.format)
			if tt.errContains == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.errContains)
		})
	}
}

func TestPrefixURI(t *testing.T) {
	path := Graph{PrefixFormat: PrefixPath}
	require.Equal(t, "pet://store/pet/{id}", path.PrefixURI("store", "pet://pet/{id}"))

	protocol := Graph{PrefixFormat: PrefixProtocol}
	require.Equal(t, "store+pet://pet/{id}", protocol.PrefixURI("store", "pet://pet/{id}"))

	require.Equal(t, "pet://pet/{id}", path.PrefixURI("", "pet://pet/{id}"))
	require.Equal(t, "opaque", path.PrefixURI("x", "opaque"))
}
