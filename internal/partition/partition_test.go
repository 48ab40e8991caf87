package partition

import (
	"testing"

	"github.com/kolah/mcpforge/internal/model"
	"github.com/stretchr/testify/require"
)

func tagged(id string, tags ...string) model.Operation {
	return model.Operation{ID: id, Method: model.MethodPost, Path: "/" + id, Tags: tags}
}

func moduleNames(modules []Module) []string {
	out := make([]string, 0, len(modules))
	for _, m := range modules {
		out = append(out, m.Name)
	}
	return out
}

func opIDs(m Module) []string {
	out := make([]string, 0, len(m.Operations))
	for _, op := range m.Operations {
		out = append(out, op.ID)
	}
	return out
}

func TestPartitionFirstTagWins(t *testing.T) {
	spec := &model.Spec{Operations: []model.Operation{
		tagged("addPet", "pet"),
		tagged("placeOrder", "store", "pet"),
		tagged("updatePet", "pet", "store"),
		tagged("getInventory", "store"),
	}}

	modules := Partition(spec)
	require.Equal(t, []string{"pet", "store"}, moduleNames(modules))
	require.Equal(t, []string{"addPet", "updatePet"}, opIDs(modules[0]))
	require.Equal(t, []string{"placeOrder", "getInventory"}, opIDs(modules[1]))
}

func TestPartitionDefaultModuleFirst(t *testing.T) {
	spec := &model.Spec{Operations: []model.Operation{
		tagged("getStatus", "store"),
		tagged("health"),
		tagged("addPet", "pet"),
		tagged("version"),
	}}

	modules := Partition(spec)
	require.Equal(t, []string{"default", "store", "pet"}, moduleNames(modules))
	require.Equal(t, []string{"health", "version"}, opIDs(modules[0]))
	require.Empty(t, modules[0].Tag)
	require.Equal(t, "Default", modules[0].Title)
}

func TestPartitionNormalizesAndDeduplicates(t *testing.T) {
	spec := &model.Spec{Operations: []model.Operation{
		tagged("a", "Pet Store"),
		tagged("b", "pet-store"),
		tagged("c", "PET_STORE"),
		tagged("d", "2FA"),
		tagged("e", "Default"),
		tagged("f"),
	}}

	modules := Partition(spec)
	require.Equal(t, []string{"default", "pet_store", "pet_store_2", "pet_store_3", "t_2fa", "default_2"}, moduleNames(modules))
	require.Equal(t, "Pet Store", modules[1].Tag)
	require.Equal(t, "Pet-Store", modules[2].Title)
}

func TestPartitionEveryOperationExactlyOnce(t *testing.T) {
	var ops []model.Operation
	tags := [][]string{{"a"}, {"b", "a"}, nil, {"c"}, {"a", "c"}, nil}
	for i, tg := range tags {
		ops = append(ops, tagged(string(rune('p'+i)), tg...))
	}
	modules := Partition(&model.Spec{Operations: ops})

	count := make(map[string]int)
	for _, m := range modules {
		for _, op := range m.Operations {
			count[op.ID]++
		}
	}
	require.Len(t, count, len(ops))
	for id, n := range count {
		require.Equal(t, 1, n, id)
	}
}

func TestPartitionRequiredScopes(t *testing.T) {
	read := model.Operation{
		ID: "listPets", Method: model.MethodGet, Path: "/pets", Tags: []string{"pet"},
		Security: []model.SecurityRequirementSet{{{Name: "oauth", Scopes: []string{"pets:read"}}}},
	}
	write := model.Operation{
		ID: "addPet", Method: model.MethodPost, Path: "/pets", Tags: []string{"pet"},
		Security: []model.SecurityRequirementSet{{{Name: "oauth", Scopes: []string{"pets:write", "pets:read"}}}},
	}
	public := model.Operation{ID: "health", Method: model.MethodGet, Path: "/health", Security: []model.SecurityRequirementSet{}}

	modules := Partition(&model.Spec{Operations: []model.Operation{read, write, public}})
	require.Empty(t, modules[0].RequiredScopes)
	require.Equal(t, []string{"pets:read", "pets:write"}, modules[1].RequiredScopes)
	require.Equal(t, map[string][]string{"default": nil, "pet": {"pets:read", "pets:write"}}, ModuleScopes(modules))
}

func TestPartitionTagDescription(t *testing.T) {
	spec := &model.Spec{
		Tags:       []model.Tag{{Name: "pet", Description: "Everything about your pets"}},
		Operations: []model.Operation{tagged("addPet", "pet")},
	}
	modules := Partition(spec)
	require.Equal(t, "Everything about your pets", modules[0].Description)
	require.Equal(t, "Pet", modules[0].Title)
}

func TestPartitionDeterministic(t *testing.T) {
	spec := &model.Spec{Operations: []model.Operation{
		tagged("a", "x"), tagged("b"), tagged("c", "y"), tagged("d", "x"), tagged("e", "z"),
	}}
	first := Partition(spec)
	for range 10 {
		require.Equal(t, first, Partition(spec))
	}
}

func TestGroupsFollowModuleOrder(t *testing.T) {
	modules := Partition(&model.Spec{Operations: []model.Operation{tagged("a", "x"), tagged("b")}})
	groups := Groups(modules)
	require.Len(t, groups, 2)
	require.Equal(t, "default", groups[0].Module)
	require.Equal(t, "b", groups[0].Operations[0].ID)
}
