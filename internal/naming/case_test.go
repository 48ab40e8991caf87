package naming

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnakeCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"addPet", "add_pet"},
		{"updatePet", "update_pet"},
		{"listHealthcareUsersByRole", "list_healthcare_users_by_role"},
		{"get_pets_by_petId", "get_pets_by_pet_id"},
		{"hello-world", "hello_world"},
		{"hello world", "hello_world"},
		{"v2Users", "v2_users"},
		{"pets.list", "pets_list"},
		{"HTTPServer", "httpserver"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			require.Equal(t, tt.expected, SnakeCase(tt.input))
		})
	}
}
