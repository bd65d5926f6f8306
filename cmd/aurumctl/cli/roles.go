package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// RoleSeeder creates missing built-in roles.
type RoleSeeder interface {
	SeedBuiltinRoles(ctx context.Context) ([]string, error)
}

// SeedRolesCommand seeds built-in roles and prints the ones it created.
func SeedRolesCommand(ctx context.Context, seeder RoleSeeder, stdout, stderr io.Writer) int {
	created, err := seeder.SeedBuiltinRoles(ctx)
	if len(created) > 0 {
		_, _ = fmt.Fprintf(stdout, "created roles: %s\n", strings.Join(created, ", "))
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "seed-roles: %v\n", err)
		return 1
	}
	if len(created) == 0 {
		_, _ = fmt.Fprintln(stdout, "built-in roles already present")
	}
	return 0
}
