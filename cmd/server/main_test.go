package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.ElementsMatch(t, []string{"serve", "migrate", "seed", "reveal"}, names)
}

func TestSeedFailsOnMissingFile(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"seed", "--file", filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, root.Execute())
}
