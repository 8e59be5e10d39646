// Package shell hands the directory the user was browsing back to the
// wrapping shell function that launched dtree, so it can cd there.
package shell

import (
	"fmt"
	"os"
)

// EnvVar is the environment variable a wrapping shell function sets to a
// writable file path before exec'ing dtree.
const EnvVar = "DTREE_CD_FILE"

// EmitTarget writes dir as the chosen directory: to the file named by
// $DTREE_CD_FILE if set, otherwise to stdout when stdout is not a
// terminal (so `dtree > captured` style invocations still work without
// the wrapper). This only works because the TUI itself renders to
// stderr (see cmd/dtree/main.go's tea.WithOutput(os.Stderr)), leaving
// stdout free for this fallback. When dir is empty (the user quit
// without picking a destination) nothing is written.
func EmitTarget(dir string) error {
	if dir == "" {
		return nil
	}
	if path := os.Getenv(EnvVar); path != "" {
		return writeFile(path, dir)
	}
	if isTerminal(os.Stdout) {
		return nil
	}
	_, err := fmt.Fprintln(os.Stdout, dir)
	return err
}

func writeFile(path, dir string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, dir)
	return err
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
