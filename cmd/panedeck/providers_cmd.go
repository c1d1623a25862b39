package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/twistedxcom/panedeck/internal/provider"
	"github.com/twistedxcom/panedeck/internal/session"
)

func runProviders(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		def := session.GetDefaultProvider()
		for _, name := range provider.Names() {
			marker := " "
			if name == def {
				marker = "*"
			}
			fmt.Fprintf(stdout, "%s %s\n", marker, name)
		}
		return 0
	case "files":
		return runProviderFiles(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "panedeck providers: unknown subcommand %q\n", args[0])
		return 2
	}
}

// runProviderFiles prints the files a provider would write into a
// worktree, or writes them with --write.
func runProviderFiles(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("providers files", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	name := fs.StringP("provider", "p", session.GetDefaultProvider(), "provider name")
	task := fs.StringP("task", "t", "", "worktree task id")
	dir := fs.StringP("dir", "d", ".", "worktree directory")
	write := fs.BoolP("write", "w", false, "write the files instead of printing them")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "panedeck providers files: %v\n", err)
		return 2
	}
	if *task == "" {
		fmt.Fprintln(stderr, "panedeck providers files: --task is required")
		return 2
	}

	p, err := provider.Get(*name)
	if err != nil {
		fmt.Fprintf(stderr, "panedeck providers files: %v\n", err)
		return 1
	}
	workDir, err := filepath.Abs(*dir)
	if err != nil {
		fmt.Fprintf(stderr, "panedeck providers files: %v\n", err)
		return 1
	}
	files, err := p.GenerateFiles(*task, workDir)
	if err != nil {
		fmt.Fprintf(stderr, "panedeck providers files: %v\n", err)
		return 1
	}

	if *write {
		if err := provider.WriteFiles(workDir, files); err != nil {
			fmt.Fprintf(stderr, "panedeck providers files: %v\n", err)
			return 1
		}
		for _, f := range files {
			fmt.Fprintf(stdout, "wrote %s\n", filepath.Join(workDir, f.Path))
		}
		return 0
	}
	for _, f := range files {
		fmt.Fprintf(stdout, "==> %s <==\n%s", f.Path, f.Content)
		if n := len(f.Content); n == 0 || f.Content[n-1] != '\n' {
			fmt.Fprintln(stdout)
		}
	}
	return 0
}
