package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hengadev/fieldcrypt/internal/processor"
	"github.com/hengadev/fieldcrypt/internal/strategy"
)

var errVetFailed = errors.New("struct tag validation failed")

// vetCommand checks the fieldcrypt tags of every Go file under the given
// paths. Directories are walked recursively; vendor and testdata are skipped.
func vetCommand(args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("vet", flag.ContinueOnError)
	flags.SetOutput(stderr)
	algorithms := flags.String("algorithms", "", "Extra algorithm names provided by custom strategies, comma separated")
	verbose := flags.Bool("v", false, "Verbose output")
	if err := flags.Parse(args); err != nil {
		return err
	}

	paths := flags.Args()
	if len(paths) == 0 {
		paths = []string{"."}
	}

	builtin := strategy.Default("")
	var extra []string
	for _, name := range strings.Split(*algorithms, ",") {
		if name = strings.ToUpper(strings.TrimSpace(name)); name != "" {
			extra = append(extra, name)
		}
	}
	known := func(name string) bool {
		if _, err := builtin.Find(name); err == nil {
			return true
		}
		return slices.Contains(extra, strings.ToUpper(name))
	}

	files, err := goFiles(paths)
	if err != nil {
		return err
	}

	validator := processor.NewStructTagValidator(known)
	failed := 0
	for _, file := range files {
		if err := validator.ValidateSourceFile(file); err != nil {
			fmt.Fprintln(stdout, err)
			failed++
			continue
		}
		if *verbose {
			fmt.Fprintf(stdout, "ok   %s\n", file)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w in %d of %d files", errVetFailed, failed, len(files))
	}
	fmt.Fprintf(stdout, "%d files checked\n", len(files))
	return nil
}

func goFiles(paths []string) ([]string, error) {
	var files []string
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if path != root && (name == "vendor" || name == "testdata" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(path, ".go") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
