// Command fieldcrypt encrypts and decrypts column values, previews SQL
// rewriting, checks struct tags and manages per-column keys.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hengadev/fieldcrypt"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	var err error
	switch command, rest := args[0], args[1:]; command {
	case "keygen":
		err = keygenCommand(rest, stdout)
	case "encrypt":
		err = cryptCommand("encrypt", rest, stdin, stdout, stderr)
	case "decrypt":
		err = cryptCommand("decrypt", rest, stdin, stdout, stderr)
	case "rewrite":
		err = rewriteCommand(rest, stdin, stdout, stderr)
	case "vet":
		err = vetCommand(rest, stdout, stderr)
	case "keys":
		err = keysCommand(ctx, rest, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, fieldcrypt.VersionInfo())
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printUsage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
}

var errUsage = errors.New("usage")

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: fieldcrypt <command> [options]\n")
	fmt.Fprintf(w, "\nCommands:\n")
	fmt.Fprintf(w, "  keygen   Generate a random key\n")
	fmt.Fprintf(w, "  encrypt  Encrypt values for a column\n")
	fmt.Fprintf(w, "  decrypt  Decrypt values of a column\n")
	fmt.Fprintf(w, "  rewrite  Show how a statement is rewritten in DB mode\n")
	fmt.Fprintf(w, "  vet      Check fieldcrypt struct tags in Go files\n")
	fmt.Fprintf(w, "  keys     List, set or rotate per-column keys in a key store\n")
	fmt.Fprintf(w, "  version  Show version information\n")
	fmt.Fprintf(w, "\nRun 'fieldcrypt <command> -h' for help on a specific command.\n")
}

func keygenCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	algorithm := fs.String("algorithm", fieldcrypt.AlgorithmAES, "Algorithm the key is for")
	count := fs.Int("n", 1, "Number of keys to generate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *count < 1 {
		return usageError("-n must be at least 1")
	}

	for i := 0; i < *count; i++ {
		key, err := fieldcrypt.GenerateKey(*algorithm)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, key)
	}
	return nil
}

// cryptCommand encrypts or decrypts each positional argument, or each line
// of stdin when there are none.
func cryptCommand(direction string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(direction, flag.ContinueOnError)
	fs.SetOutput(stderr)
	ef := registerEngineFlags(fs)
	column := fs.String("column", "", "Column as table.field, selects the column key and algorithm")
	if err := fs.Parse(args); err != nil {
		return err
	}
	table, field, ok := strings.Cut(*column, ".")
	if !ok || table == "" || field == "" {
		return usageError("-column must be table.field")
	}

	engine, err := ef.engine(stderr)
	if err != nil {
		return err
	}
	transform := engine.EncryptValue
	if direction == "decrypt" {
		transform = engine.DecryptValue
	}

	return eachValue(fs.Args(), stdin, func(value string) error {
		out, err := transform(table, field, value)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, out)
		return nil
	})
}

func rewriteCommand(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("rewrite", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ef := registerEngineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	engine, err := ef.engine(stderr)
	if err != nil {
		return err
	}
	if len(engine.EncryptedTables()) == 0 {
		fmt.Fprintln(stderr, "warning: no encrypted fields configured, statements pass through unchanged")
	}

	return eachValue(fs.Args(), stdin, func(statement string) error {
		fmt.Fprintln(stdout, engine.Rewrite(statement).SQL)
		return nil
	})
}

func eachValue(args []string, stdin io.Reader, fn func(string) error) error {
	if len(args) > 0 {
		for _, arg := range args {
			if err := fn(arg); err != nil {
				return err
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
