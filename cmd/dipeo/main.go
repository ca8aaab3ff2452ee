package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]
	env := loadEnvConfig()

	var err error
	switch cmd {
	case "run":
		err = runCommand(args, env)
	case "stats":
		err = statsCommand(args, env)
	case "compile":
		err = compileCommand(args, env)
	case "convert":
		err = convertCommand(args, env)
	case "list":
		err = listCommand(args, env)
	case "metrics":
		err = metricsCommand(args, env)
	case "results":
		err = resultsCommand(args, env)
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "dipeo: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "dipeo %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `dipeo <command> [flags]

Commands:
  run <diagram> [--timeout N] [--inputs FILE | --input-data JSON] [--format light|native|readable] [--debug] [--simple]
  stats <diagram>
  compile <diagram> [--check-only] [--json]
  convert <in> <out> [--from FORMAT] [--to FORMAT]
  list [--format FORMAT] [--json]
  metrics [--execution-id ID | --latest] [--json]
  results <session_id>`)
}
