package main

import (
	"flag"
	"fmt"

	"github.com/dipeo/dipeo-core/core/compiler"
)

func convertCommand(args []string, env envConfig) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	from := fs.String("from", "", "source format: light|native|readable")
	to := fs.String("to", "", "target format: light|native|readable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: dipeo convert <in> <out> [--from FORMAT] [--to FORMAT]")
	}
	in, out := fs.Arg(0), fs.Arg(1)

	fromFormat, err := resolveFormat(*from, in)
	if err != nil {
		return err
	}
	toFormat, err := resolveFormat(*to, out)
	if err != nil {
		return err
	}

	diagram, err := compiler.LoadDiagram(in, fromFormat)
	if err != nil {
		return err
	}
	if err := compiler.SaveDiagram(out, diagram, toFormat); err != nil {
		return err
	}
	fmt.Printf("converted %s (%s) -> %s (%s)\n", in, fromFormat, out, toFormat)
	return nil
}
