// cmd/rzn/main.go
package main

import (
	"fmt"
	"log"
	"os"

	"rzn/internal/compiler"
	"rzn/internal/errors"
	"rzn/internal/ir"
	"rzn/internal/optimizer"
	"rzn/internal/parser"
	"rzn/internal/semantic"
	"rzn/internal/vm"
)

const version = "0.3.0"

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	switch args[0] {
	case "--help", "-h", "help":
		showUsage()
		return
	case "--version", "-v", "version":
		fmt.Printf("rzn %s\n", version)
		return
	case "run":
		args = args[1:]
	}

	optLevel := optimizer.Level2
	emitIR := false
	stats := false
	var file string
	for _, arg := range args {
		switch arg {
		case "-O0":
			optLevel = optimizer.Level0
		case "-O1":
			optLevel = optimizer.Level1
		case "-O2":
			optLevel = optimizer.Level2
		case "-O3":
			optLevel = optimizer.Level3
		case "--emit-ir":
			emitIR = true
		case "--stats":
			stats = true
		default:
			if file != "" {
				log.Fatalf("unexpected argument %q", arg)
			}
			file = arg
		}
	}
	if file == "" {
		showUsage()
		os.Exit(2)
	}

	os.Exit(runFile(file, optLevel, emitIR, stats))
}

func runFile(path string, level optimizer.Level, emitIR, stats bool) int {
	source, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("cannot read %s: %v", path, err)
	}

	diags := &errors.DiagnosticList{}
	prog := parser.ParseSource(string(source), path, diags)

	loader := compiler.NewLoader(path, diags)
	imports, err := loader.Load(prog)
	if err != nil {
		log.Fatalf("import resolution failed: %v", err)
	}

	an := semantic.NewAnalyzer(diags)
	for _, imp := range imports {
		an.RegisterImport(imp.Alias, errors.Span{File: imp.Path})
		an.AnalyzeImported(imp.Program, imp.Alias)
	}
	an.Analyze(prog)

	renderDiagnostics(diags, path, string(source))
	if diags.HasErrors() {
		fmt.Fprintf(os.Stderr, "%d error(s); nothing was executed\n", diags.ErrorCount())
		return 1
	}

	module, cerr := compiler.New(an).Compile(prog, imports)
	if cerr != nil {
		log.Fatalf("internal compiler error: %v", cerr)
	}

	optimizer.New(level).Module(module)
	if err := ir.VerifyModule(module); err != nil {
		log.Fatalf("internal invariant violated after optimization: %v", err)
	}

	if emitIR {
		fmt.Print(ir.DumpModule(module))
		return 0
	}

	engine := vm.NewEngine(module)
	code, rerr := engine.Run()
	if rerr != nil {
		fmt.Fprintf(os.Stderr, "%s: %s (ir offset %d)\n", rerr.Kind, rerr.Message, rerr.Offset)
	}
	if stats {
		engine.StatsReport(os.Stderr)
	}
	return code
}

func renderDiagnostics(diags *errors.DiagnosticList, entryPath, source string) {
	for _, d := range diags.Items {
		// Only the entry file's text is in hand; diagnostics from imported
		// modules render without a source echo.
		if d.Span.File == entryPath {
			fmt.Fprint(os.Stderr, d.Render(source))
		} else {
			fmt.Fprint(os.Stderr, d.Render(""))
		}
	}
}

func showUsage() {
	fmt.Println(`rzn - an adaptive interpreter

Usage:
  rzn run <file.rzn> [flags]
  rzn <file.rzn> [flags]

Flags:
  -O0 | -O1 | -O2 | -O3   optimization level (default -O2)
  --emit-ir               print the compiled IR instead of executing
  --stats                 print the execution profile after the run

Other commands:
  rzn version             print the version
  rzn help                show this help`)
}
