package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hemlang/hemlock/internal/config"
	"github.com/hemlang/hemlock/internal/lexer"
	"github.com/hemlang/hemlock/internal/parser"
	"github.com/hemlang/hemlock/internal/vm"
	"github.com/mattn/go-isatty"
)

const usage = `Hemlock %s
Usage:
  hemlock [run] [--trace] [--dump-bytecode] <file> [args...]
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	var trace, dump bool
	var file string
	var scriptArgs []string

	i := 0
	if len(argv) > 0 && argv[i] == "run" {
		i++
	}
	for ; i < len(argv); i++ {
		switch argv[i] {
		case "--trace":
			trace = true
		case "--dump-bytecode":
			dump = true
		case "--version":
			fmt.Printf("hemlock %s\n", config.Version)
			return config.ExitOK
		case "--help", "-h":
			fmt.Printf(usage, config.Version)
			return config.ExitOK
		default:
			file = argv[i]
			scriptArgs = argv[i+1:]
			i = len(argv)
		}
	}

	if file == "" {
		fmt.Fprintf(os.Stderr, usage, config.Version)
		return config.ExitCompileError
	}

	src, err := os.ReadFile(file)
	if err != nil {
		errorf("cannot read %s: %s", file, err)
		return config.ExitCompileError
	}

	project, err := config.LoadProject(filepath.Dir(file))
	if err != nil {
		errorf("%s", err)
		return config.ExitCompileError
	}
	trace = trace || project.Trace
	dump = dump || project.DumpBytecode
	scriptArgs = append(project.Args, scriptArgs...)

	p := parser.New(lexer.New(string(src)))
	program := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		for _, e := range errs {
			errorf("%s: %s", file, e)
		}
		return config.ExitCompileError
	}

	chunk, compileErrs := vm.CompileProgram(program)
	if len(compileErrs) > 0 {
		for _, e := range compileErrs {
			errorf("%s: %s", file, e)
		}
		return config.ExitCompileError
	}

	if dump {
		fmt.Print(vm.Disassemble(chunk, file))
	}

	machine := vm.New()
	machine.SetTrace(trace)
	machine.SetCurrentFile(config.TrimSourceExt(filepath.Base(file)))
	machine.SetArgs(scriptArgs)

	if _, err := machine.Run(chunk); err != nil {
		var exit *vm.ExitError
		if errors.As(err, &exit) {
			return exit.Code
		}
		var fatal *vm.FatalError
		if errors.As(err, &fatal) {
			errorf("panic: %s", fatal.Msg)
			return config.ExitRuntimeError
		}
		errorf("Runtime error: %s", err)
		return config.ExitRuntimeError
	}
	return config.ExitOK
}

// errorf writes a diagnostic line to stderr, red when it is a terminal.
func errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		fmt.Fprintf(os.Stderr, "\x1b[31m%s\x1b[0m\n", msg)
		return
	}
	fmt.Fprintln(os.Stderr, msg)
}
