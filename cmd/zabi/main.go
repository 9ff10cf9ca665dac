package main

import (
	"os"
	"runtime"

	"github.com/xplshn/zabi/pkg/cli"
	"github.com/xplshn/zabi/pkg/codegen"
	"github.com/xplshn/zabi/pkg/config"
	"github.com/xplshn/zabi/pkg/lexer"
	"github.com/xplshn/zabi/pkg/parser"
	"github.com/xplshn/zabi/pkg/token"
	"github.com/xplshn/zabi/pkg/util"
)

func main() {
	app := cli.NewApp("zabi")
	app.Synopsis = "[options] <file.sig> ..."
	app.Description = "Lowers function signatures to the s390x calling conventions: argument and return locations, frame layouts, prologues, epilogues and tail calls."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/zabi>"

	var (
		outFile  string
		format   string
		target   string
		preset   string
		jobs     int
		wall     bool
		pedantic bool
		hashes   bool
		verbose  bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file> instead of stdout.", "file")
	fs.String(&format, "format", "f", "listing", "Output format (listing, json).", "format")
	fs.String(&target, "target", "t", "", "Set the target ABI.", "target")
	fs.String(&preset, "preset", "p", "default", "Start from a named feature preset (default, debug, hardened, minimal, wasm).", "name")
	fs.Int(&jobs, "jobs", "j", runtime.NumCPU(), "Lower up to <n> functions in parallel.", "n")
	fs.Bool(&wall, "Wall", "", false, "Enable most warnings.")
	fs.Bool(&pedantic, "pedantic", "", false, "Issue every warning.")
	fs.Bool(&hashes, "hash", "", false, "Print the fingerprint of every lowered function.")
	fs.Bool(&verbose, "verbose", "v", false, "Report progress on stderr.")

	cfg := config.NewConfig()
	cfg.SetupFlagGroups(fs)

	app.Action = func(inputFiles []string) error {
		if len(inputFiles) == 0 {
			util.Error(token.Token{FileIndex: -1}, "no input files specified.")
		}

		// Presets go first so that explicit -W/-F flags override them.
		if err := cfg.ApplyPreset(preset); err != nil {
			util.Error(token.Token{FileIndex: -1}, "%v", err)
		}
		cfg.ProcessFlags(fs.Visit)
		if err := cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target); err != nil {
			util.Error(token.Token{FileIndex: -1}, "%v", err)
		}

		backend, err := codegen.SelectBackend(format)
		if err != nil {
			util.Error(token.Token{FileIndex: -1}, "%v", err)
		}

		if verbose {
			util.Info("tokenizing %d source file(s)...", len(inputFiles))
		}
		records, allTokens := readAndTokenizeFiles(inputFiles)
		util.SetSourceFiles(records)

		if verbose {
			util.Info("parsing...")
		}
		root, err := parser.NewParser(allTokens).Parse()
		if err != nil {
			return fail(err)
		}

		cg := codegen.NewContext(cfg)
		decls, err := cg.Declare(root)
		if err != nil {
			return fail(err)
		}

		if verbose {
			util.Info("lowering %d function(s) for %s with %d job(s)...", len(decls), cfg.Target, jobs)
		}
		funcs, err := cg.LowerAll(decls, jobs)
		if err != nil {
			return fail(err)
		}
		for _, f := range funcs {
			for _, w := range f.Warnings {
				util.Warn(cfg, w.Warning, w.Tok, "%s", w.Msg)
			}
			if hashes && f.Layout != nil {
				util.Info("%s: %016x", f.Decl.Name, f.Fingerprint)
			}
		}
		if verbose {
			util.Info("%d distinct signature(s) lowered", cg.Sigs().Len())
		}

		out, err := backend.Generate(funcs, cfg)
		if err != nil {
			util.Error(token.Token{FileIndex: -1}, "%s output failed: %v", format, err)
		}
		if outFile == "" {
			_, err = os.Stdout.Write(out.Bytes())
		} else {
			err = os.WriteFile(outFile, out.Bytes(), 0o644)
		}
		if err != nil {
			util.Error(token.Token{FileIndex: -1}, "could not write output: %v", err)
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func fail(err error) error {
	util.Report(err)
	return err
}

// readAndTokenizeFiles lexes every input into one token stream ending in a single EOF.
func readAndTokenizeFiles(paths []string) ([]util.SourceFileRecord, []token.Token) {
	var records []util.SourceFileRecord
	var allTokens []token.Token

	for i, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			util.Error(token.Token{FileIndex: -1}, "could not read file '%s': %v", path, err)
		}
		runeContent := []rune(string(content))
		records = append(records, util.SourceFileRecord{Name: path, Content: runeContent})

		tokens, err := lexer.Tokenize(runeContent, i)
		if err != nil {
			util.SetSourceFiles(records)
			util.Report(err)
			os.Exit(1)
		}
		allTokens = append(allTokens, tokens[:len(tokens)-1]...)
	}
	allTokens = append(allTokens, token.Token{Type: token.EOF, FileIndex: max(len(paths)-1, 0)})
	return records, allTokens
}
