package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/jsonffi/config"
	"github.com/wippyai/jsonffi/guest"
	"github.com/wippyai/jsonffi/marshal"
	"github.com/wippyai/jsonffi/runtime"
)

const defaultDocument = `{"Generated in Go":true,"scalar":1,"vector":[1,2,3],"string":"hello"}`

func main() {
	var (
		configFile  = flag.String("config", "", "Path to TOML config file")
		backend     = flag.String("backend", "", "Foreign library: wasm, native or memory")
		module      = flag.String("module", "", "Container library wasm file (wasm backend)")
		document    = flag.String("json", defaultDocument, "JSON document to exchange")
		release     = flag.Bool("release", true, "Release containers while decoding")
		list        = flag.Bool("list", false, "List library entry points and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Debug logging")
	)
	flag.Parse()

	if *list {
		listEntryPoints()
		return
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = config.Backend(strings.ToLower(*backend))
		case "module":
			cfg.Module = *module
		case "release":
			cfg.Release = *release
		case "v":
			if *verbose {
				cfg.LogLevel = "debug"
			}
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(cfg, *document); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, log, *document); err != nil {
		log.Error("demonstration failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = true
	return zc.Build()
}

func parseDocument(text string) (any, error) {
	return marshal.DecodeFromWireString(marshal.WireString(text))
}

func section(title string) {
	fmt.Println()
	fmt.Println("-----------------------")
	fmt.Println(title)
	fmt.Println()
}

func render(v any, indent string) string {
	var data []byte
	var err error
	if indent == "" || !term.IsTerminal(int(os.Stdout.Fd())) {
		data, err = json.Marshal(v)
	} else {
		data, err = json.MarshalIndent(v, "", indent)
	}
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func run(cfg config.Config, log *zap.Logger, document string) error {
	ctx := context.Background()

	value, err := parseDocument(document)
	if err != nil {
		return fmt.Errorf("parse -json: %w", err)
	}

	rt, err := runtime.New(ctx, cfg, runtime.WithLogger(log))
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	fmt.Printf("Backend: %s\n", cfg.Backend)

	section("value on the host...")
	fmt.Println(render(value, ""))

	section("convert to and from a container...")
	back, err := rt.RoundTrip(ctx, value)
	if err != nil {
		return fmt.Errorf("round trip: %w", err)
	}
	fmt.Println(render(back, ""))

	section("from host to foreign (wire string)...")
	n, err := rt.Send(ctx, value)
	if err != nil {
		return fmt.Errorf("send string: %w", err)
	}
	fmt.Printf("foreign side received %d bytes\n", n)

	section("from host to foreign (container)...")
	modified, err := rt.Transform(ctx, value)
	if err != nil {
		return fmt.Errorf("send container: %w", err)
	}
	fmt.Println("modified by foreign side:")
	fmt.Println(render(modified, cfg.Indent))

	section("from foreign to host...")
	produced, err := rt.Produce(ctx)
	if err != nil {
		return fmt.Errorf("produce container: %w", err)
	}
	fmt.Println(render(produced, cfg.Indent))
	if m, ok := produced.(map[string]any); ok {
		if g, ok := m["generated"]; ok {
			fmt.Printf("\ngenerated: %v\n", g)
		}
	}

	fmt.Printf("\nlive containers: %d\n", rt.Live())
	return nil
}

func listEntryPoints() {
	fmt.Println("Container library entry points:")
	for _, sig := range guest.Signatures {
		params := make([]string, len(sig.Params))
		for i, p := range sig.Params {
			params[i] = witTypeStr(p)
		}
		result := ""
		if len(sig.Results) > 0 {
			result = " -> " + witTypeStr(sig.Results[0])
		}
		core, _ := sig.CoreType()
		fmt.Printf("  %s(%s)%s   core %s\n", sig.Name, strings.Join(params, ", "), result, core)
	}
	fmt.Printf("  %s (memory)\n  %s (global i32)\n", guest.ExportMemory, guest.ExportLive)
}

func witTypeStr(t wit.Type) string {
	switch t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.String:
		return "string"
	default:
		return fmt.Sprintf("%T", t)
	}
}
