// Package sfc compiles Vue single-file components into a UMD script and an
// extracted stylesheet.
package sfc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"

	"github.com/ngld/knossos/packages/vuelib-tools/pkg/scripts"
	"github.com/ngld/knossos/packages/vuelib-tools/pkg/styles"
	"github.com/ngld/knossos/packages/vuelib-tools/pkg/targets"
)

// ErrUnsupportedLang is returned for blocks written in a language we can't compile
var ErrUnsupportedLang = eris.New("unsupported block language")

const (
	// Ext is the extension of single-file components
	Ext = ".vue"
	// StyleDir is created next to each component and receives the extracted stylesheet
	StyleDir = "style"

	optionsVar = "__sfc__"
)

// Config is built for every component file because the injected imports depend on its path
type Config struct {
	ExtractCSS bool
	Scripts    *scripts.Transformer
	Plugins    []api.Plugin
}

// Result holds the outputs of a single component
type Result struct {
	Script   []byte
	Style    []byte
	Warnings []string
}

// Compiler turns components into scripts and stylesheets
type Compiler struct {
	Styles  *styles.Compiler
	Scripts *scripts.Transformer
	// GlobalImport is imported by every compiled component before its own stylesheet
	GlobalImport string
}

// ScriptPath returns the path of the script generated for a component
func ScriptPath(path string) string {
	return strings.TrimSuffix(path, Ext) + ".js"
}

// StylePath returns the path of the stylesheet extracted from a component
func StylePath(path string) string {
	return filepath.Join(filepath.Dir(path), StyleDir, strings.TrimSuffix(filepath.Base(path), Ext)+".css")
}

// StyleImport is the import path of the extracted stylesheet relative to the compiled script
func StyleImport(path string) string {
	return "./" + StyleDir + "/" + strings.TrimSuffix(filepath.Base(path), Ext) + ".css"
}

// ConfigFor returns the compile configuration for the component at path
func (c *Compiler) ConfigFor(path string) Config {
	return Config{
		ExtractCSS: true,
		Scripts:    c.Scripts,
		Plugins: []api.Plugin{
			InjectImports(c.GlobalImport, StyleImport(path)),
		},
	}
}

// CompileFile compiles the component at path, writes the script and the stylesheet and
// removes the component. The three writes are not atomic.
func (c *Compiler) CompileFile(ctx context.Context, path string) (*Result, error) {
	styleDir := filepath.Join(filepath.Dir(path), StyleDir)
	err := os.MkdirAll(styleDir, 0o755)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to create %s", styleDir)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}

	result, err := c.Compile(ctx, src, path, c.ConfigFor(path))
	if err != nil {
		return nil, err
	}

	scriptPath := ScriptPath(path)
	err = os.WriteFile(scriptPath, result.Script, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to write %s", scriptPath)
	}

	stylePath := StylePath(path)
	err = os.WriteFile(stylePath, result.Style, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to write %s", stylePath)
	}

	err = os.Remove(path)
	if err != nil {
		return nil, eris.Wrapf(err, "Could not delete %s", path)
	}

	return result, nil
}

// Compile compiles the component source. path is used to resolve src attributes, to name the UMD
// global and in error messages; nothing is written.
func (c *Compiler) Compile(ctx context.Context, src []byte, path string, cfg Config) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	desc, err := Parse(src)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", path)
	}

	if err = loadExternalBlocks(desc, filepath.Dir(path)); err != nil {
		return nil, err
	}

	result := &Result{Style: []byte{}}
	css, warnings, err := c.compileStyles(ctx, desc, path)
	if err != nil {
		return nil, err
	}
	result.Warnings = append(result.Warnings, warnings...)

	if cfg.ExtractCSS {
		result.Style = css
	}

	module, loader, err := buildModule(desc, path)
	if err != nil {
		return nil, err
	}

	if !cfg.ExtractCSS && len(css) > 0 {
		module += injectCSS(css)
	}

	if len(desc.Custom) > 0 {
		names := make([]string, len(desc.Custom))
		for idx, block := range desc.Custom {
			names[idx] = "<" + block.Type + ">"
		}
		result.Warnings = append(result.Warnings, "ignored custom blocks "+strings.Join(names, ", "))
	}

	script, err := buildScript(module, loader, path, cfg)
	if err != nil {
		return nil, err
	}
	result.Script = script

	return result, nil
}

func loadExternalBlocks(desc *Descriptor, dir string) error {
	blocks := append([]*Block{desc.Template, desc.Script}, desc.Styles...)
	for _, block := range blocks {
		if block == nil {
			continue
		}

		src, ok := block.Attrs["src"]
		if !ok {
			continue
		}

		path := filepath.Join(dir, filepath.FromSlash(src))
		data, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrapf(err, "failed to read <%s src=%q>", block.Type, src)
		}
		block.Content = string(data)
	}

	return nil
}

func (c *Compiler) compileStyles(ctx context.Context, desc *Descriptor, path string) ([]byte, []string, error) {
	var profile targets.Profile
	if c.Scripts != nil {
		profile = c.Scripts.Profile
	} else {
		profile = targets.Default
	}

	parts := []string{}
	warnings := []string{}
	for _, block := range desc.Styles {
		if block.Scoped() {
			warnings = append(warnings, fmt.Sprintf("line %d: scoped styles are emitted unscoped", block.Line))
		}

		var (
			css []byte
			err error
		)
		switch block.Lang() {
		case "", "css":
			css, err = styles.Prefix([]byte(block.Content), path, profile)
		case "stylus", "styl":
			if c.Styles == nil {
				return nil, nil, eris.Wrapf(ErrUnsupportedLang, "%s: no Stylus compiler configured", path)
			}
			css, err = c.Styles.Compile(ctx, []byte(block.Content), path)
		default:
			return nil, nil, eris.Wrapf(ErrUnsupportedLang, "%s: <style lang=%q>", path, block.Lang())
		}
		if err != nil {
			return nil, nil, err
		}

		if trimmed := strings.TrimSpace(string(css)); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}

	if len(parts) == 0 {
		return []byte{}, warnings, nil
	}

	return []byte(strings.Join(parts, "\n") + "\n"), warnings, nil
}

var exportDefault = regexp.MustCompile(`(?m)^[ \t]*export[ \t]+default[ \t]+`)

// buildModule turns script and template into an ES module whose default export is the
// component options object.
func buildModule(desc *Descriptor, path string) (string, api.Loader, error) {
	var buf strings.Builder
	loader := api.LoaderJS

	if desc.Script != nil {
		switch desc.Script.Lang() {
		case "", "js", "javascript":
		case "ts", "typescript":
			loader = api.LoaderTS
		case "jsx":
			loader = api.LoaderJSX
		default:
			return "", loader, eris.Wrapf(ErrUnsupportedLang, "%s: <script lang=%q>", path, desc.Script.Lang())
		}

		content := desc.Script.Content
		loc := exportDefault.FindStringIndex(content)
		if loc != nil {
			content = content[:loc[0]] + "var " + optionsVar + " = " + content[loc[1]:]
			buf.WriteString(content)
		} else {
			buf.WriteString(content)
			buf.WriteString("\nvar " + optionsVar + " = {};")
		}
	} else {
		buf.WriteString("var " + optionsVar + " = {};")
	}
	buf.WriteString("\n")

	if desc.Template != nil {
		switch desc.Template.Lang() {
		case "", "html":
		default:
			return "", loader, eris.Wrapf(ErrUnsupportedLang, "%s: <template lang=%q>", path, desc.Template.Lang())
		}

		buf.WriteString(optionsVar + ".template = ")
		buf.WriteString(jsString(strings.TrimSpace(desc.Template.Content)))
		buf.WriteString(";\n")
	}

	buf.WriteString("export default " + optionsVar + ";\n")
	return buf.String(), loader, nil
}

// jsString quotes s as a JavaScript string literal
func jsString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// strings always encode
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

func injectCSS(css []byte) string {
	encoded := jsString(string(css))
	return `(function(css) {
  if (typeof document !== "undefined") {
    var el = document.createElement("style");
    el.textContent = css;
    document.head.appendChild(el);
  }
})(` + encoded + ");\n"
}

func buildScript(module string, loader api.Loader, path string, cfg Config) ([]byte, error) {
	transformer := cfg.Scripts
	if transformer == nil {
		transformer = scripts.New(targets.Default)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve %s", path)
	}

	// the trailing InjectImports() loads the module unchanged if no configured plugin claimed it
	plugins := []api.Plugin{componentSource(abs, module, loader)}
	plugins = append(plugins, cfg.Plugins...)
	plugins = append(plugins, InjectImports())
	opts := transformer.Options(abs)
	result := api.Build(api.BuildOptions{
		EntryPoints: []string{abs},
		Outdir:      filepath.Dir(abs),
		Write:       false,
		Bundle:      false,
		Format:      opts.Format,
		Engines:     opts.Engines,
		Plugins:     plugins,
		LogLevel:    api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return nil, eris.Errorf("failed to compile script of %s:\n%s", path, targets.FormatMessages(result.Errors))
	}

	if len(result.OutputFiles) == 0 {
		return nil, eris.Errorf("no script output for %s", path)
	}

	return scripts.WrapUMD(result.OutputFiles[0].Contents, scripts.GlobalName(path)), nil
}
