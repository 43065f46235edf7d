// Package scripts downlevels JavaScript files to the configured browser
// baselines and wraps them as UMD modules.
package scripts

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"

	"github.com/ngld/knossos/packages/vuelib-tools/pkg/targets"
)

// Transformer rewrites scripts for a fixed target profile
type Transformer struct {
	Profile targets.Profile
}

// New returns a Transformer for the given profile
func New(profile targets.Profile) *Transformer {
	return &Transformer{Profile: profile}
}

// Options returns the esbuild options shared by plain scripts and compiled components.
// ES modules are converted to CommonJS; WrapUMD turns the result into a UMD module.
func (t *Transformer) Options(filename string) api.TransformOptions {
	return api.TransformOptions{
		Loader:     api.LoaderJS,
		Format:     api.FormatCommonJS,
		Engines:    t.Profile.Engines(),
		Sourcefile: filename,
		LogLevel:   api.LogLevelSilent,
	}
}

// Transform downlevels code and wraps it as UMD. Code that already is a UMD
// module is only downleveled so repeated runs don't nest wrappers.
func (t *Transformer) Transform(code []byte, filename string) ([]byte, error) {
	opts := t.Options(filename)
	wrapped := IsUMD(code)
	if wrapped {
		opts.Format = api.FormatDefault
	}

	result := api.Transform(string(code), opts)
	if len(result.Errors) > 0 {
		return nil, eris.Errorf("failed to transform %s:\n%s", filename, targets.FormatMessages(result.Errors))
	}

	if wrapped {
		return result.Code, nil
	}

	return WrapUMD(result.Code, GlobalName(filename)), nil
}

// TransformFile transforms the file at path in place
func (t *Transformer) TransformFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return eris.Wrapf(err, "failed to stat %s", path)
	}

	code, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "failed to read %s", path)
	}

	out, err := t.Transform(code, path)
	if err != nil {
		return err
	}

	err = os.WriteFile(path, out, info.Mode().Perm())
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", path)
	}

	return nil
}

const umdHeader = `(function(root, factory) {
  if (typeof define === "function" && define.amd) {
    define(["require", "exports", "module"], factory);
  } else if (typeof module === "object" && module.exports) {
    factory(require, exports, module);
  } else {
    var mod = { exports: {} };
    factory(function(id) {
      return root[id];
    }, mod.exports, mod);
    root[%s] = mod.exports;
  }
})(this, function(require, exports, module) {
`

var umdMatcher = regexp.MustCompile(`^\s*(?:/\*[\s\S]*?\*/\s*|//[^\n]*\n\s*)*\(function\s*\(root,\s*factory\)`)

// IsUMD reports whether code already starts with our UMD wrapper
func IsUMD(code []byte) bool {
	return umdMatcher.Match(code) && bytes.Contains(code, []byte("define.amd"))
}

// WrapUMD wraps a CommonJS body in a UMD factory. Without a module loader the
// exports are assigned to the global name.
func WrapUMD(body []byte, name string) []byte {
	var buf bytes.Buffer
	buf.WriteString(strings.Replace(umdHeader, "%s", quote(name), 1))
	buf.Write(body)
	if len(body) > 0 && body[len(body)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString("});\n")
	return buf.Bytes()
}

func quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

// GlobalName derives a camel-cased browser global from a file name,
// e.g. "lib/button-group/index.js" -> "buttonGroup".
func GlobalName(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "index" {
		base = filepath.Base(filepath.Dir(filename))
	}

	parts := strings.FieldsFunc(base, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var buf strings.Builder
	for idx, part := range parts {
		runes := []rune(part)
		if idx == 0 {
			runes[0] = unicode.ToLower(runes[0])
		} else {
			runes[0] = unicode.ToUpper(runes[0])
		}
		buf.WriteString(string(runes))
	}

	name := buf.String()
	if name == "" || unicode.IsDigit(rune(name[0])) {
		name = "_" + name
	}
	return name
}
