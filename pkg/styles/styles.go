// Package styles compiles Stylus sources into vendor-prefixed CSS.
//
// Rendering is delegated to a Renderer (normally the stylus CLI). Every render
// receives the same shared imports: the utility mixins, the variables file of
// the selected Variant and the nib vendor and gradient helpers. The rendered
// CSS is then passed through esbuild which adds the vendor prefixes required by
// the configured browser baselines.
package styles

import (
	"context"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"

	"github.com/ngld/knossos/packages/vuelib-tools/pkg/targets"
)

// ErrRender marks failures of the preprocessor itself
var ErrRender = eris.New("stylesheet render failed")

// Variant selects the variables file used for a build
type Variant string

const (
	VariantDefault Variant = "default"
	VariantSpecial Variant = "special"
)

// ParseVariant converts a build type to a Variant. An empty string selects the default variant.
func ParseVariant(value string) (Variant, error) {
	switch Variant(value) {
	case "", VariantDefault:
		return VariantDefault, nil
	case VariantSpecial:
		return VariantSpecial, nil
	}

	return "", eris.Errorf("unknown style variant %q (must be default or special)", value)
}

// Imports lists the shared Stylus files
type Imports struct {
	Util             string
	Variables        string
	SpecialVariables string
	Vendor           string
	Gradients        string
}

// For returns the import list for the given variant in render order
func (i Imports) For(variant Variant) []string {
	variables := i.Variables
	if variant == VariantSpecial {
		variables = i.SpecialVariables
	}

	return []string{i.Util, variables, i.Vendor, i.Gradients}
}

// RenderOptions are passed to a Renderer for each source
type RenderOptions struct {
	// Filename is the path of the source; used to resolve relative imports and in error messages
	Filename string
	Imports  []string
	// InlineURLs enables the url() helper that inlines referenced assets
	InlineURLs bool
}

// Renderer turns preprocessor source into plain CSS
type Renderer interface {
	Render(ctx context.Context, src []byte, opts RenderOptions) ([]byte, error)
}

// Compiler combines a Renderer with the shared imports and the vendor prefixer
type Compiler struct {
	Renderer Renderer
	Imports  Imports
	Variant  Variant
	Profile  targets.Profile
}

// Compile renders src and adds vendor prefixes to the result. Errors returned by the
// renderer match ErrRender.
func (c *Compiler) Compile(ctx context.Context, src []byte, filename string) ([]byte, error) {
	if len(strings.TrimSpace(string(src))) == 0 {
		return []byte{}, nil
	}

	css, err := c.Renderer.Render(ctx, src, RenderOptions{
		Filename:   filename,
		Imports:    c.Imports.For(c.Variant),
		InlineURLs: true,
	})
	if err != nil {
		if eris.Is(err, ErrRender) {
			return nil, err
		}
		return nil, eris.Wrapf(ErrRender, "%s: %s", filename, err.Error())
	}

	return Prefix(css, filename, c.Profile)
}

// Prefix runs plain CSS through esbuild to add the vendor prefixes needed by the profile.
func Prefix(css []byte, filename string, profile targets.Profile) ([]byte, error) {
	if len(strings.TrimSpace(string(css))) == 0 {
		return []byte{}, nil
	}

	result := api.Transform(string(css), api.TransformOptions{
		Loader:     api.LoaderCSS,
		Engines:    profile.Engines(),
		Sourcefile: filename,
		LogLevel:   api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return nil, eris.Errorf("failed to post-process %s: %s", filename, targets.FormatMessages(result.Errors))
	}

	return result.Code, nil
}
