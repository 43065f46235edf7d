package sfc

import (
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"
)

const namespace = "sfc"

type moduleData struct {
	source string
	loader api.Loader
}

// componentSource resolves the component entry point to the generated module instead of the
// file on disk.
func componentSource(path, module string, loader api.Loader) api.Plugin {
	return api.Plugin{
		Name: "sfc-source",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `\.vue$`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Kind != api.ResolveEntryPoint {
					return api.OnResolveResult{}, nil
				}

				return api.OnResolveResult{
					Path:       path,
					Namespace:  namespace,
					PluginData: moduleData{source: module, loader: loader},
				}, nil
			})
		},
	}
}

// InjectImports loads generated component modules and prepends a side-effect import for each
// path, in the given order.
func InjectImports(imports ...string) api.Plugin {
	return api.Plugin{
		Name: "inject-style-imports",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: namespace}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				data, ok := args.PluginData.(moduleData)
				if !ok {
					return api.OnLoadResult{}, eris.Errorf("missing component source for %s", args.Path)
				}

				var buf strings.Builder
				for _, item := range imports {
					if item == "" {
						continue
					}

					buf.WriteString("import " + jsString(item) + ";\n")
				}
				buf.WriteString(data.source)

				contents := buf.String()
				return api.OnLoadResult{
					Contents:   &contents,
					Loader:     data.loader,
					ResolveDir: filepath.Dir(args.Path),
				}, nil
			})
		},
	}
}
