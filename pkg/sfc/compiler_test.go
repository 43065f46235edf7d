package sfc

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/knossos/packages/vuelib-tools/pkg/scripts"
	"github.com/ngld/knossos/packages/vuelib-tools/pkg/styles"
	"github.com/ngld/knossos/packages/vuelib-tools/pkg/targets"
)

// passthrough treats every stylesheet as plain CSS
type passthrough struct {
	calls int
}

func (p *passthrough) Render(ctx context.Context, src []byte, opts styles.RenderOptions) ([]byte, error) {
	p.calls++
	return src, nil
}

func newCompiler() (*Compiler, *passthrough) {
	renderer := &passthrough{}
	return &Compiler{
		Styles:       &styles.Compiler{Renderer: renderer, Profile: targets.Default},
		Scripts:      scripts.New(targets.Default),
		GlobalImport: "../assets/_style/global.css",
	}, renderer
}

func writeComponent(t *testing.T, name, content string) string {
	dir := filepath.Join(t.TempDir(), "button")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const simpleComponent = `<template>
  <button><slot></slot></button>
</template>

<script>
export default {
  name: 'VButton',
  computed: {
    label() { return this.text ?? 'ok' },
  },
}
</script>

<style lang="stylus">
.btn { user-select: none; }
</style>
`

func TestCompileFile(t *testing.T) {
	c, renderer := newCompiler()
	path := writeComponent(t, "button.vue", simpleComponent)

	result, err := c.CompileFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, renderer.calls)

	assert.NoFileExists(t, path)

	script, err := os.ReadFile(filepath.Join(filepath.Dir(path), "button.js"))
	require.NoError(t, err)
	style, err := os.ReadFile(filepath.Join(filepath.Dir(path), "style", "button.css"))
	require.NoError(t, err)

	assert.Equal(t, result.Script, script)
	assert.Equal(t, result.Style, style)

	js := string(script)
	assert.True(t, scripts.IsUMD(script))
	assert.NotContains(t, js, "??")
	assert.Contains(t, js, `.template = "<button><slot></slot></button>"`)
	assert.Contains(t, js, "VButton")

	global := strings.Index(js, `require("../assets/_style/global.css")`)
	own := strings.Index(js, `require("./style/button.css")`)
	require.GreaterOrEqual(t, global, 0)
	require.GreaterOrEqual(t, own, 0)
	assert.Less(t, global, own)

	assert.Contains(t, string(style), "-webkit-user-select: none")
}

func TestCompileFileDefaultProfile(t *testing.T) {
	c := &Compiler{Scripts: scripts.New(targets.Default)}

	for name, src := range map[string]string{
		"plain.vue":  "<template><div/></template>\n<script>export default { name: 'Plain' }</script>\n",
		"counter.vue": "<script>\nconst size = 2\nlet count = 0\nexport default { data() { return { size, count } } }\n</script>\n",
	} {
		path := writeComponent(t, name, src)

		result, err := c.CompileFile(context.Background(), path)
		require.NoError(t, err, name)
		assert.True(t, scripts.IsUMD(result.Script), name)
		assert.NoFileExists(t, path)
	}
}

func TestCompileFileWithoutStyle(t *testing.T) {
	c, renderer := newCompiler()
	path := writeComponent(t, "icon.vue", "<template><i></i></template>\n<script>export default { name: 'VIcon' }</script>\n")

	_, err := c.CompileFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, renderer.calls)

	stylePath := filepath.Join(filepath.Dir(path), "style", "icon.css")
	info, err := os.Stat(stylePath)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())

	script, err := os.ReadFile(filepath.Join(filepath.Dir(path), "icon.js"))
	require.NoError(t, err)
	assert.Contains(t, string(script), `require("./style/icon.css")`)
}

func TestCompileFileErrorKeepsSource(t *testing.T) {
	c, _ := newCompiler()
	src := "<template><div></div></template>\n<script>export default {</script>\n"
	path := writeComponent(t, "broken.vue", src)

	_, err := c.CompileFile(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.vue")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, src, string(data))

	assert.NoFileExists(t, filepath.Join(filepath.Dir(path), "broken.js"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(path), "style", "broken.css"))
}

func TestCompileUnsupportedLang(t *testing.T) {
	c, _ := newCompiler()

	for note, src := range map[string]string{
		"style":    `<style lang="scss">.a { b: c }</style>`,
		"script":   `<script lang="coffee">x = 1</script>`,
		"template": `<template lang="pug">div</template>`,
	} {
		_, err := c.Compile(context.Background(), []byte(src), "x.vue", c.ConfigFor("x.vue"))
		assert.True(t, eris.Is(err, ErrUnsupportedLang), note)
	}
}

func TestCompileInjectsStyleWithoutExtraction(t *testing.T) {
	c, _ := newCompiler()

	result, err := c.Compile(context.Background(), []byte(simpleComponent), "button.vue", Config{Scripts: c.Scripts})
	require.NoError(t, err)

	assert.Empty(t, result.Style)
	js := string(result.Script)
	assert.Contains(t, js, "document.createElement")
	assert.Contains(t, js, "user-select: none")
	assert.NotContains(t, js, "./style/button.css")
}

func TestCompileTypeScript(t *testing.T) {
	c, _ := newCompiler()
	src := "<script lang=\"ts\">\nconst size: number = 3\nexport default { size }\n</script>"

	result, err := c.Compile(context.Background(), []byte(src), "size.vue", c.ConfigFor("size.vue"))
	require.NoError(t, err)
	assert.NotContains(t, string(result.Script), ": number")
	assert.Contains(t, string(result.Script), "size")
}

func TestCompileExternalBlocks(t *testing.T) {
	c, _ := newCompiler()
	path := writeComponent(t, "card.vue", `<template><div class="card"></div></template>
<style src="./card.css"></style>
<style lang="stylus" scoped>.inner { color: red; }</style>
<docs>usage</docs>`)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "card.css"), []byte(".card { display: flex; }"), 0o644))

	src, err := os.ReadFile(path)
	require.NoError(t, err)

	result, err := c.Compile(context.Background(), src, path, c.ConfigFor(path))
	require.NoError(t, err)

	style := string(result.Style)
	assert.Contains(t, style, ".card")
	assert.Contains(t, style, ".inner")
	assert.Less(t, strings.Index(style, ".card"), strings.Index(style, ".inner"))
	assert.Len(t, result.Warnings, 2)
}

func TestCompileMissingExternalBlock(t *testing.T) {
	c, _ := newCompiler()
	path := writeComponent(t, "card.vue", `<style src="./missing.css"></style>`)

	_, err := c.Compile(context.Background(), []byte(`<style src="./missing.css"></style>`), path, c.ConfigFor(path))
	assert.Error(t, err)
}

func TestPaths(t *testing.T) {
	path := filepath.Join("lib", "button", "button.vue")

	assert.Equal(t, filepath.Join("lib", "button", "button.js"), ScriptPath(path))
	assert.Equal(t, filepath.Join("lib", "button", "style", "button.css"), StylePath(path))
	assert.Equal(t, "./style/button.css", StyleImport(path))
}
