package sfc

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// Block is one top-level section of a component file
type Block struct {
	Type    string
	Content string
	Attrs   map[string]string
	// Line is the 1-based line of the opening tag
	Line int
}

// Lang returns the lang attribute, lower-cased
func (b *Block) Lang() string {
	return strings.ToLower(b.Attrs["lang"])
}

// Scoped reports whether the block carries the scoped attribute
func (b *Block) Scoped() bool {
	_, ok := b.Attrs["scoped"]
	return ok
}

// Descriptor holds the parsed sections of a component. Unknown custom blocks are kept in Custom.
type Descriptor struct {
	Template *Block
	Script   *Block
	Styles   []*Block
	Custom   []*Block
}

var (
	tagName   = regexp.MustCompile(`^<([a-zA-Z][a-zA-Z0-9-]*)`)
	attrMatch = regexp.MustCompile(`([^\s=/>"']+)(?:\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>]+)))?`)
)

// Parse splits a single-file component into its top-level blocks
func Parse(src []byte) (*Descriptor, error) {
	desc := &Descriptor{}
	text := string(bytes.TrimPrefix(src, []byte("\ufeff")))
	pos := 0

	for pos < len(text) {
		next := strings.IndexByte(text[pos:], '<')
		if next < 0 {
			break
		}
		pos += next

		if strings.HasPrefix(text[pos:], "<!--") {
			end := strings.Index(text[pos+4:], "-->")
			if end < 0 {
				return nil, eris.Errorf("line %d: unterminated comment", lineOf(text, pos))
			}
			pos += 4 + end + 3
			continue
		}

		m := tagName.FindStringSubmatch(text[pos:])
		if m == nil {
			return nil, eris.Errorf("line %d: unexpected %q at top level", lineOf(text, pos), text[pos:pos+1])
		}

		name := strings.ToLower(m[1])
		openEnd, selfClosing, err := findTagEnd(text, pos+len(m[0]))
		if err != nil {
			return nil, eris.Wrapf(err, "line %d: <%s>", lineOf(text, pos), name)
		}

		block := &Block{
			Type:  name,
			Attrs: parseAttrs(text[pos+len(m[0]) : openEnd]),
			Line:  lineOf(text, pos),
		}

		if selfClosing {
			pos = openEnd + 2
		} else {
			contentStart := openEnd + 1
			contentEnd, closeEnd, err := findClose(text, contentStart, name)
			if err != nil {
				return nil, eris.Wrapf(err, "line %d: <%s>", block.Line, name)
			}

			block.Content = text[contentStart:contentEnd]
			pos = closeEnd
		}

		switch name {
		case "template":
			if desc.Template != nil {
				return nil, eris.Errorf("line %d: a component may only contain one <template> block", block.Line)
			}
			desc.Template = block
		case "script":
			if desc.Script != nil {
				return nil, eris.Errorf("line %d: a component may only contain one <script> block", block.Line)
			}
			desc.Script = block
		case "style":
			desc.Styles = append(desc.Styles, block)
		default:
			desc.Custom = append(desc.Custom, block)
		}
	}

	return desc, nil
}

// findTagEnd returns the index of the closing '>' of a start tag, skipping quoted attribute values.
func findTagEnd(text string, pos int) (int, bool, error) {
	var quote byte
	for i := pos; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '>':
			return i, false, nil
		case c == '/' && i+1 < len(text) && text[i+1] == '>':
			return i, true, nil
		}
	}

	return 0, false, eris.New("unterminated start tag")
}

// findClose locates the end tag matching name. Script and style content is raw text so the first
// end tag wins; other blocks may nest elements with the same name (<template> inside <template>).
func findClose(text string, pos int, name string) (int, int, error) {
	lower := asciiLower(text)
	open := "<" + name
	closing := "</" + name
	raw := name == "script" || name == "style"

	depth := 1
	for i := pos; i < len(text); {
		closeStart := strings.Index(lower[i:], closing)
		if closeStart < 0 {
			break
		}
		closeStart += i

		if !raw {
			for j := i; ; {
				nested := strings.Index(lower[j:closeStart], open)
				if nested < 0 {
					break
				}

				after := j + nested + len(open)
				if isTagBoundary(text[after]) {
					tagEnd, selfClosing, err := findTagEnd(text, after)
					if err != nil {
						return 0, 0, err
					}
					if !selfClosing {
						depth++
					}
					if tagEnd >= closeStart {
						break
					}
				}
				j = after
			}
		}

		after := closeStart + len(closing)
		i = after
		if after >= len(text) || !isTagBoundary(text[after]) {
			continue
		}

		depth--
		if depth == 0 {
			end := strings.IndexByte(text[after:], '>')
			if end < 0 {
				return 0, 0, eris.Errorf("unterminated </%s>", name)
			}
			return closeStart, after + end + 1, nil
		}
	}

	return 0, 0, eris.Errorf("missing </%s>", name)
}

// asciiLower lower-cases ASCII letters only so byte offsets stay valid
func asciiLower(s string) string {
	buf := []byte(s)
	for i, c := range buf {
		if c >= 'A' && c <= 'Z' {
			buf[i] = c + ('a' - 'A')
		}
	}
	return string(buf)
}

func isTagBoundary(c byte) bool {
	return c == '>' || c == '/' || c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func parseAttrs(raw string) map[string]string {
	attrs := map[string]string{}
	for _, m := range attrMatch.FindAllStringSubmatch(raw, -1) {
		value := m[2]
		if value == "" {
			value = m[3]
		}
		if value == "" {
			value = m[4]
		}
		attrs[strings.ToLower(m[1])] = value
	}

	return attrs
}

func lineOf(text string, pos int) int {
	return strings.Count(text[:pos], "\n") + 1
}
