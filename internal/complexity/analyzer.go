//go:build cgo

package complexity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Analyzer computes per-function complexity scores.
type Analyzer struct {
	parser *sitter.Parser
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{parser: sitter.NewParser()}
}

// IsAvailable reports whether complexity analysis was compiled in.
func IsAvailable() bool {
	return true
}

// AnalyzeFile reads and scores one source file. Unsupported extensions and
// unreadable files produce a result with Error set, never a hard error.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*FileComplexity, error) {
	lang, ok := LanguageFromExtension(strings.ToLower(filepath.Ext(path)))
	if !ok {
		return &FileComplexity{Path: path, Error: "unsupported file extension"}, nil
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return &FileComplexity{Path: path, Language: lang, Error: err.Error()}, nil
	}
	return a.AnalyzeSource(ctx, path, source, lang)
}

// AnalyzeSample scores a walked file's content sample. It returns nil for
// binary samples, unsupported extensions, and parse failures, so callers
// can fold results without per-file error handling.
func (a *Analyzer) AnalyzeSample(ctx context.Context, rel, ext string, sample []byte) *FileComplexity {
	if sample == nil {
		return nil
	}
	lang, ok := LanguageFromExtension(ext)
	if !ok {
		return nil
	}
	fc, err := a.AnalyzeSource(ctx, rel, sample, lang)
	if err != nil || fc.Error != "" {
		return nil
	}
	return fc
}

// AnalyzeSource parses source and scores every function in it.
func (a *Analyzer) AnalyzeSource(ctx context.Context, path string, source []byte, lang Language) (*FileComplexity, error) {
	g, ok := grammars[lang]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}

	a.parser.SetLanguage(g.language)
	tree, err := a.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return &FileComplexity{Path: path, Language: lang, Error: err.Error()}, nil
	}

	fc := &FileComplexity{
		Path:      path,
		Language:  lang,
		Functions: make([]FunctionComplexity, 0),
	}
	for _, fn := range collectNodes(tree.RootNode(), g.functions) {
		fc.Functions = append(fc.Functions, scoreFunction(fn, source, lang, g))
	}
	fc.Aggregate()
	return fc, nil
}

func scoreFunction(node *sitter.Node, source []byte, lang Language, g grammar) FunctionComplexity {
	start := int(node.StartPoint().Row) + 1
	end := int(node.EndPoint().Row) + 1
	return FunctionComplexity{
		Name:       functionName(node, source, lang),
		StartLine:  start,
		EndLine:    end,
		Lines:      end - start + 1,
		Cyclomatic: cyclomatic(node, source, lang, g),
		Cognitive:  cognitive(node, source, lang, g, 0),
	}
}

// cyclomatic counts decision points plus one.
func cyclomatic(node *sitter.Node, source []byte, lang Language, g grammar) int {
	score := 1
	for _, dn := range collectNodes(node, g.decisions) {
		if dn.Type() == "binary_expression" || dn.Type() == "boolean_operator" {
			if isBooleanOperator(dn, source, lang) {
				score++
			}
			continue
		}
		score++
	}
	return score
}

// cognitive counts decision points weighted by how deeply they nest.
func cognitive(node *sitter.Node, source []byte, lang Language, g grammar, depth int) int {
	score := 0
	nodeType := node.Type()

	if hasType(g.decisions, nodeType) {
		if nodeType == "binary_expression" || nodeType == "boolean_operator" {
			if isBooleanOperator(node, source, lang) {
				score += 1 + depth
			}
		} else {
			score += 1 + depth
		}
	}

	childDepth := depth
	if hasType(g.nesting, nodeType) {
		childDepth++
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child != nil {
			score += cognitive(child, source, lang, g, childDepth)
		}
	}
	return score
}

func functionName(node *sitter.Node, source []byte, lang Language) string {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		// Go anonymous-field grammars and Kotlin put the identifier in an
		// unnamed child.
		want := "identifier"
		if lang == LangKotlin {
			want = "simple_identifier"
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			if child := node.Child(i); child != nil && child.Type() == want {
				nameNode = child
				break
			}
		}
	}
	if nameNode != nil {
		return string(source[nameNode.StartByte():nameNode.EndByte()])
	}

	switch node.Type() {
	case "arrow_function", "func_literal", "lambda", "lambda_expression",
		"closure_expression", "lambda_literal", "anonymous_function":
		return "<anonymous>"
	}
	return "<unknown>"
}

func isBooleanOperator(node *sitter.Node, source []byte, lang Language) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if lang == LangPython {
			if child.Type() == "and" || child.Type() == "or" {
				return true
			}
			continue
		}
		op := string(source[child.StartByte():child.EndByte()])
		if op == "&&" || op == "||" {
			return true
		}
	}
	return false
}

func collectNodes(root *sitter.Node, types []string) []*sitter.Node {
	var out []*sitter.Node
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if hasType(types, n.Type()) {
			out = append(out, n)
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return out
}

func hasType(types []string, t string) bool {
	for _, s := range types {
		if s == t {
			return true
		}
	}
	return false
}
