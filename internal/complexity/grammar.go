//go:build cgo

package complexity

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// grammar bundles a tree-sitter language with the node types that drive
// the complexity counters.
type grammar struct {
	language *sitter.Language

	// functions are the node types analyzed as standalone units.
	functions []string
	// decisions add to cyclomatic complexity; binary_expression and
	// boolean_operator nodes only count when the operator is && / || (or
	// Python's and / or).
	decisions []string
	// nesting node types increase the depth penalty for cognitive
	// complexity of their children.
	nesting []string
}

var jsGrammar = grammar{
	language: javascript.GetLanguage(),
	functions: []string{
		"function_declaration", "function_expression", "arrow_function",
		"method_definition", "generator_function_declaration",
	},
	decisions: []string{
		"if_statement", "for_statement", "for_in_statement",
		"while_statement", "do_statement", "switch_case", "catch_clause",
		"ternary_expression", "binary_expression",
		"optional_chain_expression",
	},
	nesting: []string{
		"if_statement", "for_statement", "for_in_statement",
		"while_statement", "do_statement", "switch_statement",
		"try_statement", "arrow_function", "function_expression",
	},
}

var grammars = map[Language]grammar{
	LangGo: {
		language: golang.GetLanguage(),
		functions: []string{
			"function_declaration", "method_declaration", "func_literal",
		},
		decisions: []string{
			"if_statement", "for_statement", "range_clause",
			"expression_case", "type_case", "select_statement",
			"communication_case", "binary_expression",
		},
		nesting: []string{
			"if_statement", "for_statement", "select_statement",
			"type_switch_statement", "expression_switch_statement",
			"func_literal",
		},
	},
	LangJavaScript: jsGrammar,
	LangTypeScript: withLanguage(jsGrammar, typescript.GetLanguage()),
	LangTSX:        withLanguage(jsGrammar, tsx.GetLanguage()),
	LangPython: {
		language: python.GetLanguage(),
		functions: []string{
			"function_definition", "lambda",
		},
		decisions: []string{
			"if_statement", "elif_clause", "for_statement",
			"while_statement", "except_clause", "with_statement",
			"boolean_operator", "conditional_expression",
			"list_comprehension", "dictionary_comprehension",
			"set_comprehension", "generator_expression",
		},
		nesting: []string{
			"if_statement", "for_statement", "while_statement",
			"try_statement", "with_statement", "lambda",
			"list_comprehension", "dictionary_comprehension",
			"set_comprehension", "generator_expression",
		},
	},
	LangRust: {
		language: rust.GetLanguage(),
		functions: []string{
			"function_item", "closure_expression",
		},
		decisions: []string{
			"if_expression", "match_expression", "match_arm",
			"while_expression", "loop_expression", "for_expression",
			"binary_expression",
		},
		nesting: []string{
			"if_expression", "match_expression", "while_expression",
			"loop_expression", "for_expression", "closure_expression",
		},
	},
	LangJava: {
		language: java.GetLanguage(),
		functions: []string{
			"method_declaration", "constructor_declaration",
			"lambda_expression",
		},
		decisions: []string{
			"if_statement", "for_statement", "enhanced_for_statement",
			"while_statement", "do_statement", "switch_expression",
			"switch_block_statement_group", "catch_clause",
			"ternary_expression", "binary_expression",
		},
		nesting: []string{
			"if_statement", "for_statement", "enhanced_for_statement",
			"while_statement", "do_statement", "switch_expression",
			"try_statement", "lambda_expression",
		},
	},
	LangKotlin: {
		language: kotlin.GetLanguage(),
		functions: []string{
			"function_declaration", "lambda_literal", "anonymous_function",
		},
		decisions: []string{
			"if_expression", "when_expression", "when_entry",
			"for_statement", "while_statement", "do_while_statement",
			"catch_block", "binary_expression", "elvis_expression",
		},
		nesting: []string{
			"if_expression", "when_expression", "for_statement",
			"while_statement", "do_while_statement", "try_expression",
			"lambda_literal",
		},
	},
}

// withLanguage reuses a grammar's node tables under a different
// tree-sitter language (the TS and TSX grammars share the JS node names).
func withLanguage(g grammar, lang *sitter.Language) grammar {
	g.language = lang
	return g
}
