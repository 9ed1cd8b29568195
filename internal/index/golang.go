package index

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// extractGo walks a Go file's syntax tree and records type, function and
// method declarations plus import paths. Only top-level declarations are
// indexed, which matches what reviewers look up by name.
func extractGo(ctx context.Context, source []byte, rel string) (fileFacts, error) {
	tree, err := parseTree(ctx, golang.GetLanguage(), source)
	if err != nil {
		return fileFacts{}, err
	}
	defer tree.Close()

	var facts fileFacts
	root := tree.RootNode()
	for i := 0; i < int(root.ChildCount()); i++ {
		decl := root.Child(i)
		switch decl.Type() {
		case "function_declaration":
			if name := decl.ChildByFieldName("name"); name != nil {
				facts.symbols = append(facts.symbols, Symbol{
					Name: nodeText(name, source),
					Kind: KindFunction,
					File: rel,
					Line: nodeLine(name),
				})
			}
		case "method_declaration":
			name := decl.ChildByFieldName("name")
			if name == nil {
				continue
			}
			facts.symbols = append(facts.symbols, Symbol{
				Name:   nodeText(name, source),
				Kind:   KindMethod,
				File:   rel,
				Line:   nodeLine(name),
				Parent: goReceiverType(decl, source),
			})
		case "type_declaration":
			for j := 0; j < int(decl.ChildCount()); j++ {
				spec := decl.Child(j)
				if spec.Type() != "type_spec" && spec.Type() != "type_alias" {
					continue
				}
				if name := spec.ChildByFieldName("name"); name != nil {
					facts.symbols = append(facts.symbols, Symbol{
						Name: nodeText(name, source),
						Kind: KindType,
						File: rel,
						Line: nodeLine(name),
					})
				}
			}
		case "import_declaration":
			collectGoImports(decl, source, &facts.imports)
		}
	}
	return facts, nil
}

// goReceiverType unwraps the receiver parameter down to its type name,
// stripping pointers and type parameters.
func goReceiverType(decl *sitter.Node, source []byte) string {
	recv := decl.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	for i := 0; i < int(recv.ChildCount()); i++ {
		param := recv.Child(i)
		if param.Type() != "parameter_declaration" {
			continue
		}
		if t := param.ChildByFieldName("type"); t != nil {
			return baseTypeName(t, source)
		}
	}
	return ""
}

func baseTypeName(t *sitter.Node, source []byte) string {
	for t != nil {
		switch t.Type() {
		case "pointer_type":
			t = t.Child(int(t.ChildCount()) - 1)
		case "generic_type":
			t = t.ChildByFieldName("type")
		case "type_identifier":
			return nodeText(t, source)
		default:
			return strings.TrimPrefix(nodeText(t, source), "*")
		}
	}
	return ""
}

func collectGoImports(decl *sitter.Node, source []byte, out *[]string) {
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "import_spec" {
			if p := n.ChildByFieldName("path"); p != nil {
				*out = append(*out, strings.Trim(nodeText(p, source), "`\""))
			}
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(decl)
}
