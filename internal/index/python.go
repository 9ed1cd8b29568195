package index

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// extractPython records class and function definitions at any nesting depth,
// tagging functions defined inside a class body as methods of that class.
func extractPython(ctx context.Context, source []byte, rel string) (fileFacts, error) {
	tree, err := parseTree(ctx, python.GetLanguage(), source)
	if err != nil {
		return fileFacts{}, err
	}
	defer tree.Close()

	var facts fileFacts
	walkPython(tree.RootNode(), source, rel, "", &facts)
	return facts, nil
}

// walkPython descends the tree carrying the name of the innermost enclosing
// class, if any.
func walkPython(n *sitter.Node, source []byte, rel, class string, facts *fileFacts) {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "class_definition":
			name := child.ChildByFieldName("name")
			if name == nil {
				continue
			}
			className := nodeText(name, source)
			facts.symbols = append(facts.symbols, Symbol{
				Name: className,
				Kind: KindType,
				File: rel,
				Line: nodeLine(name),
			})
			if body := child.ChildByFieldName("body"); body != nil {
				walkPython(body, source, rel, className, facts)
			}
		case "function_definition":
			name := child.ChildByFieldName("name")
			if name == nil {
				continue
			}
			sym := Symbol{
				Name: nodeText(name, source),
				Kind: KindFunction,
				File: rel,
				Line: nodeLine(name),
			}
			if class != "" {
				sym.Kind = KindMethod
				sym.Parent = class
			}
			facts.symbols = append(facts.symbols, sym)
			// Nested defs are indexed as plain functions.
			if body := child.ChildByFieldName("body"); body != nil {
				walkPython(body, source, rel, "", facts)
			}
		case "import_statement":
			collectPythonImports(child, source, &facts.imports)
		case "import_from_statement":
			if mod := child.ChildByFieldName("module_name"); mod != nil {
				facts.imports = append(facts.imports, nodeText(mod, source))
			}
		case "decorated_definition", "block", "if_statement", "try_statement",
			"expression_statement", "module":
			walkPython(child, source, rel, class, facts)
		}
	}
}

func collectPythonImports(stmt *sitter.Node, source []byte, out *[]string) {
	for i := 0; i < int(stmt.ChildCount()); i++ {
		child := stmt.Child(i)
		switch child.Type() {
		case "dotted_name":
			*out = append(*out, nodeText(child, source))
		case "aliased_import":
			if name := child.ChildByFieldName("name"); name != nil {
				*out = append(*out, nodeText(name, source))
			}
		}
	}
}
