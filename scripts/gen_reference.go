package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

type constValue struct {
	Name  string
	Value string
}

type structField struct {
	Name  string
	Type  string
	Tags  map[string]string // Tag key -> first comma-separated value.
	Notes string
}

type sentinel struct {
	Pkg     string
	Name    string
	Message string
	Notes   string
}

var recordStructs = []string{"Flags", "LogRecord", "EventRecord", "MarkRecord", "SettleRecord"}

func main() {
	var recordsOut string
	var configOut string
	flag.StringVar(&recordsOut, "records-out", "docs/reference/records.md", "output markdown path for record types and errors")
	flag.StringVar(&configOut, "config-out", "docs/reference/config.md", "output markdown path for configuration keys")
	flag.Parse()

	root, err := os.Getwd()
	if err != nil {
		fail(err)
	}

	if err := generateRecords(root, recordsOut); err != nil {
		fail(err)
	}
	if err := generateConfig(root, configOut); err != nil {
		fail(err)
	}
}

func generateRecords(root, outPath string) error {
	typesPath := filepath.Join(root, "observe", "types.go")
	structs, err := collectStructFields(typesPath, recordStructs)
	if err != nil {
		return err
	}
	outcomes, err := collectTypedConstValues(typesPath, "Outcome")
	if err != nil {
		return err
	}

	var errs []sentinel
	for _, src := range []struct{ pkg, path string }{
		{"timeline", filepath.Join(root, "timeline", "errors.go")},
		{"tracker", filepath.Join(root, "tracker", "tracker.go")},
	} {
		found, err := collectSentinels(src.path, src.pkg)
		if err != nil {
			return err
		}
		errs = append(errs, found...)
	}

	content := renderRecordsMarkdown(structs, outcomes, errs)
	return writeFile(outPath, content)
}

func generateConfig(root, outPath string) error {
	path := filepath.Join(root, "config", "config.go")
	structs, err := collectStructFields(path, []string{"Config"})
	if err != nil {
		return err
	}
	defaults, err := collectReturnedLiteral(path, "Default")
	if err != nil {
		return err
	}
	prefix, err := collectConstValues(path, []string{"EnvPrefix"})
	if err != nil {
		return err
	}
	content := renderConfigMarkdown(structs["Config"], defaults, strings.Trim(prefix["EnvPrefix"], `"`))
	return writeFile(outPath, content)
}

func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func collectStructFields(path string, names []string) (map[string][]structField, error) {
	want := make(map[string]struct{})
	for _, name := range names {
		want[name] = struct{}{}
	}

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]structField)
	for _, decl := range f.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			if _, ok := want[ts.Name.Name]; !ok {
				continue
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok {
				continue
			}
			fields := make([]structField, 0, len(st.Fields.List))
			for _, field := range st.Fields.List {
				typeStr := exprString(field.Type)
				notes := joinComments(field.Doc, field.Comment)
				tags := parseTags(field.Tag)
				if len(field.Names) == 0 {
					fields = append(fields, structField{Name: typeStr, Tags: tags, Notes: notes})
					continue
				}
				for _, name := range field.Names {
					if !name.IsExported() {
						continue
					}
					fields = append(fields, structField{Name: name.Name, Type: typeStr, Tags: tags, Notes: notes})
				}
			}
			out[ts.Name.Name] = fields
		}
	}
	return out, nil
}

func parseTags(lit *ast.BasicLit) map[string]string {
	tags := make(map[string]string)
	if lit == nil {
		return tags
	}
	raw, err := strconv.Unquote(lit.Value)
	if err != nil {
		return tags
	}
	st := reflect.StructTag(raw)
	for _, key := range []string{"json", "env", "toml"} {
		if v, ok := st.Lookup(key); ok {
			tags[key] = strings.Split(v, ",")[0]
		}
	}
	return tags
}

func collectTypedConstValues(path, typeName string) ([]constValue, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return nil, err
	}
	var values []constValue
	for _, decl := range f.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.CONST {
			continue
		}
		for _, spec := range gen.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			ident, ok := vs.Type.(*ast.Ident)
			if !ok || ident.Name != typeName {
				continue
			}
			for i, name := range vs.Names {
				if len(vs.Values) <= i {
					continue
				}
				val, ok := stringLiteral(vs.Values[i])
				if !ok {
					continue
				}
				values = append(values, constValue{Name: name.Name, Value: val})
			}
		}
	}
	sort.Slice(values, func(i, j int) bool { return values[i].Name < values[j].Name })
	return values, nil
}

func collectConstValues(path string, names []string) (map[string]string, error) {
	want := make(map[string]struct{})
	for _, name := range names {
		want[name] = struct{}{}
	}
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, decl := range f.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.CONST {
			continue
		}
		for _, spec := range gen.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok || len(vs.Values) == 0 {
				continue
			}
			for i, name := range vs.Names {
				if _, ok := want[name.Name]; !ok {
					continue
				}
				idx := i
				if idx >= len(vs.Values) {
					idx = len(vs.Values) - 1
				}
				out[name.Name] = exprString(vs.Values[idx])
			}
		}
	}
	return out, nil
}

// collectSentinels finds package-level `Name = errors.New("...")` vars.
func collectSentinels(path, pkg string) ([]sentinel, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, err
	}
	var out []sentinel
	for _, decl := range f.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.VAR {
			continue
		}
		for _, spec := range gen.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for i, name := range vs.Names {
				if i >= len(vs.Values) {
					continue
				}
				call, ok := vs.Values[i].(*ast.CallExpr)
				if !ok || exprString(call.Fun) != "errors.New" || len(call.Args) != 1 {
					continue
				}
				msg, ok := stringLiteral(call.Args[0])
				if !ok {
					continue
				}
				doc := vs.Doc
				if doc == nil && len(gen.Specs) == 1 {
					doc = gen.Doc
				}
				out = append(out, sentinel{Pkg: pkg, Name: name.Name, Message: msg, Notes: joinComments(doc)})
			}
		}
	}
	return out, nil
}

// collectReturnedLiteral flattens the first composite literal returned by
// the named function into field -> expression.
func collectReturnedLiteral(path, funcName string) (map[string]string, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string)
	for _, decl := range f.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Name == nil || fn.Name.Name != funcName || fn.Recv != nil {
			continue
		}
		ast.Inspect(fn.Body, func(n ast.Node) bool {
			ret, ok := n.(*ast.ReturnStmt)
			if !ok || len(ret.Results) == 0 {
				return true
			}
			lit, ok := ret.Results[0].(*ast.CompositeLit)
			if !ok {
				return false
			}
			parseCompositeLit("", lit, values)
			return false
		})
	}
	return values, nil
}

func parseCompositeLit(prefix string, lit *ast.CompositeLit, values map[string]string) {
	for _, elt := range lit.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		keyIdent, ok := kv.Key.(*ast.Ident)
		if !ok {
			continue
		}
		path := keyIdent.Name
		if prefix != "" {
			path = prefix + "." + path
		}
		if nested, ok := kv.Value.(*ast.CompositeLit); ok {
			parseCompositeLit(path, nested, values)
			continue
		}
		values[path] = exprString(kv.Value)
	}
}

func stringLiteral(expr ast.Expr) (string, bool) {
	lit, ok := expr.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	val, err := strconv.Unquote(lit.Value)
	if err != nil {
		return "", false
	}
	return val, true
}

func exprString(expr ast.Expr) string {
	var buf bytes.Buffer
	_ = printer.Fprint(&buf, token.NewFileSet(), expr)
	return buf.String()
}

func joinComments(groups ...*ast.CommentGroup) string {
	var parts []string
	for _, g := range groups {
		if g == nil {
			continue
		}
		text := strings.TrimSpace(g.Text())
		if text != "" {
			parts = append(parts, strings.ReplaceAll(text, "\n", " "))
		}
	}
	return strings.Join(parts, " ")
}

func renderRecordsMarkdown(structs map[string][]structField, outcomes []constValue, errs []sentinel) []byte {
	var buf bytes.Buffer

	buf.WriteString("<!-- Generated by scripts/gen_reference.go; do not edit by hand. -->\n")
	buf.WriteString("# Records and errors\n\n")
	buf.WriteString("Generated from: `observe/types.go`, `timeline/errors.go`, `tracker/tracker.go`.\n\n")

	buf.WriteString("## Records\n\n")
	for _, name := range recordStructs {
		fields := structs[name]
		if len(fields) == 0 {
			continue
		}
		buf.WriteString("### observe." + name + "\n\n")
		buf.WriteString("| Field | Type | JSON | Notes |\n")
		buf.WriteString("|---|---|---|---|\n")
		for _, field := range fields {
			buf.WriteString("| `" + field.Name + "` | `" + orDash(field.Type) + "` | `" + orDash(field.Tags["json"]) + "` | " + escapePipes(orDash(field.Notes)) + " |\n")
		}
		buf.WriteString("\n")
	}

	buf.WriteString("## Outcomes\n\n")
	buf.WriteString("These values appear in `observe.SettleRecord.Outcome`.\n\n")
	for _, o := range outcomes {
		buf.WriteString("- `" + o.Value + "` (`observe." + o.Name + "`)\n")
	}
	buf.WriteString("\n")

	buf.WriteString("## Errors\n\n")
	buf.WriteString("| Error | Message | Notes |\n")
	buf.WriteString("|---|---|---|\n")
	for _, e := range errs {
		buf.WriteString("| `" + e.Pkg + "." + e.Name + "` | `" + escapePipes(e.Message) + "` | " + escapePipes(orDash(e.Notes)) + " |\n")
	}
	buf.WriteString("\n")
	return buf.Bytes()
}

func renderConfigMarkdown(fields []structField, defaults map[string]string, envPrefix string) []byte {
	var buf bytes.Buffer

	buf.WriteString("<!-- Generated by scripts/gen_reference.go; do not edit by hand. -->\n")
	buf.WriteString("# Configuration\n\n")
	buf.WriteString("Generated from: `config/config.go`.\n\n")
	buf.WriteString("Sources, lowest precedence first: `config.Default()`, a TOML file, `" + envPrefix + "*` environment variables.\n\n")
	buf.WriteString("| TOML key | Env | Type | Default | Notes |\n")
	buf.WriteString("|---|---|---|---|---|\n")
	for _, field := range fields {
		key := field.Tags["toml"]
		if key == "" || key == "-" {
			continue
		}
		envName := "-"
		if e := field.Tags["env"]; e != "" {
			envName = envPrefix + e
		}
		def := defaults[field.Name]
		if def == "" {
			def = zeroValue(field.Type)
		}
		buf.WriteString("| `" + key + "` | `" + envName + "` | `" + field.Type + "` | `" + def + "` | " + escapePipes(orDash(field.Notes)) + " |\n")
	}
	buf.WriteString("\n")
	return buf.Bytes()
}

func zeroValue(typ string) string {
	switch typ {
	case "bool":
		return "false"
	case "string":
		return `""`
	default:
		return "-"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
