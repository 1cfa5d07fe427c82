package rewrite

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// BuiltinTypes lists the type names that must never carry a schema prefix.
var BuiltinTypes = []string{
	"text", "varchar", "character varying", "bigint", "integer", "int4", "int8",
	"jsonb", "timestamp", "boolean", "bool", "date", "time", "uuid", "numeric",
	"double precision", "real", "smallint", "interval", "bytea", "inet", "cidr",
	"macaddr", "money", "point", "line", "lseg", "box", "path", "polygon", "circle",
	"json", "character", "char", "timestamptz", "timetz", "float4", "float8", "int2",
	"bit", "varbit", "xml", "tsvector", "tsquery", "regclass", "oid", "name",
}

// identBoundary is the set of characters that may not precede a schema name
// for it to count as a qualifier.
const identBoundary = `(^|[^\w"$.])`

// Rewriter maps DDL emitted for a source schema onto the target schema.
// It holds no state besides the target name and its compiled patterns.
type Rewriter struct {
	target  string
	types   *regexp.Regexp
	mu      sync.Mutex
	schemas map[string]*regexp.Regexp
}

func New(targetSchema string) *Rewriter {
	names := make([]string, len(BuiltinTypes))
	for i, name := range BuiltinTypes {
		names[i] = regexp.QuoteMeta(name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	pattern := identBoundary + schemaAlternation(targetSchema) + `\.((?i:` + strings.Join(names, "|") + `))\b`

	return &Rewriter{
		target:  targetSchema,
		types:   regexp.MustCompile(pattern),
		schemas: make(map[string]*regexp.Regexp),
	}
}

func (r *Rewriter) Target() string {
	return r.target
}

// TargetPrefix is the qualifier prepended to objects created in the target.
func (r *Rewriter) TargetPrefix() string {
	return Ident(r.target) + "."
}

// RewriteSchema replaces every sourceSchema qualifier in ddl with the target
// schema. A qualifier is the bare or double-quoted schema name followed by a
// dot and not itself preceded by an identifier character.
func (r *Rewriter) RewriteSchema(ddl, sourceSchema string) string {
	if sourceSchema == "" || sourceSchema == r.target {
		return ddl
	}
	return r.schemaPattern(sourceSchema).ReplaceAllString(ddl, "${1}"+escapeReplacement(r.TargetPrefix()))
}

// relationKeywords introduce a relation name, so a built-in type name right
// after one of them is a table called text, path, name and so on.
var relationKeywords = map[string]bool{
	"table":      true,
	"only":       true,
	"on":         true,
	"of":         true,
	"references": true,
	"exists":     true,
	"into":       true,
}

var builtinTypes = func() map[string]bool {
	set := make(map[string]bool, len(BuiltinTypes))
	for _, name := range BuiltinTypes {
		set[name] = true
	}
	return set
}()

// IsBuiltinType reports whether name, compared case-insensitively, is one of
// BuiltinTypes.
func IsBuiltinType(name string) bool {
	return builtinTypes[strings.ToLower(name)]
}

// CleanTypeReferences strips the target qualifier from built-in type names.
// Qualified relations that happen to share a type name are left alone.
func (r *Rewriter) CleanTypeReferences(ddl string) string {
	matches := r.types.FindAllStringSubmatchIndex(ddl, -1)
	if len(matches) == 0 {
		return ddl
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		if followsRelationKeyword(ddl[:m[3]]) {
			continue
		}
		b.WriteString(ddl[last:m[0]])
		b.WriteString(ddl[m[2]:m[3]])
		b.WriteString(ddl[m[4]:m[5]])
		last = m[1]
	}
	b.WriteString(ddl[last:])

	return b.String()
}

func followsRelationKeyword(prefix string) bool {
	prefix = strings.TrimRight(prefix, " \t\r\n")
	start := len(prefix)
	for start > 0 {
		c := prefix[start-1]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
			start--
			continue
		}
		if c == '_' || c >= '0' && c <= '9' {
			return false
		}
		break
	}
	return relationKeywords[strings.ToLower(prefix[start:])]
}

// Rewrite applies RewriteSchema and then CleanTypeReferences. Use it on table
// bodies, where casts and column types carry the target qualifier.
func (r *Rewriter) Rewrite(ddl, sourceSchema string) string {
	return r.CleanTypeReferences(r.RewriteSchema(ddl, sourceSchema))
}

func (r *Rewriter) schemaPattern(schema string) *regexp.Regexp {
	r.mu.Lock()
	defer r.mu.Unlock()

	if re, ok := r.schemas[schema]; ok {
		return re
	}
	re := regexp.MustCompile(identBoundary + schemaAlternation(schema) + `\.`)
	r.schemas[schema] = re
	return re
}

func schemaAlternation(schema string) string {
	quoted := `"` + strings.ReplaceAll(schema, `"`, `""`) + `"`
	return `(?:` + regexp.QuoteMeta(schema) + `|` + regexp.QuoteMeta(quoted) + `)`
}

func escapeReplacement(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}
