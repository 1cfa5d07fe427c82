package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"github.com/kadirbelkuyu/dbclone/internal/rewrite"
)

var (
	nextvalPattern        = regexp.MustCompile(`nextval\('((?:[^']|'')+)'(?:::regclass)?\)`)
	addConstraintPattern  = regexp.MustCompile(`(?i)\bADD\s+CONSTRAINT\s+("(?:[^"]|"")+"|[^\s(]+)`)
	unqualifiedReferences = regexp.MustCompile(`(?i)(\bREFERENCES\s+)([A-Za-z_][\w$]*|"(?:[^"]|"")+")(\s*\()`)
)

// BuildCreateTable renders CREATE TABLE for columns ordered by position.
func BuildCreateTable(target string, table TableInfo, columns []ColumnInfo) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("no columns for table %s", table)
	}

	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		defs = append(defs, "    "+columnDefinition(target, col))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n%s\n)", rewrite.Qualified(target, table.Name), strings.Join(defs, ",\n"))
	if table.Partitioned && table.PartitionKey != "" {
		b.WriteString(" PARTITION BY ")
		b.WriteString(table.PartitionKey)
	}
	b.WriteString(";")

	return b.String(), nil
}

func columnDefinition(target string, col ColumnInfo) string {
	def := rewrite.Ident(col.Name) + " " + columnType(target, col)

	switch {
	case col.Generated != "":
		def += fmt.Sprintf(" GENERATED ALWAYS AS (%s) STORED", col.Generated)
	case col.Identity != "":
		def += fmt.Sprintf(" GENERATED %s AS IDENTITY", col.Identity)
	case col.Default != nil:
		def += " DEFAULT " + RewriteDefault(*col.Default, target)
	}

	if !col.IsNullable {
		def += " NOT NULL"
	}

	return def
}

func columnType(target string, col ColumnInfo) string {
	if col.IsEnum {
		return rewrite.Qualified(target, col.TypeName)
	}
	if col.TypeName != "" {
		return col.TypeName
	}
	if col.CharMaxLength != nil {
		return fmt.Sprintf("%s(%d)", col.DataType, *col.CharMaxLength)
	}
	return col.DataType
}

// RewriteDefault points nextval() calls at the target schema and qualifies
// bare ::type casts with it. Built-in types qualified this way are
// de-qualified again by the rewriter.
func RewriteDefault(expr, target string) string {
	expr = nextvalPattern.ReplaceAllStringFunc(expr, func(match string) string {
		ref := ParseSequenceRef(match, target)
		return fmt.Sprintf("nextval('%s'::regclass)", strings.ReplaceAll(rewrite.Qualified(target, ref.Name), "'", "''"))
	})
	return qualifyCasts(expr, target)
}

func qualifyCasts(expr, target string) string {
	prefix := rewrite.Ident(target) + "."

	var b strings.Builder
	inQuote := false
	for i := 0; i < len(expr); i++ {
		ch := expr[i]
		if ch == '\'' {
			inQuote = !inQuote
			b.WriteByte(ch)
			continue
		}
		if inQuote || ch != ':' || i+1 >= len(expr) || expr[i+1] != ':' {
			b.WriteByte(ch)
			continue
		}

		b.WriteString("::")
		i += 2
		end := identEnd(expr, i)
		if end > i && (end >= len(expr) || expr[end] != '.') && !quotedBuiltin(expr[i:end]) {
			b.WriteString(prefix)
		}
		b.WriteString(expr[i:end])
		i = end - 1
	}

	return b.String()
}

// quotedBuiltin reports whether ident is a double-quoted built-in type such
// as "char". The rewriter only strips unquoted built-ins, so these must not
// be qualified in the first place.
func quotedBuiltin(ident string) bool {
	if len(ident) < 2 || ident[0] != '"' || ident[len(ident)-1] != '"' {
		return false
	}
	name := strings.ReplaceAll(ident[1:len(ident)-1], `""`, `"`)
	return name == strings.ToLower(name) && rewrite.IsBuiltinType(name)
}

// identEnd returns the index just past the identifier starting at start.
func identEnd(s string, start int) int {
	if start >= len(s) {
		return start
	}
	if s[start] == '"' {
		for i := start + 1; i < len(s); i++ {
			if s[i] == '"' {
				if i+1 < len(s) && s[i+1] == '"' {
					i++
					continue
				}
				return i + 1
			}
		}
		return len(s)
	}

	i := start
	for i < len(s) {
		c := s[i]
		if c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || i > start && c >= '0' && c <= '9' {
			i++
			continue
		}
		break
	}
	return i
}

// ParseSequenceRef extracts a schema-qualified sequence name from either a
// nextval('...'::regclass) expression or a bare sequence name.
func ParseSequenceRef(expr, defaultSchema string) SequenceRef {
	name := strings.TrimSpace(expr)
	name = strings.TrimPrefix(name, "nextval(")
	name = strings.TrimSuffix(name, ")")
	name = strings.TrimSuffix(name, "::regclass")
	name = strings.Trim(name, "'")
	name = strings.ReplaceAll(name, "''", "'")

	parts := splitQualified(name)
	if len(parts) >= 2 {
		return SequenceRef{Schema: parts[len(parts)-2], Name: parts[len(parts)-1]}
	}
	return SequenceRef{Schema: defaultSchema, Name: parts[0]}
}

// splitQualified splits a dotted name, honouring and removing double quotes.
func splitQualified(name string) []string {
	var parts []string
	var current strings.Builder
	inQuote := false

	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch == '"' && inQuote && i+1 < len(name) && name[i+1] == '"':
			current.WriteByte('"')
			i++
		case ch == '"':
			inQuote = !inQuote
		case ch == '.' && !inQuote:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}

	return append(parts, current.String())
}

// SequenceRefs returns the distinct sequences referenced by nextval defaults.
func SequenceRefs(defaults []string, defaultSchema string) []SequenceRef {
	seen := make(map[SequenceRef]struct{})
	var refs []SequenceRef

	for _, def := range defaults {
		for _, match := range nextvalPattern.FindAllString(def, -1) {
			ref := ParseSequenceRef(match, defaultSchema)
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			refs = append(refs, ref)
		}
	}

	return refs
}

func BuildSequenceDDL(target, name string, info SequenceInfo) string {
	return fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s INCREMENT %s MINVALUE %s MAXVALUE %s START %s;",
		rewrite.Qualified(target, name), info.Increment, info.MinValue, info.MaxValue, info.Start)
}

func BuildPartitionDDL(target string, part PartitionInfo) string {
	bound := strings.TrimSpace(part.Bound)
	upper := strings.ToUpper(bound)
	if !strings.HasPrefix(upper, "FOR VALUES") && upper != "DEFAULT" {
		bound = "FOR VALUES " + bound
	}

	ddl := fmt.Sprintf("CREATE TABLE %s PARTITION OF %s %s",
		rewrite.Qualified(target, part.Name), rewrite.Qualified(target, part.Parent), bound)
	if part.PartitionKey != "" {
		ddl += " PARTITION BY " + part.PartitionKey
	}
	return ddl + ";"
}

// BuildConstraintDDL renders ALTER TABLE ... ADD CONSTRAINT for the target
// table. Unqualified REFERENCES targets are qualified with sourceSchema so
// the rewriter can map them like every other source reference.
func BuildConstraintDDL(target, sourceSchema, table string, c ConstraintInfo) ConstraintDDL {
	def := strings.TrimSpace(c.Definition)
	if c.IsForeignKey() {
		def = QualifyReferences(def, sourceSchema)
	}

	upper := strings.ToUpper(def)
	if c.Deferrable && !strings.Contains(upper, "DEFERRABLE") {
		def += " DEFERRABLE"
	}
	if c.Deferred && !strings.Contains(upper, "INITIALLY DEFERRED") {
		def += " INITIALLY DEFERRED"
	}
	if c.NotValid && !strings.Contains(upper, "NOT VALID") {
		def += " NOT VALID"
	}

	return ConstraintDDL{
		Name:       c.Name,
		ForeignKey: c.IsForeignKey(),
		SQL: fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s;",
			rewrite.Qualified(target, table), rewrite.Ident(c.Name), def),
	}
}

func (c ConstraintInfo) IsForeignKey() bool {
	return c.Type == "f"
}

// QualifyReferences prefixes an unqualified REFERENCES table with schema.
func QualifyReferences(def, schema string) string {
	return unqualifiedReferences.ReplaceAllString(def, "${1}"+strings.ReplaceAll(rewrite.Ident(schema), "$", "$$")+".${2}${3}")
}

// ExtractConstraintName reads the constraint name out of an ADD CONSTRAINT
// statement, falling back to a name derived from the constraint kind.
func ExtractConstraintName(ddl, table string) string {
	if m := addConstraintPattern.FindStringSubmatch(ddl); m != nil {
		name := m[1]
		if len(name) >= 2 && strings.HasPrefix(name, `"`) {
			name = strings.ReplaceAll(name[1:len(name)-1], `""`, `"`)
		}
		return name
	}

	upper := strings.ToUpper(ddl)
	switch {
	case strings.Contains(upper, "PRIMARY KEY"):
		return table + "_pk"
	case strings.Contains(upper, "FOREIGN KEY"):
		return table + "_fk"
	case strings.Contains(upper, "UNIQUE"):
		return table + "_unique"
	default:
		return "unknown_constraint"
	}
}

// BuildEnumDDL renders a guarded CREATE TYPE ... AS ENUM so reruns succeed.
func BuildEnumDDL(target string, e EnumInfo) string {
	labels := make([]string, len(e.Values))
	for i, value := range e.Values {
		labels[i] = pq.QuoteLiteral(value)
	}

	return fmt.Sprintf(`DO $enum$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM pg_type t
        JOIN pg_namespace n ON n.oid = t.typnamespace
        WHERE n.nspname = %s AND t.typname = %s
    ) THEN
        CREATE TYPE %s AS ENUM (%s);
    END IF;
END
$enum$;`, pq.QuoteLiteral(target), pq.QuoteLiteral(e.Name), rewrite.Qualified(target, e.Name), strings.Join(labels, ", "))
}
