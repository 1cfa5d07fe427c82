package schema

type EnumInfo struct {
	Schema string
	Name   string
	Values []string
}

type TableInfo struct {
	Schema       string
	Name         string
	Partitioned  bool
	PartitionKey string
	IsPartition  bool
	// PartitionBound is set for partition children, e.g. "FOR VALUES FROM (1) TO (10)".
	PartitionBound string
}

func (t TableInfo) String() string {
	return t.Schema + "." + t.Name
}

type ColumnInfo struct {
	Name          string
	DataType      string
	TypeName      string
	IsEnum        bool
	CharMaxLength *int
	IsNullable    bool
	Default       *string
	Position      int
	// Identity is "ALWAYS" or "BY DEFAULT" for identity columns.
	Identity string
	// Generated holds the expression of a stored generated column.
	Generated string
}

type SequenceRef struct {
	Schema string
	Name   string
}

func (s SequenceRef) String() string {
	return s.Schema + "." + s.Name
}

type SequenceInfo struct {
	Increment string
	MinValue  string
	MaxValue  string
	Start     string
}

// DefaultSequence is used when the source catalog has no row for a sequence.
var DefaultSequence = SequenceInfo{
	Increment: "1",
	MinValue:  "1",
	MaxValue:  "9223372036854775807",
	Start:     "1",
}

type ConstraintInfo struct {
	Name       string
	Type       string
	Definition string
	Deferrable bool
	Deferred   bool
	NotValid   bool
}

// ConstraintDDL is a ready-to-run ALTER TABLE ... ADD CONSTRAINT statement.
type ConstraintDDL struct {
	Name       string
	ForeignKey bool
	SQL        string
}

type PartitionInfo struct {
	Name         string
	Parent       string
	Bound        string
	PartitionKey string
}

// DataColumn is the per-column metadata the data migrators need.
type DataColumn struct {
	Name        string
	DataType    string
	IsNullable  bool
	HasDefault  bool
	IsIdentity  bool
	IsGenerated bool
}
