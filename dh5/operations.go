package dh5

import (
	"fmt"
	"os"
	"os/user"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cog-neurophys-lab/dh5io/hdf5"
)

// OperationsGroupName is the root group holding the processing history.
const OperationsGroupName = "Operations"

const (
	toolAttr             = "Tool"
	operatorAttr         = "Operator name"
	dateAttr             = "Date"
	originalFilenameAttr = "original_filename"
	versionAttr          = "dh5io version"
)

// Date is the compound stored in the Date attribute of an operation.
type Date struct {
	Year   int64 `h5:"Year"`
	Month  int8  `h5:"Month"`
	Day    int8  `h5:"Day"`
	Hour   int8  `h5:"Hour"`
	Minute int8  `h5:"Minute"`
	Second int8  `h5:"Second"`
}

// DateOf converts t to a Date.
func DateOf(t time.Time) Date {
	return Date{
		Year:   int64(t.Year()),
		Month:  int8(t.Month()),
		Day:    int8(t.Day()),
		Hour:   int8(t.Hour()),
		Minute: int8(t.Minute()),
		Second: int8(t.Second()),
	}
}

// Time returns d as a time in loc.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(int(d.Year), time.Month(d.Month), int(d.Day), int(d.Hour), int(d.Minute), int(d.Second), 0, loc)
}

// MarshalText encodes d in the String format.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes the String format.
func (d *Date) UnmarshalText(text []byte) error {
	_, err := fmt.Sscanf(string(text), "%d-%d-%d %d:%d:%d", &d.Year, &d.Month, &d.Day, &d.Hour, &d.Minute, &d.Second)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", text, err)
	}
	return nil
}

// String formats d as "2006-01-02 15:04:05".
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
}

// Operation is one entry of the processing history.
type Operation struct {
	Index            int    `json:"index" yaml:"index"`
	Name             string `json:"name" yaml:"name"` // group name, e.g. "000_create_file"
	Tool             string `json:"tool" yaml:"tool"`
	Operator         string `json:"operator" yaml:"operator"`
	Date             Date   `json:"date" yaml:"date"`
	OriginalFilename string `json:"original_filename,omitempty" yaml:"original_filename,omitempty"`
	LibraryVersion   string `json:"dh5io_version,omitempty" yaml:"dh5io_version,omitempty"`
}

// OperationOption configures AddOperation.
type OperationOption func(*operationSpec)

type operationSpec struct {
	id               int
	hasID            bool
	tool             string
	operator         string
	date             time.Time
	originalFilename string
}

// OperationID sets the operation index instead of the next free one.
func OperationID(id int) OperationOption {
	return func(s *operationSpec) {
		s.id = id
		s.hasID = true
	}
}

// OperationTool sets the tool that performed the operation.
func OperationTool(tool string) OperationOption {
	return func(s *operationSpec) {
		s.tool = tool
	}
}

// OperatorName sets the person who performed the operation.
func OperatorName(name string) OperationOption {
	return func(s *operationSpec) {
		s.operator = name
	}
}

// OperationDate sets the operation date instead of the current time.
func OperationDate(t time.Time) OperationOption {
	return func(s *operationSpec) {
		s.date = t
	}
}

// OriginalFilename records the file the operation read from.
func OriginalFilename(name string) OperationOption {
	return func(s *operationSpec) {
		s.originalFilename = name
	}
}

// AddOperation appends an operation named "<NNN>_<name>" to the processing
// history, creating the Operations group when needed. Without OperationID
// the index is one past the last recorded operation, or 0 for the first.
func (f *File) AddOperation(name string, opts ...OperationOption) error {
	if err := f.writable(); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("operation name cannot be empty")
	}

	spec := operationSpec{tool: f.opts.tool}
	for _, opt := range opts {
		opt(&spec)
	}
	if spec.tool == "" {
		return fmt.Errorf("operation %q: tool is required", name)
	}
	if spec.operator == "" {
		spec.operator = f.defaultOperator()
	}
	if spec.date.IsZero() {
		spec.date = f.opts.now()
	}

	if !spec.hasID {
		last, ok, err := f.LastOperationIndex()
		if err != nil {
			return err
		}
		if ok {
			spec.id = last + 1
		}
	}
	if spec.id < 0 || spec.id > 999 {
		return fmt.Errorf("operation index %d out of range [0, 999]", spec.id)
	}

	ops, err := f.operationsGroup()
	if err != nil {
		return err
	}
	groupName := fmt.Sprintf("%03d_%s", spec.id, name)
	if ops.HasMember(groupName) {
		return existsErr(OperationsGroupName + "/" + groupName)
	}

	g, err := ops.CreateGroup(groupName)
	if err != nil {
		return fmt.Errorf("creating operation %s: %w", groupName, err)
	}
	type attr struct {
		name  string
		value interface{}
	}
	attrs := []attr{
		{toolAttr, spec.tool},
		{operatorAttr, spec.operator},
		{dateAttr, DateOf(spec.date)},
		{versionAttr, Version},
	}
	if spec.originalFilename != "" {
		attrs = append(attrs, attr{originalFilenameAttr, spec.originalFilename})
	}
	for _, a := range attrs {
		if err := g.SetAttr(a.name, a.value); err != nil {
			return rollback(ops, groupName, fmt.Errorf("operation %s: %w", groupName, err))
		}
	}

	f.opts.logger.Info().
		Str("operation", groupName).
		Str("tool", spec.tool).
		Str("operator", spec.operator).
		Msg("recorded operation")
	return nil
}

func (f *File) operationsGroup() (*hdf5.Group, error) {
	g, err := f.Root().OpenGroup(OperationsGroupName)
	if err == nil {
		return g, nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("opening %s: %w", OperationsGroupName, err)
	}
	g, err = f.Root().CreateGroup(OperationsGroupName)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", OperationsGroupName, err)
	}
	return g, nil
}

// defaultOperator returns the configured operator, else the OS user.
func (f *File) defaultOperator() string {
	if f.opts.operator != "" {
		return f.opts.operator
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

// Operations lists the processing history sorted by group name.
func (f *File) Operations() ([]Operation, error) {
	ops, err := f.Root().OpenGroup(OperationsGroupName)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", OperationsGroupName, err)
	}
	names, err := ops.Members()
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", OperationsGroupName, err)
	}
	sort.Strings(names)

	var out []Operation
	for _, name := range names {
		g, err := ops.OpenGroup(name)
		if err != nil {
			return nil, fmt.Errorf("opening operation %s: %w", name, err)
		}
		op := Operation{Name: name, Index: -1}
		if idx, _, err := OperationIndexFromName(name); err == nil {
			op.Index = idx
		}
		op.Tool, _, _ = stringAttr(g, toolAttr)
		op.Operator, _, _ = stringAttr(g, operatorAttr)
		op.OriginalFilename, _, _ = stringAttr(g, originalFilenameAttr)
		op.LibraryVersion, _, _ = stringAttr(g, versionAttr)
		if attr := g.Attr(dateAttr); attr != nil {
			if err := attr.Read(&op.Date); err != nil {
				return nil, fmt.Errorf("reading %s of %s: %w", dateAttr, g.Path(), err)
			}
		}
		out = append(out, op)
	}
	return out, nil
}

// LastOperationIndex returns the index of the last operation by name order.
// It reports false when there are no operations.
func (f *File) LastOperationIndex() (int, bool, error) {
	ops, err := f.Root().OpenGroup(OperationsGroupName)
	if isNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("opening %s: %w", OperationsGroupName, err)
	}
	names, err := ops.Members()
	if err != nil {
		return 0, false, fmt.Errorf("listing %s: %w", OperationsGroupName, err)
	}
	if len(names) == 0 {
		return 0, false, nil
	}
	sort.Strings(names)
	idx, _, err := OperationIndexFromName(names[len(names)-1])
	if err != nil {
		return 0, false, err
	}
	return idx, true, nil
}

// OperationIndexFromName parses the index prefix of an operation group name
// such as "003_filter". threeDigits is false when the prefix is a number but
// not exactly three digits long.
func OperationIndexFromName(name string) (idx int, threeDigits bool, err error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, false, fmt.Errorf("operation name %q has no index prefix", name)
	}
	idx, err = strconv.Atoi(strings.TrimSpace(prefix))
	if err != nil || idx < 0 {
		return 0, false, fmt.Errorf("operation name %q: invalid index %q", name, prefix)
	}
	return idx, len(prefix) == 3 && prefix[0] != ' ', nil
}

// ValidateOperations checks the Operations group.
func ValidateOperations(f *File, opts ...Option) (*Report, error) {
	v := newValidator(f.opts, opts)
	return v.report, v.operations(f)
}

func (v *validator) operations(f *File) error {
	kind, ok := f.memberKind(OperationsGroupName)
	if !ok {
		return v.invalid("/", "Operations group not found")
	}
	if kind != hdf5.KindGroup {
		return v.invalid("/"+OperationsGroupName, "Operations is a %s, not a group", kind)
	}
	ops, err := f.Root().OpenGroup(OperationsGroupName)
	if err != nil {
		return v.invalid("/"+OperationsGroupName, "cannot open Operations: %v", err)
	}
	names, err := ops.Members()
	if err != nil {
		return v.invalid(ops.Path(), "cannot list operations: %v", err)
	}
	sort.Strings(names)

	sequential := true
	for i, name := range names {
		path := ops.Path() + "/" + name
		kind, err := ops.MemberKind(name)
		if err != nil {
			return v.invalid(path, "cannot inspect operation: %v", err)
		}
		if kind != hdf5.KindGroup {
			return v.invalid(path, "operation %s is a %s, not a group", name, kind)
		}
		idx, threeDigits, err := OperationIndexFromName(name)
		if err != nil {
			if werr := v.warn(path, "%v", err); werr != nil {
				return werr
			}
			sequential = false
			continue
		}
		if !threeDigits {
			if werr := v.warn(path, "operation index of %s is not three digits", name); werr != nil {
				return werr
			}
		}
		if idx != i {
			sequential = false
		}
	}
	if !sequential {
		if werr := v.warn(ops.Path(), "operation indices are not numbered sequentially"); werr != nil {
			return werr
		}
	}
	return nil
}
