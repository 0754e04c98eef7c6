package config

import (
	_ "embed"
	"fmt"
	"math/big"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/aether/internal/num"
)

//go:embed schema.cue
var schemaCUE string

// Variant selects the value arithmetic and storage of a run.
type Variant string

const (
	VariantBig       Variant = "big_int"
	VariantInt64     Variant = "int64"
	VariantFileInt64 Variant = "file_int64"
)

// ParseVariant validates a variant name.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case VariantBig, VariantInt64, VariantFileInt64:
		return v, nil
	}
	return "", fmt.Errorf("config: unknown variant %q (want big_int, int64 or file_int64)", s)
}

// Kind returns the value arithmetic the variant uses.
func (v Variant) Kind() num.Kind {
	if v == VariantBig {
		return num.KindBig
	}
	return num.KindInt64
}

// Run is a decoded run configuration.
type Run struct {
	Dimension   int
	Initial     *big.Int
	Variant     Variant
	Steps       int64
	UntilStable bool
	BackupEvery int64
	Compliance  bool
	WorkDir     string
	SnapshotDB  string
	Label       string
}

// Error codes.
const (
	ErrCodeNotFound = "NOT_FOUND"
	ErrCodeSyntax   = "SYNTAX"
	ErrCodeInvalid  = "INVALID"
)

// Error reports a configuration that could not be loaded, with the CUE
// position when one is known.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load reads and decodes the configuration file at path.
func Load(path string) (Run, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Run{}, &Error{Code: ErrCodeNotFound, Message: err.Error()}
	}
	return Parse(path, src)
}

// Parse decodes configuration source. filename is used in positions only.
func Parse(filename string, src []byte) (Run, error) {
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx)
	if err != nil {
		return Run{}, err
	}

	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return Run{}, cueError(ErrCodeSyntax, err)
	}

	v := schema.Unify(data)
	if err := v.Validate(cue.Final(), cue.Concrete(true)); err != nil {
		return Run{}, cueError(ErrCodeInvalid, err)
	}
	return decode(v.LookupPath(cue.ParsePath("run")))
}

// Defaults returns the schema defaults. Initial is left nil.
func Defaults() Run {
	r, err := Parse("defaults", []byte("run: initial: 0"))
	if err != nil {
		panic(fmt.Sprintf("config: schema defaults: %v", err))
	}
	r.Initial = nil
	return r
}

// Validate checks a run assembled outside a configuration file, such as
// one overridden by flags, against the schema.
func (r Run) Validate() error {
	if r.Initial == nil {
		return &Error{Code: ErrCodeInvalid, Message: "initial is required"}
	}
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx)
	if err != nil {
		return err
	}
	v := schema.LookupPath(cue.ParsePath("#Run")).Unify(ctx.Encode(map[string]any{
		"dimension":    r.Dimension,
		"initial":      r.Initial.String(),
		"variant":      string(r.Variant),
		"steps":        r.Steps,
		"until_stable": r.UntilStable,
		"backup_every": r.BackupEvery,
		"compliance":   r.Compliance,
		"work_dir":     r.WorkDir,
		"snapshot_db":  r.SnapshotDB,
		"label":        r.Label,
	}))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return cueError(ErrCodeInvalid, err)
	}
	return nil
}

func compileSchema(ctx *cue.Context) (cue.Value, error) {
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("config: embedded schema: %w", err)
	}
	return schema, nil
}

func decode(v cue.Value) (Run, error) {
	var r Run
	var err error
	if r.Initial, err = initial(field(v, "initial")); err != nil {
		return Run{}, err
	}

	dim, err := field(v, "dimension").Int64()
	if err != nil {
		return Run{}, cueError(ErrCodeInvalid, err)
	}
	r.Dimension = int(dim)

	variant, err := field(v, "variant").String()
	if err != nil {
		return Run{}, cueError(ErrCodeInvalid, err)
	}
	r.Variant = Variant(variant)

	ints := []struct {
		name string
		dst  *int64
	}{
		{"steps", &r.Steps},
		{"backup_every", &r.BackupEvery},
	}
	for _, f := range ints {
		if *f.dst, err = field(v, f.name).Int64(); err != nil {
			return Run{}, cueError(ErrCodeInvalid, err)
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"until_stable", &r.UntilStable},
		{"compliance", &r.Compliance},
	}
	for _, f := range bools {
		if *f.dst, err = field(v, f.name).Bool(); err != nil {
			return Run{}, cueError(ErrCodeInvalid, err)
		}
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"work_dir", &r.WorkDir},
		{"snapshot_db", &r.SnapshotDB},
		{"label", &r.Label},
	}
	for _, f := range strs {
		if *f.dst, err = field(v, f.name).String(); err != nil {
			return Run{}, cueError(ErrCodeInvalid, err)
		}
	}
	return r, nil
}

// field looks up name and resolves it to its default, if any.
func field(v cue.Value, name string) cue.Value {
	f := v.LookupPath(cue.ParsePath(name))
	if d, ok := f.Default(); ok {
		return d
	}
	return f
}

// initial accepts an integer literal or a decimal string.
func initial(v cue.Value) (*big.Int, error) {
	switch v.Kind() {
	case cue.IntKind:
		n, err := v.Int(nil)
		if err != nil {
			return nil, cueError(ErrCodeInvalid, err)
		}
		return n, nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, cueError(ErrCodeInvalid, err)
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, &Error{Code: ErrCodeInvalid, Message: fmt.Sprintf("initial %q is not an integer", s), Pos: v.Pos()}
		}
		return n, nil
	}
	return nil, &Error{Code: ErrCodeInvalid, Message: "initial must be an integer or a decimal string", Pos: v.Pos()}
}

// cueError keeps the first CUE error and its position.
func cueError(code string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Code: code, Message: err.Error()}
	}
	first := errs[0]
	e := &Error{Code: code, Message: first.Error()}
	if pos := errors.Positions(first); len(pos) > 0 {
		e.Pos = pos[0]
	}
	return e
}
