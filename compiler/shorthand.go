package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/fkorm/compiler/load"
)

// Shorthand flags. Order does not matter except for the type, which comes first.
const (
	flagUnique        = "unique"
	flagIndex         = "index"
	flagNullable      = "nullable"
	flagAutoIncrement = "auto_increment"
	flagCascade       = "cascade"
)

// ExpandShorthand expands a "type[,unique][,index][,nullable][,cascade][,auto_increment]"
// definition into a field description. Unrecognized tokens are an error.
func ExpandShorthand(def string) (*load.Field, error) {
	tokens := strings.Split(def, ",")
	for i := range tokens {
		tokens[i] = strings.TrimSpace(tokens[i])
	}
	if tokens[0] == "" {
		return nil, fmt.Errorf("definition %q: no type found", def)
	}
	flag := func(name string) bool {
		i := slices.Index(tokens[1:], name)
		if i < 0 {
			return false
		}
		tokens = slices.Delete(tokens, i+1, i+2)
		return true
	}
	f := &load.Field{
		Type:          tokens[0],
		Unique:        flag(flagUnique),
		Index:         flag(flagIndex),
		Nullable:      flag(flagNullable),
		AutoIncrement: flag(flagAutoIncrement),
	}
	if flag(flagCascade) {
		f.OnUpdate, f.OnDelete = "cascade", "cascade"
	}
	residue := slices.DeleteFunc(tokens[1:], func(s string) bool { return s == "" })
	if len(residue) > 0 {
		return nil, fmt.Errorf("definition %q: unrecognized residue %q", def, strings.Join(residue, ","))
	}
	return f, nil
}
