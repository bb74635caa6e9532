package value

import (
	"fmt"
	"strconv"
)

// Format renders v per spec.md §6 "Value printing rules". debug selects the
// quoted form used by the disassembler and for array elements, as opposed
// to the raw form `print`/`println` write to stdout.
func Format(v Value, debug bool) string {
	switch v.Kind() {
	case KindNil:
		return "nil"
	case KindBool:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.AsNumber())
	case KindChar:
		if debug {
			return "'" + string(rune(v.AsChar())) + "'"
		}
		return string(rune(v.AsChar()))
	case KindBuiltin:
		return "<builtin fn>"
	case KindObj:
		return formatObj(v.AsObj(), debug)
	default:
		return fmt.Sprintf("<invalid value kind %d>", v.Kind())
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func formatObj(o Obj, debug bool) string {
	switch o := o.(type) {
	case *String:
		if debug {
			return strconv.Quote(o.Bytes)
		}
		return o.Bytes
	case *Function:
		return "<" + o.DisplayName() + ">"
	case *Closure:
		return formatObj(o.Function, debug)
	case *Array:
		s := "["
		for i, e := range o.Elems {
			if i > 0 {
				s += ", "
			}
			s += Format(e, true)
		}
		return s + "]"
	default:
		return fmt.Sprintf("<obj %T>", o)
	}
}
