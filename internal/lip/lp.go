package lip

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteLP writes m in CPLEX LP format. Names are rewritten to the LP name
// alphabet, so brackets and commas in variable names become underscores.
func (m *Model) WriteLP(w io.Writer) error {
	bw := bufio.NewWriter(w)
	names := make([]string, len(m.vars))
	for i := range m.vars {
		names[i] = lpName(m.VarName(Var{i}))
	}

	fmt.Fprintf(bw, "\\ Model %s\n", lpName(m.name))
	fmt.Fprintln(bw, "Minimize")
	fmt.Fprintf(bw, " obj:%s\n", lpExpr(m.obj, names))
	fmt.Fprintln(bw, "Subject To")
	for i, c := range m.cons {
		name := lpName(c.Name)
		if name == "" {
			name = "c" + strconv.Itoa(i)
		}
		fmt.Fprintf(bw, " %s:%s %s %s\n", name, lpExpr(c.Expr, names), c.Sense, lpNum(c.RHS))
	}

	fmt.Fprintln(bw, "Bounds")
	var bins, gens []string
	for i, d := range m.vars {
		switch d.kind {
		case Binary:
			bins = append(bins, names[i])
		case Integer:
			gens = append(gens, names[i])
			fmt.Fprintf(bw, " %d <= %s <= %d\n", d.lo, names[i], d.hi)
		}
	}
	if len(bins) > 0 {
		fmt.Fprintln(bw, "Binaries")
		writeWrapped(bw, bins)
	}
	if len(gens) > 0 {
		fmt.Fprintln(bw, "Generals")
		writeWrapped(bw, gens)
	}
	fmt.Fprintln(bw, "End")
	return bw.Flush()
}

func lpExpr(e Expr, names []string) string {
	if len(e) == 0 {
		return " 0"
	}
	var sb strings.Builder
	for _, t := range e {
		if t.Coef < 0 {
			sb.WriteString(" - ")
			sb.WriteString(lpNum(-t.Coef))
		} else {
			sb.WriteString(" + ")
			sb.WriteString(lpNum(t.Coef))
		}
		sb.WriteByte(' ')
		sb.WriteString(names[t.Var.idx])
	}
	return sb.String()
}

func lpNum(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// lpName maps s onto characters LP readers accept in names.
func lpName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case strings.ContainsRune("!\"#$%&/.;?@_`'{}|~", r):
			return r
		}
		return '_'
	}, s)
}

func writeWrapped(w io.Writer, names []string) {
	const perLine = 8
	for i := 0; i < len(names); i += perLine {
		end := min(i+perLine, len(names))
		fmt.Fprintf(w, " %s\n", strings.Join(names[i:end], " "))
	}
}
