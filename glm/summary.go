package glm

import (
	"bytes"
	"fmt"
	"strings"
)

// SummaryTable holds the summary values for a fitted model.
type SummaryTable struct {

	// Title
	Title string

	// Column names
	ColNames []string

	// Formatters for the column values
	ColFmt []Fmter

	// Cols[j] is the j^th column.  Its concrete type should
	// be an array, e.g. of numbers or strings.
	Cols []interface{}

	// Values at the top of the summary
	Top []string

	// Messages displayed below the table
	Msg []string

	// Total width of the table
	tw int
}

// Fmter formats the elements of an array of values.
type Fmter func(interface{}, string) []string

// FmtStrings formats a column of strings, left aligned.
func FmtStrings(x interface{}, h string) []string {
	y := x.([]string)
	m := len(h)
	for i := range y {
		if len(y[i]) > m {
			m = len(y[i])
		}
	}
	var z []string
	c := fmt.Sprintf("%%-%ds", m)
	for i := range y {
		z = append(z, fmt.Sprintf(c, y[i]))
	}
	return z
}

// FmtFloats formats a column of numbers.
func FmtFloats(x interface{}, h string) []string {
	y := x.([]float64)
	var s []string
	for i := range y {
		s = append(s, fmt.Sprintf("%10.4f", y[i]))
	}
	return s
}

// FmtInts formats a column of integers.
func FmtInts(x interface{}, h string) []string {
	y := x.([]int)
	var s []string
	for i := range y {
		s = append(s, fmt.Sprintf("%6d", y[i]))
	}
	return s
}

// Draw a line constructed of the given character filling the width of
// the table.
func (s *SummaryTable) line(c string) string {
	return strings.Repeat(c, s.tw) + "\n"
}

// cleanTop ensures that all fields in the top part of the table have
// the same width.
func (s *SummaryTable) cleanTop() {

	w := len(s.Top[0])
	for _, x := range s.Top {
		if len(x) > w {
			w = len(x)
		}
	}

	for i, x := range s.Top {
		if len(x) < w {
			s.Top[i] = x + strings.Repeat(" ", w-len(x))
		}
	}
}

// Construct the upper part of the table, which contains summary
// values for the model.
func (s *SummaryTable) top(gap int) string {

	w := []int{0, 0}

	for j, x := range s.Top {
		if len(x) > w[j%2] {
			w[j%2] = len(x)
		}
	}

	var b bytes.Buffer

	for j, x := range s.Top {
		c := fmt.Sprintf("%%-%ds", w[j%2])
		b.Write([]byte(fmt.Sprintf(c, x)))
		if j%2 == 1 {
			b.Write([]byte("\n"))
		} else {
			b.Write([]byte(strings.Repeat(" ", gap)))
		}
	}

	if len(s.Top)%2 == 1 {
		b.Write([]byte("\n"))
	}

	return b.String()
}

// String returns the table as a string.
func (s *SummaryTable) String() string {

	s.cleanTop()

	var tab [][]string
	var wx []int
	for j, c := range s.Cols {
		u := s.ColFmt[j](c, s.ColNames[j])
		tab = append(tab, u)
		if len(u) > 0 && len(u[0]) > len(s.ColNames[j]) {
			wx = append(wx, len(u[0]))
		} else {
			wx = append(wx, len(s.ColNames[j]))
		}
	}

	gap := 10

	// Get the total width of the table
	s.tw = 0
	for _, w := range wx {
		s.tw += w
	}
	if s.tw < len(s.Title) {
		s.tw = len(s.Title)
	}
	if s.tw < gap+2*len(s.Top[0]) {
		s.tw = gap + 2*len(s.Top[0])
	}

	var buf bytes.Buffer

	// Center the title
	k := len(s.Title)
	kr := (s.tw - k) / 2
	if kr < 0 {
		kr = 0
	}
	buf.Write([]byte(strings.Repeat(" ", kr)))
	buf.Write([]byte(s.Title))
	buf.Write([]byte("\n"))

	buf.Write([]byte(s.line("=")))
	buf.Write([]byte(s.top(gap)))
	buf.Write([]byte(s.line("-")))

	for j, c := range s.ColNames {
		f := fmt.Sprintf("%%%ds", wx[j])
		buf.Write([]byte(fmt.Sprintf(f, c)))
	}
	buf.Write([]byte("\n"))
	buf.Write([]byte(s.line("-")))

	nrow := 0
	if len(tab) > 0 {
		nrow = len(tab[0])
	}
	for i := 0; i < nrow; i++ {
		for j := 0; j < len(tab); j++ {
			f := fmt.Sprintf("%%%ds", wx[j])
			buf.Write([]byte(fmt.Sprintf(f, tab[j][i])))
		}
		buf.Write([]byte("\n"))
	}
	buf.Write([]byte(s.line("-")))

	for _, msg := range s.Msg {
		buf.Write([]byte(msg + "\n"))
	}

	return buf.String()
}

// Summary returns a summary table of the fitted model.
func (rslt *Results) Summary() *SummaryTable {

	glm := rslt.model

	sum := &SummaryTable{
		Title: "Generalized linear model analysis",
		Msg:   rslt.messages,
	}

	sum.Top = []string{
		fmt.Sprintf("Family:   %s", glm.fam.Name),
		fmt.Sprintf("Link:     %s", glm.link.Name),
		fmt.Sprintf("Variance: %s", glm.vari.Name),
		fmt.Sprintf("Num obs:  %d", glm.NumObs()),
		fmt.Sprintf("Scale:    %f", rslt.scale),
	}

	if rslt.vcov == nil {
		sum.ColNames = []string{"Variable   ", "Parameter"}
		sum.ColFmt = []Fmter{FmtStrings, FmtFloats}
		sum.Cols = []interface{}{rslt.Names(), rslt.Params()}
		return sum
	}

	// Estimates with approximate confidence limits
	var lcb, ucb []float64
	pax := rslt.Params()
	for j := range pax {
		lcb = append(lcb, pax[j]-2*rslt.StdErr()[j])
		ucb = append(ucb, pax[j]+2*rslt.StdErr()[j])
	}

	sum.ColNames = []string{"Variable   ", "Parameter", "SE", "LCB", "UCB", "Z-score", "P-value"}
	sum.ColFmt = []Fmter{FmtStrings, FmtFloats, FmtFloats, FmtFloats, FmtFloats, FmtFloats, FmtFloats}
	sum.Cols = []interface{}{
		rslt.Names(),
		pax,
		rslt.StdErr(),
		lcb,
		ucb,
		rslt.ZScores(),
		rslt.PValues(),
	}

	return sum
}
