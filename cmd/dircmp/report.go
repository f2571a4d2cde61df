package main

import (
	"fmt"

	"github.com/fatih/color"
)

var (
	leftOnlyColor  = color.New(color.FgRed)
	rightOnlyColor = color.New(color.FgGreen)
	changedColor   = color.New(color.FgYellow)
)

func colorEnabled(on bool) {
	color.NoColor = !on
}

// reporter renders one line per comparison outcome, the way diff tools
// report directory results.
type reporter struct{}

func (r *reporter) onlyIn(dir, name string, side int) {
	c := leftOnlyColor
	if side == 1 {
		c = rightOnlyColor
	}
	c.Printf("Only in %s: %s\n", dir, name)
}

func (r *reporter) differ(left, right string) {
	changedColor.Printf("Files %s and %s differ\n", left, right)
}

func (r *reporter) identical(left, right string) {
	fmt.Printf("Files %s and %s are identical\n", left, right)
}

func (r *reporter) commonDir(left, right string) {
	fmt.Printf("Common subdirectories: %s and %s\n", left, right)
}

func (r *reporter) typeMismatch(left, leftType, right, rightType string) {
	changedColor.Printf("File %s is a %s while file %s is a %s\n",
		left, leftType, right, rightType)
}

func (r *reporter) linksDiffer(left, right string) {
	changedColor.Printf("Symbolic links %s and %s differ\n", left, right)
}

func (r *reporter) specialDiffer(left, right string) {
	changedColor.Printf("Special files %s and %s differ\n", left, right)
}
