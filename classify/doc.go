// Package classify implements the change classifier: given a committed
// function fixed point, it sets change-classification bit
// flags (fixedpoint.ChangeFlag) describing what differs between the two
// sides, and renders them as the traditional 7-character "GIOJELC" mask.
package classify
