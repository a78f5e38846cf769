// Package report holds the text result writers kept out of the matching
// core: a human-readable statistics/match log and a plain
// "primary secondary name name" groundtruth listing. Both take an
// io.Writer and use only bufio/fmt.
package report
