package report

import (
	"bufio"
	"fmt"
	"io"

	"github.com/binarydiff/matcher/fixedpoint"
)

// WriteGroundtruth writes one "primary secondary primary-name secondary-name"
// line per fixed point in store, in store's canonical iteration order.
func WriteGroundtruth(w io.Writer, store *fixedpoint.Store) error {
	bw := bufio.NewWriter(w)
	for _, fp := range store.All() {
		fmt.Fprintf(bw, "%s %s %s %s\n",
			formatAddress(fp.Primary.EntryAddress()), formatAddress(fp.Secondary.EntryAddress()),
			fp.Primary.Name(), fp.Secondary.Name())
	}
	return bw.Flush()
}
