package keyvalues

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

var escaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\t", `\t`, `"`, `\"`)

// Encode writes the children of root in KeyValues syntax, one entry per line
// and tab indentation.
func Encode(w io.Writer, root *Node) error {
	bw := bufio.NewWriter(w)

	for _, c := range root.Children {
		encodeNode(bw, c, 0)
	}

	return errors.Wrap(bw.Flush(), "failed to write keyvalues")
}

func encodeNode(w *bufio.Writer, n *Node, depth int) {
	indent := strings.Repeat("\t", depth)

	if !n.IsList() {
		w.WriteString(indent + `"` + escaper.Replace(n.Key) + `" "` + escaper.Replace(n.Value) + "\"\n")
		return
	}

	w.WriteString(indent + `"` + escaper.Replace(n.Key) + "\"\n" + indent + "{\n")

	for _, c := range n.Children {
		encodeNode(w, c, depth+1)
	}

	w.WriteString(indent + "}\n")
}
