package message

import (
	"github.com/beevik/etree"
)

// StripPrefixes removes namespace prefixes from el and its descendants and
// drops prefixed namespace declarations, so that responses from services
// that qualify elements differently can be read with plain tag names.
// Default namespace declarations are kept.
func StripPrefixes(el *etree.Element) {
	el.Space = ""
	kept := el.Attr[:0]
	for _, a := range el.Attr {
		if a.Space == "xmlns" {
			continue
		}
		if a.Space != "" && a.Space != "xml" {
			a.Space = ""
		}
		kept = append(kept, a)
	}
	el.Attr = kept
	for _, child := range el.ChildElements() {
		StripPrefixes(child)
	}
}
