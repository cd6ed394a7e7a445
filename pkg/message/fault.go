package message

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Fault is a SOAP 1.1 or 1.2 fault returned in place of a result
type Fault struct {
	Code   string
	Reason string
}

func (f *Fault) Error() string {
	if f.Code == "" {
		return fmt.Sprintf("soap fault: %s", f.Reason)
	}
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.Reason)
}

// Response is a parsed SOAP response with prefixes stripped
type Response struct {
	Root  *etree.Element
	Body  *etree.Element
	Fault *Fault
}

// Parse reads a SOAP response. Malformed XML or a missing Body is an error;
// a fault is reported in Response.Fault.
func Parse(data []byte) (*Response, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to parse SOAP response: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("SOAP response has no root element")
	}
	StripPrefixes(root)
	if root.Tag != "Envelope" {
		return nil, fmt.Errorf("unexpected SOAP root element %q", root.Tag)
	}
	body := root.SelectElement("Body")
	if body == nil {
		return nil, fmt.Errorf("SOAP Body not found")
	}
	resp := &Response{Root: root, Body: body}
	if f := body.SelectElement("Fault"); f != nil {
		resp.Fault = parseFault(f)
	}
	return resp, nil
}

func parseFault(f *etree.Element) *Fault {
	fault := &Fault{}
	// SOAP 1.2
	if v := f.FindElement("./Code/Value"); v != nil {
		fault.Code = strings.TrimSpace(v.Text())
	}
	if sub := f.FindElement("./Code/Subcode/Value"); sub != nil && strings.TrimSpace(sub.Text()) != "" {
		fault.Code += "/" + strings.TrimSpace(sub.Text())
	}
	if r := f.FindElement("./Reason/Text"); r != nil {
		fault.Reason = strings.TrimSpace(r.Text())
	}
	// SOAP 1.1
	if fault.Code == "" {
		if c := f.SelectElement("faultcode"); c != nil {
			fault.Code = strings.TrimSpace(c.Text())
		}
	}
	if fault.Reason == "" {
		if s := f.SelectElement("faultstring"); s != nil {
			fault.Reason = strings.TrimSpace(s.Text())
		}
	}
	if fault.Reason == "" {
		fault.Reason = "unspecified fault"
	}
	return fault
}

// Find returns the first element named tag anywhere in the body
func (r *Response) Find(tag string) *etree.Element {
	return r.Body.FindElement(".//" + tag)
}
