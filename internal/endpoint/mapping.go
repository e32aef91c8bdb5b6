package endpoint

import (
	"fmt"
	"strings"
)

// Mapping is one proxy rule: connections accepted on Listen are relayed to
// Target.
type Mapping struct {
	Listen *Endpoint
	Target *Endpoint
}

// ParseMapping parses "LISTEN->TARGET". Each side uses the Parse grammar;
// the two sides may be of different kinds.
func ParseMapping(text string) (Mapping, error) {
	if strings.Count(text, "->") != 1 {
		return Mapping{}, &ParseError{Input: text, Err: ErrMalformedMapping}
	}
	l, t, _ := strings.Cut(text, "->")
	l, t = strings.TrimSpace(l), strings.TrimSpace(t)

	listen, err := parse(l)
	if err != nil {
		return Mapping{}, &ParseError{Input: l, Side: "listen", Err: err}
	}
	target, err := parse(t)
	if err != nil {
		return Mapping{}, &ParseError{Input: t, Side: "target", Err: err}
	}
	if (target.kind == KindTCP || target.kind == KindInterface) && target.port == 0 {
		return Mapping{}, &ParseError{Input: t, Side: "target", Err: fmt.Errorf("%w: target port must not be 0", ErrInvalidPort)}
	}

	return Mapping{Listen: listen, Target: target}, nil
}

func (m Mapping) String() string {
	return m.Listen.String() + "->" + m.Target.String()
}
