package gcode

import (
	"io"
	"strings"
)

// Parse reads every block from r.
func Parse(r io.Reader) ([]Block, error) {
	p := NewParser(r)
	var b []Block
	for {
		bl, err := p.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		b = append(b, bl)
	}
	return b, nil
}

func MustParse(data string) []Block {
	b, err := Parse(strings.NewReader(data))
	if err != nil {
		panic(err)
	}
	return b
}
