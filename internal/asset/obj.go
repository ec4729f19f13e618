package asset

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/furnivision/furnivision/internal/geom"
)

const maxOBJLine = 16 << 20

// DecodeOBJ groups vertices by the object or group statement that precedes
// them. Faces and materials are not read.
func DecodeOBJ(data []byte) ([]Part, error) {
	var parts []Part
	cur := Part{Bounds: geom.EmptyBox()}
	flush := func() {
		if !cur.Bounds.Empty() {
			parts = append(parts, cur)
		}
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64<<10), maxOBJLine)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "o", "g":
			flush()
			cur = Part{Name: strings.Join(fields[1:], " "), Bounds: geom.EmptyBox()}
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("obj line %d: vertex needs three coordinates", line)
			}
			var v mgl64.Vec3
			for i := range 3 {
				f, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("obj line %d: %w", line, err)
				}
				v[i] = f
			}
			cur.Bounds = cur.Bounds.ExpandByPoint(v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("obj: %w", err)
	}
	flush()

	if len(parts) == 0 {
		return nil, ErrNoGeometry
	}
	return parts, nil
}
