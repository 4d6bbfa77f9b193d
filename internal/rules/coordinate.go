package rules

import (
	"fmt"
	"strings"
)

// Coordinate는 8x8 보드 위 한 칸. File 0..7 = a..h, Rank 0..7 = 1..8.
type Coordinate struct {
	File int
	Rank int
}

// Sq는 file/rank 정수로 좌표를 만든다.
func Sq(file, rank int) Coordinate { return Coordinate{File: file, Rank: rank} }

// Plus는 방향 벡터를 더한 좌표를 반환한다. 범위 검사는 하지 않는다.
func (c Coordinate) Plus(d Coordinate) Coordinate {
	return Coordinate{File: c.File + d.File, Rank: c.Rank + d.Rank}
}

func (c Coordinate) Valid() bool {
	return c.File >= 0 && c.File < 8 && c.Rank >= 0 && c.Rank < 8
}

func (c Coordinate) String() string {
	if !c.Valid() {
		return "-"
	}
	return string([]byte{byte('a' + c.File), byte('1' + c.Rank)})
}

// ParseCoordinate parses algebraic squares such as "e2".
func ParseCoordinate(s string) (Coordinate, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 {
		return Coordinate{}, fmt.Errorf("%w: %q", ErrBadCoordinate, s)
	}
	c := Coordinate{File: int(s[0] - 'a'), Rank: int(s[1] - '1')}
	if !c.Valid() {
		return Coordinate{}, fmt.Errorf("%w: %q", ErrBadCoordinate, s)
	}
	return c, nil
}
