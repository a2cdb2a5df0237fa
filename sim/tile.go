// Defines the identity of input tiles and the requests CTAs issue for them.

package sim

import (
	"fmt"
	"strconv"
	"strings"
)

// Origin tells which input matrix a tile belongs to.
type Origin string

const (
	OriginA Origin = "A"
	OriginB Origin = "B"
)

// TileID identifies an input tile. A-tiles are keyed (m, k), B-tiles (k, n).
// TileID is comparable and used directly as a map key.
type TileID struct {
	Origin Origin
	Row    int
	Col    int
}

// ATile returns the id of A[m][k].
func ATile(m, k int) TileID {
	return TileID{Origin: OriginA, Row: m, Col: k}
}

// BTile returns the id of B[k][n].
func BTile(k, n int) TileID {
	return TileID{Origin: OriginB, Row: k, Col: n}
}

// String renders the id as "A-<m>-<k>" or "B-<k>-<n>".
func (id TileID) String() string {
	return fmt.Sprintf("%s-%d-%d", id.Origin, id.Row, id.Col)
}

// MarshalText lets TileID appear as a string in JSON and YAML output.
func (id TileID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses the String form.
func (id *TileID) UnmarshalText(text []byte) error {
	parsed, err := ParseTileID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseTileID parses "A-<m>-<k>" or "B-<k>-<n>".
func ParseTileID(s string) (TileID, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return TileID{}, fmt.Errorf("malformed tile id %q", s)
	}
	origin := Origin(parts[0])
	if origin != OriginA && origin != OriginB {
		return TileID{}, fmt.Errorf("tile id %q: unknown origin %q", s, parts[0])
	}
	row, err := strconv.Atoi(parts[1])
	if err != nil {
		return TileID{}, fmt.Errorf("tile id %q: bad row: %w", s, err)
	}
	col, err := strconv.Atoi(parts[2])
	if err != nil {
		return TileID{}, fmt.Errorf("tile id %q: bad col: %w", s, err)
	}
	return TileID{Origin: origin, Row: row, Col: col}, nil
}

// AccessRequest is one load issued by a CTA during a micro-step.
type AccessRequest struct {
	Tile TileID
	CTA  int // index of the issuing CTA within its batch
}

// Origin returns the matrix the requested tile belongs to.
func (r AccessRequest) Origin() Origin {
	return r.Tile.Origin
}

func (r AccessRequest) String() string {
	return fmt.Sprintf("AccessRequest: (Tile: %s, CTA: %d)", r.Tile, r.CTA)
}
