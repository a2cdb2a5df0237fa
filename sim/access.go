package sim

// StepRequests returns the loads the active batch issues at reduction index kIndex.
//
// Each tile (m, n) needs A[m][kIndex] and B[kIndex][n]. Requests from all CTAs
// are pooled and then permuted by shuffler: real CTAs issue loads in no fixed
// interleaving, and a fixed "all A then all B" order would bias hit rates.
// A nil shuffler leaves emission order intact.
func StepRequests(batch Batch, kIndex int, shuffler Shuffler) []AccessRequest {
	requests := make([]AccessRequest, 0, 2*len(batch.Tiles))
	for cta, tile := range batch.Tiles {
		requests = append(requests,
			AccessRequest{Tile: ATile(tile.M, kIndex), CTA: cta},
			AccessRequest{Tile: BTile(kIndex, tile.N), CTA: cta},
		)
	}
	if shuffler != nil {
		shuffler.Shuffle(len(requests), func(i, j int) {
			requests[i], requests[j] = requests[j], requests[i]
		})
	}
	return requests
}

// ActiveTiles lists the tiles touched by a batch at kIndex, in CTA order.
type ActiveTiles struct {
	A []TileID
	B []TileID
	C []TileCoord
}

// ActiveTilesFor returns the A, B and C tiles a batch works on at kIndex.
func ActiveTilesFor(batch Batch, kIndex int) ActiveTiles {
	at := ActiveTiles{
		A: make([]TileID, 0, len(batch.Tiles)),
		B: make([]TileID, 0, len(batch.Tiles)),
		C: make([]TileCoord, 0, len(batch.Tiles)),
	}
	for _, tile := range batch.Tiles {
		at.A = append(at.A, ATile(tile.M, kIndex))
		at.B = append(at.B, BTile(kIndex, tile.N))
		at.C = append(at.C, tile)
	}
	return at
}
