package game

import "math/rand"

// Tile is one cell of the board. Coordinates are (x, z) to match the
// client's ground plane.
type Tile struct {
	X             int  `json:"x"`
	Z             int  `json:"z"`
	IsMine        bool `json:"isMine"`
	IsRevealed    bool `json:"isRevealed"`
	NeighborMines int  `json:"neighborMines"`
}

// Position is a bare grid coordinate.
type Position struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// ClientTile is the player-audience view of a tile. Mine and neighbor
// information is withheld until the tile is revealed.
type ClientTile struct {
	X             int   `json:"x"`
	Z             int   `json:"z"`
	IsRevealed    bool  `json:"isRevealed"`
	IsMine        *bool `json:"isMine,omitempty"`
	NeighborMines *int  `json:"neighborMines,omitempty"`
}

// RevealedTile is the record broadcast for each tile uncovered by a
// single reveal, in the order the flood uncovered them.
type RevealedTile struct {
	X             int  `json:"x"`
	Z             int  `json:"z"`
	IsMine        bool `json:"isMine"`
	NeighborMines int  `json:"neighborMines"`
}

// newGrid allocates an n by n board of hidden tiles, indexed [x][z].
func newGrid(n int) [][]Tile {
	grid := make([][]Tile, n)
	for x := range grid {
		grid[x] = make([]Tile, n)
		for z := range grid[x] {
			grid[x][z] = Tile{X: x, Z: z}
		}
	}
	return grid
}

func inBounds(n, x, z int) bool {
	return x >= 0 && x < n && z >= 0 && z < n
}

// placeMines scatters count mines outside the closed 3x3 neighborhood of
// (safeX, safeZ), clipped to the board. Placement shuffles the legal
// positions and takes a prefix, so every legal layout is equally likely.
// Returns the number actually placed, which is less than count only when
// the board cannot hold that many mines.
func placeMines(grid [][]Tile, rng *rand.Rand, count, safeX, safeZ int) int {
	n := len(grid)

	legal := make([]Position, 0, n*n)
	for x := 0; x < n; x++ {
		for z := 0; z < n; z++ {
			if x >= safeX-1 && x <= safeX+1 && z >= safeZ-1 && z <= safeZ+1 {
				continue
			}
			legal = append(legal, Position{X: x, Z: z})
		}
	}

	rng.Shuffle(len(legal), func(i, j int) {
		legal[i], legal[j] = legal[j], legal[i]
	})

	if count > len(legal) {
		count = len(legal)
	}
	for _, p := range legal[:count] {
		grid[p.X][p.Z].IsMine = true
	}
	return count
}

// computeNeighborCounts fills NeighborMines for every non-mine tile.
func computeNeighborCounts(grid [][]Tile) {
	n := len(grid)
	for x := range grid {
		for z := range grid[x] {
			if grid[x][z].IsMine {
				continue
			}
			count := 0
			for dx := -1; dx <= 1; dx++ {
				for dz := -1; dz <= 1; dz++ {
					if dx == 0 && dz == 0 {
						continue
					}
					nx, nz := x+dx, z+dz
					if inBounds(n, nx, nz) && grid[nx][nz].IsMine {
						count++
					}
				}
			}
			grid[x][z].NeighborMines = count
		}
	}
}

// floodReveal uncovers the tile at (x, z) and, when it borders no mines,
// cascades into its neighbors with an explicit worklist. Returns the
// newly revealed tiles in uncover order.
func floodReveal(grid [][]Tile, x, z int) []RevealedTile {
	n := len(grid)
	queue := []Position{{X: x, Z: z}}
	var revealed []RevealedTile

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		t := &grid[p.X][p.Z]
		if t.IsRevealed {
			continue
		}
		t.IsRevealed = true
		revealed = append(revealed, RevealedTile{
			X:             t.X,
			Z:             t.Z,
			IsMine:        t.IsMine,
			NeighborMines: t.NeighborMines,
		})

		if t.IsMine || t.NeighborMines != 0 {
			continue
		}
		for dx := -1; dx <= 1; dx++ {
			for dz := -1; dz <= 1; dz++ {
				if dx == 0 && dz == 0 {
					continue
				}
				nx, nz := p.X+dx, p.Z+dz
				if inBounds(n, nx, nz) && !grid[nx][nz].IsRevealed {
					queue = append(queue, Position{X: nx, Z: nz})
				}
			}
		}
	}
	return revealed
}
