package renderer

import (
	"image"

	"github.com/df07/go-bucket-raytracer/pkg/bucket"
)

// Tile represents a rectangular region of the image to be rendered
type Tile struct {
	ID     int             // Position in render order
	Cell   image.Point     // Bucket coordinates in the tile grid
	Bounds image.Rectangle // Pixel bounds (x0,y0,x1,y1)
}

// NewTile creates a new tile with the specified bounds
func NewTile(id int, cell image.Point, bounds image.Rectangle) *Tile {
	return &Tile{
		ID:     id,
		Cell:   cell,
		Bounds: bounds,
	}
}

// NewTileGrid creates a grid of tiles covering the entire image, listed in the
// order given by order. Edge tiles are cropped to the image.
func NewTileGrid(width, height, tileSize int, order bucket.Order) []*Tile {
	if width <= 0 || height <= 0 || tileSize <= 0 {
		return nil
	}

	// Calculate number of tiles in each dimension
	tilesX := (width + tileSize - 1) / tileSize // Ceiling division
	tilesY := (height + tileSize - 1) / tileSize

	cells := order.Sequence(tilesX, tilesY)
	tiles := make([]*Tile, 0, len(cells))
	for id, cell := range cells {
		x0 := cell.X * tileSize
		y0 := cell.Y * tileSize
		x1 := min(x0+tileSize, width) // Don't exceed image bounds
		y1 := min(y0+tileSize, height)
		tiles = append(tiles, NewTile(id, cell, image.Rect(x0, y0, x1, y1)))
	}
	return tiles
}

// TileRenderer renders one tile on behalf of a worker. Implementations must
// only write the pixels inside tile.Bounds.
type TileRenderer interface {
	RenderTile(tile *Tile, workerID int, stats *WorkerStats)
}

// TileRendererFunc adapts a function to TileRenderer
type TileRendererFunc func(tile *Tile, workerID int, stats *WorkerStats)

// RenderTile calls f
func (f TileRendererFunc) RenderTile(tile *Tile, workerID int, stats *WorkerStats) {
	f(tile, workerID, stats)
}
