// Package gamemap 生成服务器启动时的静态瓦片地图。
// 地图生成后只读，原样发送给每个连接的客户端。
package gamemap

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/lafriks/go-tiled"
)

const (
	TileSize    = 16
	TilesX      = 100
	TilesY      = 100
	DefaultTile = 16
)

// Map 瓦片网格及像素尺寸；Tiles[row][col]
type Map struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	TileSize int     `json:"tileSize"`
	TilesX   int     `json:"tilesX"`
	TilesY   int     `json:"tilesY"`
	Tiles    [][]int `json:"tiles"`
}

// Generate 固定形状的地图，所有瓦片填充 DefaultTile
func Generate() Map {
	tiles := make([][]int, TilesY)
	for row := range tiles {
		tiles[row] = make([]int, TilesX)
		for col := range tiles[row] {
			tiles[row][col] = DefaultTile
		}
	}
	return Map{
		Width:    TilesX * TileSize,
		Height:   TilesY * TileSize,
		TileSize: TileSize,
		TilesX:   TilesX,
		TilesY:   TilesY,
		Tiles:    tiles,
	}
}

// LoadTMX 从 Tiled 地图文件读取第一个瓦片层；空格子记为 0，其余为全局瓦片 id。
// 只支持正方形瓦片。
func LoadTMX(fsys fs.FS, path string) (Map, error) {
	tm, err := tiled.LoadFile(path, tiled.WithFileSystem(fsys))
	if err != nil {
		return Map{}, fmt.Errorf("load TMX %s: %w", path, err)
	}
	m, err := fromTiled(tm)
	if err != nil {
		return Map{}, fmt.Errorf("load TMX %s: %w", path, err)
	}
	return m, nil
}

func fromTiled(tm *tiled.Map) (Map, error) {
	if tm.TileWidth != tm.TileHeight {
		return Map{}, fmt.Errorf("non-square tiles %dx%d", tm.TileWidth, tm.TileHeight)
	}
	if len(tm.Layers) == 0 {
		return Map{}, errors.New("no tile layers")
	}

	layer := tm.Layers[0]
	// 分块（infinite）地图的瓦片不在 Tiles 里
	if len(layer.Tiles) < tm.Width*tm.Height {
		return Map{}, fmt.Errorf("layer %q has %d tiles, want %d", layer.Name, len(layer.Tiles), tm.Width*tm.Height)
	}
	tiles := make([][]int, tm.Height)
	for row := 0; row < tm.Height; row++ {
		tiles[row] = make([]int, tm.Width)
		for col := 0; col < tm.Width; col++ {
			tile := layer.Tiles[row*tm.Width+col]
			if tile.IsNil() {
				continue
			}
			tiles[row][col] = int(tile.Tileset.FirstGID + tile.ID)
		}
	}

	return Map{
		Width:    tm.Width * tm.TileWidth,
		Height:   tm.Height * tm.TileHeight,
		TileSize: tm.TileWidth,
		TilesX:   tm.Width,
		TilesY:   tm.Height,
		Tiles:    tiles,
	}, nil
}

// Contains 以 (x, y) 为中心、w×h 的包围盒是否完全位于 [0, Width] × [0, Height]
func (m Map) Contains(x, y, w, h float64) bool {
	hw, hh := w/2, h/2
	return x-hw >= 0 && y-hh >= 0 &&
		x+hw <= float64(m.Width) && y+hh <= float64(m.Height)
}

// Tile 越界时返回 false
func (m Map) Tile(row, col int) (int, bool) {
	if row < 0 || row >= len(m.Tiles) || col < 0 || col >= len(m.Tiles[row]) {
		return 0, false
	}
	return m.Tiles[row][col], true
}
