package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

//MBTileVersion mbtiles spec version written to metadata
const MBTileVersion = "1.2"

//TileStore tiled-raster database handle. Accessed from the orchestrator
//goroutine only; every batch write is one transaction, so a crash loses at
//most the current uncommitted batch.
type TileStore struct {
	db     *sql.DB
	format string
	file   string
}

//NewTileStore opens the output database. The mbtiles backend is
//destructive: an existing file at the same path is removed first. The
//mysql backend reuses whatever schema is already there.
func NewTileStore(file, format, conn string) (*TileStore, error) {
	store := &TileStore{format: format, file: file}
	switch format {
	case "mysql":
		db, err := sql.Open("mysql", conn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		store.db = db
	default:
		if err := os.MkdirAll(filepath.Dir(file), os.ModePerm); err != nil {
			return nil, err
		}
		if _, err := os.Stat(file); err == nil {
			if err := os.Remove(file); err != nil {
				return nil, err
			}
		}
		db, err := sql.Open("sqlite3", file)
		if err != nil {
			return nil, err
		}
		if err := optimizeConnection(db); err != nil {
			db.Close()
			return nil, err
		}
		store.db = db
	}
	return store, nil
}

//Init creates the tiles and metadata tables and loads initial metadata.
func (s *TileStore) Init(meta map[string]string) error {
	blob := "blob"
	if s.format == "mysql" {
		blob = "mediumblob"
	}
	_, err := s.db.Exec(fmt.Sprintf(
		"create table if not exists tiles (zoom_level integer, tile_column integer, tile_row integer, tile_data %s);", blob))
	if err != nil {
		return fmt.Errorf("create tiles table: %w", err)
	}
	if s.format == "mysql" {
		_, err = s.db.Exec("create table if not exists metadata (name varchar(50), value mediumtext);")
	} else {
		_, err = s.db.Exec("create table if not exists metadata (name text, value text);")
	}
	if err != nil {
		return fmt.Errorf("create metadata table: %w", err)
	}
	_, _ = s.db.Exec("create unique index name on metadata (name);")
	_, _ = s.db.Exec("create unique index tile_index on tiles(zoom_level, tile_column, tile_row);")
	for name, value := range meta {
		if err := s.putMeta(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *TileStore) putMeta(name, value string) error {
	var err error
	if s.format == "mysql" {
		_, err = s.db.Exec("replace into metadata (name, value) values (?, ?)", name, value)
	} else {
		_, err = s.db.Exec("insert or replace into metadata (name, value) values (?, ?)", name, value)
	}
	if err != nil {
		return fmt.Errorf("write metadata %s: %w", name, err)
	}
	return nil
}

//WriteBatch upserts one batch of tiles in a single transaction. Rows are
//flipped to the bottom-up TMS convention here and nowhere else.
func (s *TileStore) WriteBatch(tiles []Tile) error {
	if len(tiles) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	sqlStr := "insert or replace into tiles (zoom_level, tile_column, tile_row, tile_data) values (?, ?, ?, ?);"
	if s.format == "mysql" {
		sqlStr = "replace into tiles (zoom_level, tile_column, tile_row, tile_data) values (?, ?, ?, ?);"
	}
	for _, tile := range tiles {
		if _, err := tx.Exec(sqlStr, tile.Z, tile.X, flipY(tile.Z, tile.Y), tile.C); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

//Finalize writes the aggregate metadata once all zoom levels are done.
func (s *TileStore) Finalize(minZoom, maxZoom int, b LngLatBbox) error {
	if err := s.putMeta("minzoom", fmt.Sprintf("%d", minZoom)); err != nil {
		return err
	}
	if err := s.putMeta("maxzoom", fmt.Sprintf("%d", maxZoom)); err != nil {
		return err
	}
	return s.putMeta("bounds", fmt.Sprintf("%g,%g,%g,%g", b.West, b.South, b.East, b.North))
}

//Size output file size in bytes, 0 for non-file backends
func (s *TileStore) Size() int64 {
	if s.format == "mysql" {
		return 0
	}
	info, err := os.Stat(s.file)
	if err != nil {
		return 0
	}
	return info.Size()
}

func (s *TileStore) Close() error {
	return s.db.Close()
}

func optimizeConnection(db *sql.DB) error {
	_, err := db.Exec("PRAGMA synchronous=1")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA locking_mode=EXCLUSIVE")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA journal_mode=OFF")
	if err != nil {
		return err
	}
	return nil
}
