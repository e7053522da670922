package main

import (
	"encoding/json"
	"strconv"

	"github.com/gomodule/redigo/redis"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

//ErrTile one tile that yielded no data after all retries
type ErrTile struct {
	X   int    `json:"x"`
	Y   int    `json:"y"`
	Z   int    `json:"z"`
	Res string `json:"res"`
}

//FailLog optional redis ledger of tiles that exhausted their retry budget,
//keyed per run and source so a later run can report or re-probe them.
//Disabled unless redis.enable is set; every redis error is logged and
//swallowed, the pipeline never depends on it.
type FailLog struct {
	pool    *redis.Pool
	runID   string
	enabled bool
}

func NewFailLog(runID string) *FailLog {
	if !viper.GetBool("redis.enable") {
		return &FailLog{}
	}
	addr := viper.GetString("redis.addr")
	return &FailLog{
		runID:   runID,
		enabled: true,
		pool: &redis.Pool{
			MaxIdle:     16,
			MaxActive:   32,
			IdleTimeout: 120,
			Dial: func() (redis.Conn, error) {
				return redis.Dial("tcp", addr)
			},
		},
	}
}

func (f *FailLog) key(source string) string {
	return "skip_list:" + f.runID + ":" + source
}

//Record notes one no-data tile for a source.
func (f *FailLog) Record(source string, t TileXyz, res string) {
	if !f.enabled {
		return
	}
	conn := f.pool.Get()
	defer f.closeConn(conn)
	et := ErrTile{X: t.X, Y: t.Y, Z: t.Z, Res: res}
	field := "tile_" + strconv.Itoa(t.X) + "_" + strconv.Itoa(t.Y) + "_" + strconv.Itoa(t.Z)
	val, _ := json.Marshal(et)
	if _, err := conn.Do("hset", f.key(source), field, val); err != nil {
		log.Errorf("redis save skip tile failure ~ %s", err)
	}
}

//Clear drops the ledger for a source once its run completes cleanly.
func (f *FailLog) Clear(source string) {
	if !f.enabled {
		return
	}
	conn := f.pool.Get()
	defer f.closeConn(conn)
	if _, err := conn.Do("del", f.key(source)); err != nil {
		log.Errorf("redis clear skip list failure ~ %s", err)
	}
}

func (f *FailLog) Close() {
	if !f.enabled {
		return
	}
	if err := f.pool.Close(); err != nil {
		log.Errorf("redis pool close failure ~ %s", err)
	}
}

func (f *FailLog) closeConn(conn redis.Conn) {
	if err := conn.Close(); err != nil {
		log.Errorf("redis connection close failure ~ %s", err)
	}
}
