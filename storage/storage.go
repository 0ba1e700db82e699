// Package storage persists the canonical chain and the orphan set in bbolt so
// a restarted node resumes where it stopped.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Luismorlan/pow_ledger/model"
	bolt "go.etcd.io/bbolt"
)

const DB_FILE = "chain.db"

var (
	bucketBlocks  = []byte("blocks")  // index (big-endian) -> block json
	bucketOrphans = []byte("orphans") // hash -> block json
)

// ChainStore wraps bbolt for chain persistence.
type ChainStore struct {
	db *bolt.DB
}

// Open creates dataDir if needed and opens the chain database in it.
func Open(dataDir string) (*ChainStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := bolt.Open(filepath.Join(dataDir, DB_FILE), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open chain db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketBlocks, bucketOrphans} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &ChainStore{db: db}, nil
}

func (s *ChainStore) Close() error {
	return s.db.Close()
}

func indexKey(index int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(index))
	return key
}

func putBlock(b *bolt.Bucket, key []byte, block *model.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// AppendBlock stores a block at its index.
func (s *ChainStore) AppendBlock(block *model.Block) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putBlock(tx.Bucket(bucketBlocks), indexKey(block.Index), block)
	})
}

// ReplaceChain drops the stored chain and writes chain in its place, in one
// transaction.
func (s *ChainStore) ReplaceChain(chain []model.Block) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketBlocks); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketBlocks)
		if err != nil {
			return err
		}
		for i := 0; i < len(chain); i++ {
			if err := putBlock(b, indexKey(chain[i].Index), &chain[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveOrphans overwrites the stored orphan set.
func (s *ChainStore) SaveOrphans(orphans []model.Block) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketOrphans); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketOrphans)
		if err != nil {
			return err
		}
		for i := 0; i < len(orphans); i++ {
			if err := putBlock(b, []byte(orphans[i].Hash), &orphans[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func loadBucket(tx *bolt.Tx, name []byte) ([]model.Block, error) {
	var blocks []model.Block
	err := tx.Bucket(name).ForEach(func(_, v []byte) error {
		var block model.Block
		if err := json.Unmarshal(v, &block); err != nil {
			return err
		}
		blocks = append(blocks, block)
		return nil
	})
	return blocks, err
}

// Load returns the stored chain in index order and the orphan set.
func (s *ChainStore) Load() ([]model.Block, []model.Block, error) {
	var chain, orphans []model.Block
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		if chain, err = loadBucket(tx, bucketBlocks); err != nil {
			return err
		}
		orphans, err = loadBucket(tx, bucketOrphans)
		return err
	})
	return chain, orphans, err
}
