package ceremony

import (
	"fmt"

	"go.dedis.ch/onet/v3/network"
	"go.dedis.ch/protobuf"
	bbolt "go.etcd.io/bbolt"

	"github.com/sequentech/strand"
)

var (
	bucketKeys    = []byte("keyceremonies")
	bucketTallies = []byte("tallies")
)

// Archive persists ceremony snapshots so an operator can audit finished
// ceremonies after the process restarts. Snapshots are stored by
// ceremony id; saving the same id again overwrites the previous
// snapshot.
type Archive struct {
	db *bbolt.DB
}

// OpenArchive opens or creates the archive database at the given path.
func OpenArchive(path string) (*Archive, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("archive: %v", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketKeys, bucketTallies} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: %v", err)
	}
	return &Archive{db: db}, nil
}

// SaveKeys archives a key ceremony snapshot.
func (a *Archive) SaveKeys(snap *KeySnapshot) error {
	return a.save(bucketKeys, snap.ID, snap)
}

// LoadKeys retrieves an archived key ceremony snapshot by id.
func (a *Archive) LoadKeys(id string) (*KeySnapshot, error) {
	snap := &KeySnapshot{}
	if err := a.load(bucketKeys, id, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// SaveTally archives a tally ceremony snapshot.
func (a *Archive) SaveTally(snap *TallySnapshot) error {
	return a.save(bucketTallies, snap.ID, snap)
}

// LoadTally retrieves an archived tally ceremony snapshot by id.
func (a *Archive) LoadTally(id string) (*TallySnapshot, error) {
	snap := &TallySnapshot{}
	if err := a.load(bucketTallies, id, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) save(bucket []byte, id string, snap interface{}) error {
	data, err := protobuf.Encode(snap)
	if err != nil {
		return fmt.Errorf("archive: encoding %s: %v", id, err)
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(id), data)
	})
}

func (a *Archive) load(bucket []byte, id string, snap interface{}) error {
	var data []byte
	err := a.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucket).Get([]byte(id))
		if value == nil {
			return fmt.Errorf("archive: no snapshot for ceremony %s", id)
		}
		data = append(data, value...)
		return nil
	})
	if err != nil {
		return err
	}
	return protobuf.DecodeWithConstructors(data, snap,
		network.DefaultConstructors(strand.Suite))
}
