package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ruteri/pdo-contract-client/interfaces"
	"go.etcd.io/bbolt"
)

var (
	enclavesBucket = []byte("enclaves")
	namesBucket    = []byte("names")
)

// BoltRegistry is an interfaces.EnclaveRegistry persisted in a bbolt file.
type BoltRegistry struct {
	db *bbolt.DB
}

// OpenBoltRegistry opens (creating if needed) the database at path.
func OpenBoltRegistry(path string) (*BoltRegistry, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open enclave database %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(enclavesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(namesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize enclave database: %w", err)
	}

	return &BoltRegistry{db: db}, nil
}

func (r *BoltRegistry) Close() error {
	return r.db.Close()
}

func (r *BoltRegistry) GetByID(id interfaces.EnclaveID) (*interfaces.EnclaveRecord, error) {
	var record *interfaces.EnclaveRecord
	err := r.db.View(func(tx *bbolt.Tx) error {
		var err error
		record, err = getRecord(tx, interfaces.NewEnclaveID(string(id)))
		return err
	})
	return record, err
}

func (r *BoltRegistry) GetByName(name string) (*interfaces.EnclaveRecord, error) {
	var record *interfaces.EnclaveRecord
	err := r.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(namesBucket).Get([]byte(name))
		if id == nil {
			return fmt.Errorf("%w: name %s", interfaces.ErrEnclaveRecordNotFound, name)
		}
		var err error
		record, err = getRecord(tx, interfaces.EnclaveID(id))
		return err
	})
	return record, err
}

func (r *BoltRegistry) Add(record interfaces.EnclaveRecord) error {
	record, err := normalizeRecord(record)
	if err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return r.db.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(namesBucket)
		if owner := names.Get([]byte(record.Name)); owner != nil && interfaces.EnclaveID(owner) != record.EnclaveID {
			return fmt.Errorf("%w: %s is bound to %s", ErrNameTaken, record.Name, owner)
		}

		if previous, err := getRecord(tx, record.EnclaveID); err == nil {
			if err := names.Delete([]byte(previous.Name)); err != nil {
				return err
			}
		}

		if err := tx.Bucket(enclavesBucket).Put([]byte(record.EnclaveID), data); err != nil {
			return err
		}
		return names.Put([]byte(record.Name), []byte(record.EnclaveID))
	})
}

func (r *BoltRegistry) Remove(name string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(namesBucket)
		id := names.Get([]byte(name))
		if id == nil {
			return fmt.Errorf("%w: name %s", interfaces.ErrEnclaveRecordNotFound, name)
		}
		if err := tx.Bucket(enclavesBucket).Delete(id); err != nil {
			return err
		}
		return names.Delete([]byte(name))
	})
}

func (r *BoltRegistry) List() ([]interfaces.EnclaveRecord, error) {
	var records []interfaces.EnclaveRecord
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(enclavesBucket).ForEach(func(_, v []byte) error {
			var record interfaces.EnclaveRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortRecords(records)
	return records, nil
}

func getRecord(tx *bbolt.Tx, id interfaces.EnclaveID) (*interfaces.EnclaveRecord, error) {
	data := tx.Bucket(enclavesBucket).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: id %s", interfaces.ErrEnclaveRecordNotFound, id)
	}
	var record interfaces.EnclaveRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("corrupted enclave record %s: %w", id, err)
	}
	return &record, nil
}
