// Package boltdb persists the auth server registries in a single file bolt
// database. Records are CBOR encoded, the name indexes key on BLAKE2s digests
// so that registry files do not expose names as bucket keys.
package boltdb

import (
	"context"
	"crypto"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
	_ "golang.org/x/crypto/blake2s"

	"code.kerpass.org/ticketauth/internal/credentials"
)

const (
	connectTimeout = 5 * time.Second
	hashAlgo       = crypto.BLAKE2s_256
)

// Store is a credentials.Store implementation backed by bbolt.
type Store struct {
	dbpath string
}

// New returns a Store persisting to the dbpath file.
// It errors if the database schema can not be created.
func New(dbpath string) (Store, error) {
	store := Store{dbpath: dbpath}

	db, err := bolt.Open(dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return store, wrapError(err, "failed connecting to database")
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		var err error
		for _, bucketname := range []string{"clientTbl", "clientNameIdx", "serverTbl", "serverNameIdx"} {
			_, err = tx.CreateBucketIfNotExists([]byte(bucketname))
			if nil != err {
				return wrapError(err, "failed %s bucket creation", bucketname)
			}
		}

		return nil
	})
	if nil != err {
		return store, wrapError(err, "failed db initialization")
	}

	return store, nil
}

// clientRecord is the stored form of a credentials.Client.
type clientRecord struct {
	Id           []byte `cbor:"1,keyasint"`
	Name         string `cbor:"2,keyasint"`
	PasswordHash []byte `cbor:"3,keyasint"`
	LastSeen     int64  `cbor:"4,keyasint"`
}

// serverRecord is the stored form of a credentials.MessageServer.
type serverRecord struct {
	Id   []byte `cbor:"1,keyasint"`
	Name string `cbor:"2,keyasint"`
	Key  []byte `cbor:"3,keyasint"`
	Ip   string `cbor:"4,keyasint"`
	Port uint16 `cbor:"5,keyasint"`
}

// LoadClients returns every stored client.
func (self Store) LoadClients(ctx context.Context) ([]credentials.Client, error) {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout, ReadOnly: true})
	if nil != err {
		return nil, wrapError(err, "failed connecting to database")
	}
	defer db.Close()

	var clients []credentials.Client
	err = db.View(func(tx *bolt.Tx) error {
		tbl := tx.Bucket([]byte("clientTbl"))
		if nil == tbl {
			return newError("missing clientTbl bucket")
		}
		return tbl.ForEach(func(k, v []byte) error {
			rec := clientRecord{}
			err := cbor.Unmarshal(v, &rec)
			if nil != err {
				return wrapError(err, "failed unmarshaling client record")
			}
			cli := credentials.Client{
				Name:     rec.Name,
				LastSeen: time.Unix(rec.LastSeen, 0).UTC(),
			}
			copy(cli.Id[:], rec.Id)
			copy(cli.PasswordHash[:], rec.PasswordHash)
			err = cli.Check()
			if nil != err {
				return wrapError(err, "corrupted client record")
			}
			clients = append(clients, cli)
			return nil
		})
	})

	return clients, wrapError(err, "failed db.View") // nil if err is nil
}

// AppendClient stores one client. It errors if the id or name is already present.
func (self Store) AppendClient(ctx context.Context, client credentials.Client) error {
	err := client.Check()
	if nil != err {
		return wrapError(err, "invalid client")
	}

	rec := clientRecord{
		Id:           client.Id[:],
		Name:         client.Name,
		PasswordHash: client.PasswordHash[:],
		LastSeen:     client.LastSeen.Unix(),
	}
	srzrec, err := cbor.Marshal(rec)
	if nil != err {
		return wrapError(err, "failed cbor.Marshal(client)")
	}

	return self.appendRecord("clientTbl", "clientNameIdx", client.Id[:], client.Name, srzrec)
}

// LoadServers returns every stored message server.
func (self Store) LoadServers(ctx context.Context) ([]credentials.MessageServer, error) {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout, ReadOnly: true})
	if nil != err {
		return nil, wrapError(err, "failed connecting to database")
	}
	defer db.Close()

	var servers []credentials.MessageServer
	err = db.View(func(tx *bolt.Tx) error {
		tbl := tx.Bucket([]byte("serverTbl"))
		if nil == tbl {
			return newError("missing serverTbl bucket")
		}
		return tbl.ForEach(func(k, v []byte) error {
			rec := serverRecord{}
			err := cbor.Unmarshal(v, &rec)
			if nil != err {
				return wrapError(err, "failed unmarshaling server record")
			}
			srv := credentials.MessageServer{
				Name: rec.Name,
				Ip:   rec.Ip,
				Port: rec.Port,
			}
			copy(srv.Id[:], rec.Id)
			copy(srv.Key[:], rec.Key)
			err = srv.Check()
			if nil != err {
				return wrapError(err, "corrupted server record")
			}
			servers = append(servers, srv)
			return nil
		})
	})

	return servers, wrapError(err, "failed db.View") // nil if err is nil
}

// AppendServer stores one message server. It errors if the id or name is already present.
func (self Store) AppendServer(ctx context.Context, server credentials.MessageServer) error {
	err := server.Check()
	if nil != err {
		return wrapError(err, "invalid server")
	}

	rec := serverRecord{
		Id:   server.Id[:],
		Name: server.Name,
		Key:  server.Key[:],
		Ip:   server.Ip,
		Port: server.Port,
	}
	srzrec, err := cbor.Marshal(rec)
	if nil != err {
		return wrapError(err, "failed cbor.Marshal(server)")
	}

	return self.appendRecord("serverTbl", "serverNameIdx", server.Id[:], server.Name, srzrec)
}

var _ credentials.Store = Store{}

func (self Store) appendRecord(tblName, idxName string, id []byte, name string, srzrec []byte) error {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return wrapError(err, "failed connecting to database")
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		tbl := tx.Bucket([]byte(tblName))
		idx := tx.Bucket([]byte(idxName))
		if nil == tbl || nil == idx {
			return newError("missing %s or %s bucket", tblName, idxName)
		}

		// registries are append-only, an existing id or name is a conflict
		if nil != tbl.Get(id) {
			return wrapError(credentials.ErrDuplicateName, "id already stored")
		}
		namekey := hash([]byte(name))
		if nil != idx.Get(namekey) {
			return wrapError(credentials.ErrDuplicateName, "name already stored")
		}

		err := tbl.Put(id, srzrec)
		if nil != err {
			return wrapError(err, "failed storing record in %s", tblName)
		}
		err = idx.Put(namekey, id)
		if nil != err {
			return wrapError(err, "failed updating %s", idxName)
		}

		return nil
	})

	return wrapError(err, "failed db.Update") // nil if err is nil
}

// hash returns data digest
//
// digest is calculated using the hash function referenced by the hashAlgo constant
func hash(data []byte) []byte {
	if len(data) > 0 {
		h := hashAlgo.New()
		h.Write(data)
		return h.Sum(nil)
	}

	return nil
}
