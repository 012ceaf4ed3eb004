package commands

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/opd-ai/securestream/crypto"
)

const contactFileVersion = 1

// contactLength is version | alice | epoch (unix seconds) | master secret.
const contactLength = 1 + 1 + 8 + crypto.SecretKeyLength

var errBadContactFile = errors.New("malformed contact file")

// contact is what both sides of a pairing keep about each other.
type contact struct {
	alice  bool
	epoch  time.Time
	master *crypto.SecretKey
}

func (c *contact) marshal() []byte {
	out := make([]byte, 0, contactLength)
	out = append(out, contactFileVersion)
	if c.alice {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = binary.BigEndian.AppendUint64(out, uint64(c.epoch.Unix()))
	master := c.master.Bytes()
	out = append(out, master...)
	crypto.ZeroBytes(master)
	return out
}

func unmarshalContact(raw []byte) (*contact, error) {
	if len(raw) != contactLength || raw[0] != contactFileVersion || raw[1] > 1 {
		return nil, errBadContactFile
	}
	master, err := crypto.NewSecretKey(raw[10:])
	if err != nil {
		return nil, err
	}
	return &contact{
		alice:  raw[1] == 1,
		epoch:  time.Unix(int64(binary.BigEndian.Uint64(raw[2:10])), 0).UTC(),
		master: master,
	}, nil
}

func saveContact(component *crypto.Component, path, password string, c *contact) error {
	raw := c.marshal()
	defer crypto.ZeroBytes(raw)
	blob, err := component.EncryptWithPassword(raw, password)
	if err != nil {
		return err
	}
	return writeSecretFile(path, blob)
}

func loadContact(component *crypto.Component, path, password string) (*contact, error) {
	blob, err := readFile(path)
	if err != nil {
		return nil, err
	}
	raw, ok := component.DecryptWithPassword(blob, password)
	if !ok {
		return nil, errWrongPassword
	}
	defer crypto.ZeroBytes(raw)
	return unmarshalContact(raw)
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
