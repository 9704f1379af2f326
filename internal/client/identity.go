package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"code.kerpass.org/ticketauth/internal/utils"
	"code.kerpass.org/ticketauth/internal/wire"
)

// Identity is the persisted local client identity.
//
// File format: two lines, the name then the assigned id hex. The password is
// never persisted, the client prompts for it each run and only keeps its hash
// in memory.
type Identity struct {
	Name string
	Id   [wire.IdSize]byte
}

// LoadIdentity reads the identity file at path.
// A missing file is not an error, it means not registered yet and decodes to
// a nil *Identity.
func LoadIdentity(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if nil != err {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, wrapError(err, "failed reading identity file %s", path)
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if "" != line {
			lines = append(lines, line)
		}
	}
	if 2 != len(lines) {
		return nil, newError("identity file %s has %d lines, expected 2", path, len(lines))
	}

	ident := &Identity{Name: lines[0]}
	var hx utils.HexBinary
	err = hx.UnmarshalText([]byte(lines[1]))
	if nil != err || wire.IdSize != len(hx) {
		return nil, newError("identity file %s carries an invalid id", path)
	}
	copy(ident.Id[:], hx)

	return ident, nil
}

// Save writes the identity file at path.
func (self Identity) Save(path string) error {
	content := fmt.Sprintf("%s\n%s\n", self.Name, utils.HexBinary(self.Id[:]))
	err := os.WriteFile(path, []byte(content), 0600)
	return wrapError(err, "failed writing identity file %s", path) // nil if err is nil
}
