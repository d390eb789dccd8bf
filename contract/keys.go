package contract

import (
	"github.com/ruteri/pdo-contract-client/common"
	"github.com/ruteri/pdo-contract-client/cryptoutils"
)

// FileKeyStore loads client keys from key files located on a search path.
type FileKeyStore struct {
	Passphrase string
}

func (s *FileKeyStore) LoadKeys(path string, searchPath []string) (*cryptoutils.ClientKeys, error) {
	found, err := common.FindFileInPath(path, searchPath)
	if err != nil {
		return nil, err
	}
	return cryptoutils.ReadClientKeys(found, s.Passphrase)
}
