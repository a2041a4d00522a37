package ledger

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// DefaultInfoFile is where the deploy step writes Info.
const DefaultInfoFile = "contract-info.json"

// ErrNotDeployed means there is no Info file:
// the ledger program has not been deployed yet.
var ErrNotDeployed = errors.New("contract not deployed yet")

// Info is the connection metadata for a deployed ledger program:
// its address and its interface description.
type Info struct {
	Address string          `json:"address"`
	ABI     json.RawMessage `json:"abi"`
}

// LoadInfo reads Info from a file.
// If the file does not exist,
// the error is ErrNotDeployed.
func LoadInfo(path string) (*Info, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotDeployed
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var info Info
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	if info.Address == "" {
		return nil, fmt.Errorf("%s has no address", path)
	}
	if len(info.ABI) == 0 {
		return nil, fmt.Errorf("%s has no abi", path)
	}
	return &info, nil
}
