package sheet

import (
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/gangsheet/pkg/errors"
)

// catalogFile is the TOML layout of a template catalog:
//
//	[[sheets]]
//	id = "template_22x60"
//	name = "22x60 Roll"
//	width = 22
//	height = 60
//	price = 89.99
//	max_designs = 200
type catalogFile struct {
	Sheets []Sheet `toml:"sheets"`
}

// ReadCatalog decodes TOML templates from r and merges them over the
// built-in catalog. Entries reusing a built-in id override it.
func ReadCatalog(r io.Reader) (*Catalog, error) {
	var f catalogFile
	if _, err := toml.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "decode sheet catalog")
	}
	return NewCatalog(append(Builtin(), f.Sheets...)...)
}

// LoadCatalog reads a TOML catalog file. An empty path yields the built-in
// catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "open sheet catalog %s", path)
	}
	defer f.Close()
	return ReadCatalog(f)
}
