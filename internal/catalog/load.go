package catalog

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFS embed.FS

type raceFile struct {
	Race     string       `yaml:"race"`
	Seed     []string     `yaml:"seed"`
	Include  []string     `yaml:"include"`
	Entities []Definition `yaml:"entities"`
}

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	sub, err := fs.Sub(dataFS, "data")
	if err != nil {
		return nil, err
	}
	return Load(sub)
})

// Default returns the embedded StarCraft II catalog. It is loaded once per
// process.
func Default() (*Catalog, error) {
	return loadDefault()
}

// Load reads every *.yaml race file at the root of fsys. Files are applied in
// lexical order; entities are registered before any race is assembled so that
// races may include entities declared in another file.
func Load(fsys fs.FS) (*Catalog, error) {
	paths, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.New("catalog: no race files found")
	}

	files := make([]raceFile, 0, len(paths))
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, err
		}
		rf, err := decodeRaceFile(data)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", path, err)
		}
		files = append(files, rf)
	}

	b := NewBuilder()
	for _, rf := range files {
		for _, def := range rf.Entities {
			if err := b.Register(def); err != nil {
				return nil, fmt.Errorf("catalog: race %s: %w", rf.Race, err)
			}
		}
	}
	for _, rf := range files {
		members := make([]string, 0, len(rf.Entities)+len(rf.Include))
		for _, def := range rf.Entities {
			if def.DerivedOnly {
				continue
			}
			members = append(members, def.Name)
		}
		members = append(members, rf.Include...)
		if err := b.AddRace(rf.Race, rf.Seed, members); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}

	c, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return c, nil
}

func decodeRaceFile(data []byte) (raceFile, error) {
	var rf raceFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil && !errors.Is(err, io.EOF) {
		return raceFile{}, err
	}
	if rf.Race == "" {
		return raceFile{}, fmt.Errorf("%w: race is required", ErrInvalidDefinition)
	}
	return rf, nil
}
