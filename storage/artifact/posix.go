// Copyright 2025 Dataflix Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package artifact

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"sync"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/dataflix/dataflix/base/log"
	"github.com/dataflix/dataflix/model"
)

const (
	versionsDir   = "versions"
	latestFile    = "LATEST"
	bundleFile    = "bundle.bin"
	userFactors   = "user_features.bin"
	itemFactors   = "item_features.bin"
	metadataFile  = "metadata.json"
	versionFormat = "%08d"
)

// registryMetadata is the structured document written next to the binary
// payload for external model-registry tooling. It maps external ids to matrix
// indices the same way the payload does.
type registryMetadata struct {
	Version  int64          `json:"version"`
	Metadata model.Metadata `json:"metadata"`
	Metrics  model.Metrics  `json:"metrics"`
	UserIds  []int64        `json:"user_ids"`
	ItemIds  []int64        `json:"item_ids"`
}

// POSIX stores bundles under a directory:
//
//	<dir>/versions/00000001/bundle.bin
//	<dir>/versions/00000001/user_features.bin
//	<dir>/versions/00000001/item_features.bin
//	<dir>/versions/00000001/metadata.json
//	<dir>/LATEST
//
// A save writes the payload into a temp directory and renames it into place,
// so readers only ever see complete versions. Version assignment is
// serialized by a mutex; payload writes run outside the lock.
type POSIX struct {
	dir  string
	mu   sync.Mutex
	next int64
}

func NewPOSIX(dir string) (*POSIX, error) {
	if err := os.MkdirAll(path.Join(dir, versionsDir), os.ModePerm); err != nil {
		return nil, errors.Trace(err)
	}
	p := &POSIX{dir: dir, next: 1}
	versions, err := p.scanVersions()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(versions) > 0 {
		p.next = versions[len(versions)-1] + 1
	}
	return p, nil
}

func (p *POSIX) versionDir(version int64) string {
	return path.Join(p.dir, versionsDir, formatVersion(version))
}

func formatVersion(version int64) string {
	return fmt.Sprintf(versionFormat, version)
}

func (p *POSIX) scanVersions() ([]int64, error) {
	entries, err := os.ReadDir(path.Join(p.dir, versionsDir))
	if err != nil {
		return nil, errors.Trace(err)
	}
	versions := make([]int64, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		version, err := strconv.ParseInt(entry.Name(), 10, 64)
		if err != nil {
			continue
		}
		versions = append(versions, version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

// Save commits the bundle atomically and moves the latest pointer.
func (p *POSIX) Save(bundle *model.FactorBundle) (int64, error) {
	p.mu.Lock()
	version := p.next
	p.next++
	p.mu.Unlock()

	temp, err := os.MkdirTemp(p.dir, "upload-*")
	if err != nil {
		return 0, errors.Trace(err)
	}
	defer func() {
		_ = os.RemoveAll(temp)
	}()
	if err := writeBundle(temp, version, bundle); err != nil {
		return 0, errors.Trace(err)
	}
	if err := os.Rename(temp, p.versionDir(version)); err != nil {
		return 0, errors.Trace(err)
	}
	if err := p.advanceLatest(version); err != nil {
		return 0, errors.Trace(err)
	}
	log.Logger().Info("saved artifact bundle",
		zap.Int64("version", version),
		zap.String("run_id", bundle.Metadata.RunId),
		zap.Float32("rmse", bundle.Metrics.RMSE))
	return version, nil
}

func writeBundle(dir string, version int64, bundle *model.FactorBundle) error {
	// serialized model object
	file, err := os.Create(path.Join(dir, bundleFile))
	if err != nil {
		return errors.Trace(err)
	}
	if err := bundle.Marshal(file); err != nil {
		_ = file.Close()
		return errors.Trace(err)
	}
	if err := file.Close(); err != nil {
		return errors.Trace(err)
	}
	// raw factor arrays for external registry tooling
	if err := writeArray(path.Join(dir, userFactors), bundle.UserFactor); err != nil {
		return errors.Trace(err)
	}
	if err := writeArray(path.Join(dir, itemFactors), bundle.ItemFactor); err != nil {
		return errors.Trace(err)
	}
	// structured metadata document
	meta := registryMetadata{
		Version:  version,
		Metadata: bundle.Metadata,
		Metrics:  bundle.Metrics,
		UserIds:  bundle.UserDict.Ids(),
		ItemIds:  bundle.ItemDict.Ids(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.WriteFile(path.Join(dir, metadataFile), data, 0644))
}

func writeArray(name string, m [][]float32) error {
	file, err := os.Create(name)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		_ = file.Close()
	}()
	for i := range m {
		if err := binary.Write(file, binary.LittleEndian, m[i]); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// advanceLatest moves the latest pointer forward, never backward, so a slow
// concurrent save cannot roll the pointer back over a newer version.
func (p *POSIX) advanceLatest(version int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	current, err := p.readLatest()
	if err != nil && !errors.Is(err, ErrNoModelTrained) {
		return errors.Trace(err)
	}
	if version <= current {
		return nil
	}
	temp, err := os.CreateTemp(p.dir, "latest-*")
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := temp.WriteString(strconv.FormatInt(version, 10)); err != nil {
		_ = temp.Close()
		return errors.Trace(err)
	}
	if err := temp.Close(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.Rename(temp.Name(), path.Join(p.dir, latestFile)))
}

func (p *POSIX) readLatest() (int64, error) {
	data, err := os.ReadFile(path.Join(p.dir, latestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Trace(ErrNoModelTrained)
		}
		return 0, errors.Trace(err)
	}
	version, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return version, nil
}

// Load reads one specific version.
func (p *POSIX) Load(version int64) (*model.FactorBundle, error) {
	file, err := os.Open(path.Join(p.versionDir(version), bundleFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Annotatef(ErrArtifactNotFound, "version %d", version)
		}
		return nil, errors.Trace(err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.Logger().Error("failed to close bundle file", zap.Error(err))
		}
	}()
	bundle := new(model.FactorBundle)
	if err := bundle.Unmarshal(file); err != nil {
		return nil, errors.Trace(err)
	}
	return bundle, nil
}

// LoadLatest reads the version the latest pointer references.
func (p *POSIX) LoadLatest() (*model.FactorBundle, int64, error) {
	version, err := p.readLatest()
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	bundle, err := p.Load(version)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	return bundle, version, nil
}

// LatestVersion resolves the latest pointer without loading the payload.
func (p *POSIX) LatestVersion() (int64, error) {
	return p.readLatest()
}

// ListVersions returns the full history, oldest first.
func (p *POSIX) ListVersions() ([]VersionInfo, error) {
	versions, err := p.scanVersions()
	if err != nil {
		return nil, errors.Trace(err)
	}
	infos := make([]VersionInfo, 0, len(versions))
	for _, version := range versions {
		data, err := os.ReadFile(path.Join(p.versionDir(version), metadataFile))
		if err != nil {
			return nil, errors.Trace(err)
		}
		var meta registryMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, errors.Trace(err)
		}
		infos = append(infos, VersionInfo{
			Version:  meta.Version,
			Metadata: meta.Metadata,
			Metrics:  meta.Metrics,
		})
	}
	return infos, nil
}
