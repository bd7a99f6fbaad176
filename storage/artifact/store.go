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
	"github.com/juju/errors"

	"github.com/dataflix/dataflix/model"
)

const (
	// ErrArtifactNotFound is returned when a version does not exist.
	ErrArtifactNotFound = errors.ConstError("artifact not found")
	// ErrNoModelTrained is returned when the store has no version at all.
	// The serving layer treats it as "not ready yet", not as a crash.
	ErrNoModelTrained = errors.ConstError("no model trained")
)

// VersionInfo is the registry-facing description of one stored bundle.
type VersionInfo struct {
	Version  int64          `json:"version"`
	Metadata model.Metadata `json:"metadata"`
	Metrics  model.Metrics  `json:"metrics"`
}

// Store persists factor bundles as immutable versions with a movable latest
// pointer. Saves are atomic: a reader never observes a partially written
// bundle, and the latest pointer moves only after the payload is durable.
type Store interface {
	// Save commits a bundle under a fresh monotonically increasing version.
	Save(bundle *model.FactorBundle) (int64, error)
	// Load reads one specific version.
	Load(version int64) (*model.FactorBundle, error)
	// LoadLatest reads the version the latest pointer references.
	LoadLatest() (*model.FactorBundle, int64, error)
	// LatestVersion resolves the latest pointer without loading the payload.
	LatestVersion() (int64, error)
	// ListVersions returns the full history, oldest first.
	ListVersions() ([]VersionInfo, error)
}
