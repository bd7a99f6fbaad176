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
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataflix/dataflix/dataset"
	"github.com/dataflix/dataflix/model"
)

func newTestBundle(runId string) *model.FactorBundle {
	userDict := dataset.NewDict()
	for _, id := range []int64{10, 20, 30} {
		userDict.Add(id)
	}
	itemDict := dataset.NewDict()
	for _, id := range []int64{100, 200} {
		itemDict.Add(id)
	}
	return &model.FactorBundle{
		UserFactor: [][]float32{
			{1, 2},
			{3, 4},
			{5, 6},
		},
		ItemFactor: [][]float32{
			{0.1, 0.2},
			{0.3, 0.4},
		},
		UserDict:       userDict,
		ItemDict:       itemDict,
		ItemPopularity: []float32{1.5, 0.5},
		Metadata: model.Metadata{
			RunId:               runId,
			Algorithm:           "nmf",
			NComponents:         2,
			RequestedComponents: 10,
			MaxIterations:       200,
			Iterations:          42,
			Converged:           true,
			NumUsers:            3,
			NumItems:            2,
			TrainedAt:           time.Now().UTC(),
		},
		Metrics: model.Metrics{
			RMSE:                0.1,
			MAE:                 0.05,
			Sparsity:            0.5,
			ReconstructionError: 0.2,
		},
	}
}

func TestPOSIXSaveLoad(t *testing.T) {
	store, err := NewPOSIX(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.LoadLatest()
	assert.ErrorIs(t, err, ErrNoModelTrained)
	_, err = store.LatestVersion()
	assert.ErrorIs(t, err, ErrNoModelTrained)

	bundle := newTestBundle("run-1")
	version, err := store.Save(bundle)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	loaded, version, err := store.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, bundle.UserFactor, loaded.UserFactor)
	assert.Equal(t, bundle.ItemFactor, loaded.ItemFactor)
	assert.Equal(t, bundle.UserDict.Ids(), loaded.UserDict.Ids())
	assert.Equal(t, bundle.ItemDict.Ids(), loaded.ItemDict.Ids())
	assert.Equal(t, bundle.ItemPopularity, loaded.ItemPopularity)
	assert.Equal(t, bundle.Metrics, loaded.Metrics)
	assert.Equal(t, bundle.Metadata.RunId, loaded.Metadata.RunId)
	assert.True(t, bundle.Metadata.TrainedAt.Equal(loaded.Metadata.TrainedAt))
}

func TestPOSIXVersionsAreImmutable(t *testing.T) {
	store, err := NewPOSIX(t.TempDir())
	require.NoError(t, err)

	first := newTestBundle("run-1")
	_, err = store.Save(first)
	require.NoError(t, err)
	second := newTestBundle("run-2")
	second.UserFactor[0][0] = 99
	version, err := store.Save(second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	// the old version still serves its original payload
	loaded, err := store.Load(1)
	require.NoError(t, err)
	assert.Equal(t, "run-1", loaded.Metadata.RunId)
	assert.Equal(t, float32(1), loaded.UserFactor[0][0])
	// the latest pointer serves the new one
	loaded, version, err = store.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	assert.Equal(t, "run-2", loaded.Metadata.RunId)
	assert.Equal(t, float32(99), loaded.UserFactor[0][0])
}

func TestPOSIXLoadMissingVersion(t *testing.T) {
	store, err := NewPOSIX(t.TempDir())
	require.NoError(t, err)
	_, err = store.Save(newTestBundle("run-1"))
	require.NoError(t, err)
	_, err = store.Load(99)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestPOSIXListVersions(t *testing.T) {
	store, err := NewPOSIX(t.TempDir())
	require.NoError(t, err)

	infos, err := store.ListVersions()
	require.NoError(t, err)
	assert.Empty(t, infos)

	for _, runId := range []string{"run-1", "run-2", "run-3"} {
		_, err = store.Save(newTestBundle(runId))
		require.NoError(t, err)
	}
	infos, err = store.ListVersions()
	require.NoError(t, err)
	require.Len(t, infos, 3)
	for i, info := range infos {
		assert.Equal(t, int64(i+1), info.Version)
	}
	assert.Equal(t, "run-3", infos[2].Metadata.RunId)
	assert.Equal(t, float32(0.1), infos[2].Metrics.RMSE)
}

func TestPOSIXReopenResumesNumbering(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPOSIX(dir)
	require.NoError(t, err)
	_, err = store.Save(newTestBundle("run-1"))
	require.NoError(t, err)
	_, err = store.Save(newTestBundle("run-2"))
	require.NoError(t, err)

	reopened, err := NewPOSIX(dir)
	require.NoError(t, err)
	version, err := reopened.Save(newTestBundle("run-3"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)
	version, err = reopened.LatestVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)
}

func TestPOSIXLatestNeverMovesBackward(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPOSIX(dir)
	require.NoError(t, err)
	_, err = store.Save(newTestBundle("run-1"))
	require.NoError(t, err)
	_, err = store.Save(newTestBundle("run-2"))
	require.NoError(t, err)
	assert.NoError(t, store.advanceLatest(1))
	version, err := store.LatestVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestPOSIXLayout(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPOSIX(dir)
	require.NoError(t, err)
	_, err = store.Save(newTestBundle("run-1"))
	require.NoError(t, err)

	versionDir := path.Join(dir, "versions", "00000001")
	for _, name := range []string{"bundle.bin", "user_features.bin", "item_features.bin", "metadata.json"} {
		_, err := os.Stat(path.Join(versionDir, name))
		assert.NoError(t, err)
	}
	data, err := os.ReadFile(path.Join(dir, "LATEST"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))
	// no leftover temp directories
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
