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

package engine

import (
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/dataflix/dataflix/base/log"
	"github.com/dataflix/dataflix/model"
	"github.com/dataflix/dataflix/storage/artifact"
)

const ErrInvalidArgument = errors.ConstError("invalid argument")

const (
	// SourceModel marks scores computed from the factor matrices.
	SourceModel = "model"
	// SourcePopularity marks the cold-start fallback ranking.
	SourcePopularity = "popularity"
)

// Query asks for the top N items for one user. Version zero means the latest
// trained version. Items in ExcludeWatched never appear in the result.
type Query struct {
	UserId         int64
	N              int
	Version        int64
	ExcludeWatched mapset.Set[int64]
}

// ScoredItem is one recommended item. Rank is 1-based within the result.
type ScoredItem struct {
	ItemId int64   `json:"item_id"`
	Score  float32 `json:"score"`
	Rank   int     `json:"rank"`
}

// Result carries the recommendation list plus the version and scoring source
// that produced it.
type Result struct {
	Version int64        `json:"version"`
	Source  string       `json:"source"`
	Items   []ScoredItem `json:"items"`
}

// Recommender serves recommendations from trained bundles. Bundles are
// immutable, so loaded versions are cached indefinitely; the latest pointer
// is re-resolved on every query so a fresh training run takes effect without
// a restart.
type Recommender struct {
	store   artifact.Store
	mu      sync.RWMutex
	bundles map[int64]*model.FactorBundle
}

func NewRecommender(store artifact.Store) *Recommender {
	return &Recommender{
		store:   store,
		bundles: make(map[int64]*model.FactorBundle),
	}
}

func (r *Recommender) bundle(version int64) (*model.FactorBundle, error) {
	r.mu.RLock()
	bundle, ok := r.bundles[version]
	r.mu.RUnlock()
	if ok {
		return bundle, nil
	}
	bundle, err := r.store.Load(version)
	if err != nil {
		return nil, errors.Trace(err)
	}
	r.mu.Lock()
	r.bundles[version] = bundle
	r.mu.Unlock()
	log.Logger().Info("loaded model bundle",
		zap.Int64("version", version),
		zap.Int("num_users", bundle.Metadata.NumUsers),
		zap.Int("num_items", bundle.Metadata.NumItems))
	return bundle, nil
}

// Recommend returns the top N unwatched items for a user. Users absent from
// the training matrix fall back to the popularity ranking.
func (r *Recommender) Recommend(query Query) (*Result, error) {
	if query.N <= 0 {
		return nil, errors.Annotatef(ErrInvalidArgument, "n must be positive, got %d", query.N)
	}
	version := query.Version
	if version == 0 {
		var err error
		if version, err = r.store.LatestVersion(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	bundle, err := r.bundle(version)
	if err != nil {
		return nil, errors.Trace(err)
	}
	result := &Result{Version: version}
	var scores []float32
	if userIndex := bundle.UserDict.Index(query.UserId); userIndex >= 0 {
		result.Source = SourceModel
		scores = bundle.Scores(userIndex)
	} else {
		result.Source = SourcePopularity
		scores = bundle.ItemPopularity
	}
	result.Items = topN(bundle, scores, query.N, query.ExcludeWatched)
	return result, nil
}

// topN ranks items by score descending, breaking ties by ascending item id.
func topN(bundle *model.FactorBundle, scores []float32, n int, exclude mapset.Set[int64]) []ScoredItem {
	items := make([]ScoredItem, 0, len(scores))
	for index, score := range scores {
		itemId, ok := bundle.ItemDict.Id(int32(index))
		if !ok {
			continue
		}
		if exclude != nil && exclude.Contains(itemId) {
			continue
		}
		items = append(items, ScoredItem{ItemId: itemId, Score: score})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ItemId < items[j].ItemId
	})
	if len(items) > n {
		items = items[:n]
	}
	for i := range items {
		items[i].Rank = i + 1
	}
	return items
}
