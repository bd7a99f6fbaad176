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

// Package trainer drives training runs: read the interaction mart, factorize
// it, and publish the resulting bundle as a new artifact version.
package trainer

import (
	"context"
	"time"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/dataflix/dataflix/base/log"
	"github.com/dataflix/dataflix/dataset"
	"github.com/dataflix/dataflix/model"
	"github.com/dataflix/dataflix/storage/artifact"
	"github.com/dataflix/dataflix/storage/data"
)

type Trainer struct {
	database data.Database
	store    artifact.Store
	config   *model.NMFConfig
}

func NewTrainer(database data.Database, store artifact.Store, config *model.NMFConfig) *Trainer {
	return &Trainer{
		database: database,
		store:    store,
		config:   config.LoadDefaultIfNil(),
	}
}

// RunOnce executes one full training run and returns the published version.
// A failed run publishes nothing, so serving keeps the previous version.
func (t *Trainer) RunOnce(ctx context.Context) (int64, *model.FactorBundle, error) {
	start := time.Now()
	interactions, err := t.database.ListInteractions(ctx)
	if err != nil {
		return 0, nil, errors.Trace(err)
	}
	matrix, err := dataset.BuildMatrix(interactions)
	if err != nil {
		return 0, nil, errors.Trace(err)
	}
	log.Logger().Info("start training",
		zap.Int("num_interactions", len(interactions)),
		zap.Int("num_users", matrix.CountUsers()),
		zap.Int("num_items", matrix.CountItems()),
		zap.Float32("sparsity", matrix.Sparsity()))
	bundle, err := model.NewNMF(t.config).Fit(ctx, matrix, model.NewFitConfig())
	if err != nil {
		return 0, nil, errors.Trace(err)
	}
	version, err := t.store.Save(bundle)
	if err != nil {
		return 0, nil, errors.Trace(err)
	}
	log.Logger().Info("complete training",
		zap.Int64("version", version),
		zap.String("run_id", bundle.Metadata.RunId),
		zap.Int("iterations", bundle.Metadata.Iterations),
		zap.Bool("converged", bundle.Metadata.Converged),
		zap.Float32("rmse", bundle.Metrics.RMSE),
		zap.Float32("mae", bundle.Metrics.MAE),
		zap.Duration("used_time", time.Since(start)))
	return version, bundle, nil
}

// Loop trains immediately and then on every tick until the context is
// cancelled. A failed run is logged and the loop keeps going.
func (t *Trainer) Loop(ctx context.Context, period time.Duration) {
	if _, _, err := t.RunOnce(ctx); err != nil {
		log.Logger().Error("failed to train model", zap.Error(err))
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := t.RunOnce(ctx); err != nil {
				log.Logger().Error("failed to train model", zap.Error(err))
			}
		}
	}
}
