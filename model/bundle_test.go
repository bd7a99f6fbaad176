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

package model

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFactorBundleMarshal(t *testing.T) {
	nmf := NewNMF(&NMFConfig{NComponents: 4, MaxIterations: 20, Tolerance: 1e-4, RandomState: 42})
	bundle, err := nmf.Fit(context.Background(), rankOneMatrix(), NewFitConfig().SetVerbose(100))
	assert.NoError(t, err)

	buf := bytes.NewBuffer(nil)
	assert.NoError(t, bundle.Marshal(buf))
	decoded := new(FactorBundle)
	assert.NoError(t, decoded.Unmarshal(buf))

	// factor matrices and dictionaries round-trip bit identical
	assert.Equal(t, bundle.UserFactor, decoded.UserFactor)
	assert.Equal(t, bundle.ItemFactor, decoded.ItemFactor)
	assert.Equal(t, bundle.UserDict.Ids(), decoded.UserDict.Ids())
	assert.Equal(t, bundle.ItemDict.Ids(), decoded.ItemDict.Ids())
	assert.Equal(t, bundle.ItemPopularity, decoded.ItemPopularity)
	assert.Equal(t, bundle.Metrics, decoded.Metrics)
	assert.Equal(t, bundle.Metadata.RunId, decoded.Metadata.RunId)
	assert.Equal(t, bundle.Metadata.NComponents, decoded.Metadata.NComponents)
	assert.Equal(t, bundle.Metadata.Converged, decoded.Metadata.Converged)
	assert.True(t, bundle.Metadata.TrainedAt.Equal(decoded.Metadata.TrainedAt))
}

func TestFactorBundleScores(t *testing.T) {
	bundle := &FactorBundle{
		UserFactor: [][]float32{{1, 2}},
		ItemFactor: [][]float32{{1, 0, 2}, {0, 1, 1}},
		Metadata:   Metadata{NumUsers: 1, NumItems: 3, NComponents: 2},
	}
	assert.Equal(t, []float32{1, 2, 4}, bundle.Scores(0))
}
