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
	"encoding/binary"
	"io"
	"time"

	"github.com/juju/errors"

	"github.com/dataflix/dataflix/base/encoding"
	"github.com/dataflix/dataflix/common/floats"
	"github.com/dataflix/dataflix/dataset"
)

// Metadata describes the provenance of one training run.
type Metadata struct {
	RunId               string
	Algorithm           string
	NComponents         int
	RequestedComponents int
	MaxIterations       int
	Iterations          int
	Converged           bool
	NumUsers            int
	NumItems            int
	TrainedAt           time.Time
}

// Metrics are reconstruction quality measures computed on the training matrix
// itself. There is no held-out split; treat them as a reconstruction report,
// not validation scores.
type Metrics struct {
	RMSE                float32
	MAE                 float32
	Sparsity            float32
	ReconstructionError float32
}

// FactorBundle is the complete, immutable artifact of one training run:
// the factor matrices, the frozen index dictionaries, provenance metadata,
// quality metrics, and the popularity ranking used as the cold-start
// fallback. Bundles are never mutated after creation; later runs supersede
// them with new versions.
type FactorBundle struct {
	// UserFactor is W, users x k.
	UserFactor [][]float32
	// ItemFactor is H, k x items.
	ItemFactor     [][]float32
	UserDict       *dataset.Dict
	ItemDict       *dataset.Dict
	ItemPopularity []float32
	Metadata       Metadata
	Metrics        Metrics
}

// Scores returns the predicted score of every item for a user row:
// W[userIndex] . H.
func (b *FactorBundle) Scores(userIndex int32) []float32 {
	scores := make([]float32, b.Metadata.NumItems)
	user := b.UserFactor[userIndex]
	for f, factor := range b.ItemFactor {
		floats.MulConstAdd(factor, user[f], scores)
	}
	return scores
}

// Marshal bundle into byte stream.
func (b *FactorBundle) Marshal(w io.Writer) error {
	if err := encoding.WriteString(w, b.Metadata.Algorithm); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, b.Metadata); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, b.Metrics); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, b.UserDict.Ids()); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, b.ItemDict.Ids()); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, b.UserFactor); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteMatrix(w, b.ItemFactor); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Write(w, binary.LittleEndian, b.ItemPopularity); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Unmarshal bundle from byte stream.
func (b *FactorBundle) Unmarshal(r io.Reader) error {
	algorithm, err := encoding.ReadString(r)
	if err != nil {
		return errors.Trace(err)
	}
	if err := encoding.ReadGob(r, &b.Metadata); err != nil {
		return errors.Trace(err)
	}
	if algorithm != b.Metadata.Algorithm {
		return errors.Errorf("inconsistent algorithm %v", algorithm)
	}
	if err := encoding.ReadGob(r, &b.Metrics); err != nil {
		return errors.Trace(err)
	}
	var userIds, itemIds []int64
	if err := encoding.ReadGob(r, &userIds); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.ReadGob(r, &itemIds); err != nil {
		return errors.Trace(err)
	}
	b.UserDict = dataset.NewDict()
	for _, id := range userIds {
		b.UserDict.Add(id)
	}
	b.ItemDict = dataset.NewDict()
	for _, id := range itemIds {
		b.ItemDict.Add(id)
	}
	b.UserFactor = newMatrix(b.Metadata.NumUsers, b.Metadata.NComponents)
	if err := encoding.ReadMatrix(r, b.UserFactor); err != nil {
		return errors.Trace(err)
	}
	b.ItemFactor = newMatrix(b.Metadata.NComponents, b.Metadata.NumItems)
	if err := encoding.ReadMatrix(r, b.ItemFactor); err != nil {
		return errors.Trace(err)
	}
	b.ItemPopularity = make([]float32, b.Metadata.NumItems)
	if err := binary.Read(r, binary.LittleEndian, b.ItemPopularity); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func newMatrix(row, col int) [][]float32 {
	m := make([][]float32, row)
	for i := range m {
		m[i] = make([]float32, col)
	}
	return m
}
