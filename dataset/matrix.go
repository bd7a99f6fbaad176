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

package dataset

import (
	"github.com/juju/errors"
)

// ErrInsufficientData is returned when there are no interactions to build a
// matrix from. Training must refuse to proceed in that case.
const ErrInsufficientData = errors.ConstError("insufficient interaction data")

// Matrix is the dense user by item interaction score matrix for one training
// run, together with the index dictionaries frozen for the run's lifetime.
type Matrix struct {
	Data     [][]float32
	UserDict *Dict
	ItemDict *Dict
}

// BuildMatrix turns interaction rows into a dense score matrix. Index
// assignment follows first-seen order, so identical input yields identical
// dictionaries and matrix contents. The source guarantees one row per
// (user, item) pair; should duplicates slip through, the last row wins.
func BuildMatrix(interactions []Interaction) (*Matrix, error) {
	if len(interactions) == 0 {
		return nil, errors.Trace(ErrInsufficientData)
	}
	m := &Matrix{
		UserDict: NewDict(),
		ItemDict: NewDict(),
	}
	for _, interaction := range interactions {
		m.UserDict.Add(interaction.UserId)
		m.ItemDict.Add(interaction.ItemId)
	}
	m.Data = make([][]float32, m.UserDict.Count())
	for i := range m.Data {
		m.Data[i] = make([]float32, m.ItemDict.Count())
	}
	for _, interaction := range interactions {
		userIndex := m.UserDict.Index(interaction.UserId)
		itemIndex := m.ItemDict.Index(interaction.ItemId)
		m.Data[userIndex][itemIndex] = interaction.Score()
	}
	return m, nil
}

func (m *Matrix) CountUsers() int {
	return int(m.UserDict.Count())
}

func (m *Matrix) CountItems() int {
	return int(m.ItemDict.Count())
}

// Sparsity returns the fraction of zero cells.
func (m *Matrix) Sparsity() float32 {
	zeros := 0
	for _, row := range m.Data {
		for _, v := range row {
			if v == 0 {
				zeros++
			}
		}
	}
	return float32(zeros) / float32(m.CountUsers()*m.CountItems())
}

// ItemMeans returns the mean interaction score of every item column. The
// trainer stores it in the bundle as the popularity ranking used for
// cold-start users.
func (m *Matrix) ItemMeans() []float32 {
	means := make([]float32, m.CountItems())
	for _, row := range m.Data {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float32(m.CountUsers())
	}
	return means
}

// Mean returns the mean over all cells.
func (m *Matrix) Mean() float32 {
	var sum float32
	for _, row := range m.Data {
		for _, v := range row {
			sum += v
		}
	}
	return sum / float32(m.CountUsers()*m.CountItems())
}
