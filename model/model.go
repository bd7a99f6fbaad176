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
	"context"

	"github.com/juju/errors"

	"github.com/dataflix/dataflix/dataset"
)

const (
	// ErrInvalidConfiguration is returned for nonsensical hyper-parameters or
	// malformed input shapes.
	ErrInvalidConfiguration = errors.ConstError("invalid configuration")
	// ErrNumericInstability is returned when NaN or negative values surface
	// during factorization. The run aborts and nothing is persisted.
	ErrNumericInstability = errors.ConstError("numeric instability")
)

// Factorizer fits a low-rank factorization on an interaction matrix. NMF is
// the only implementation today; the interface is the extension point for
// further algorithms.
type Factorizer interface {
	// Fit trains factors on a matrix and returns a complete bundle.
	Fit(ctx context.Context, matrix *dataset.Matrix, config *FitConfig) (*FactorBundle, error)
}

type FitConfig struct {
	Verbose  int
	Progress bool
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Verbose: 10,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetProgress(progress bool) *FitConfig {
	config.Progress = progress
	return config
}

func (config *FitConfig) LoadDefaultIfNil() *FitConfig {
	if config == nil {
		return NewFitConfig()
	}
	return config
}
