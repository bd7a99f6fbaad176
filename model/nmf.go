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
	"fmt"
	"time"

	"github.com/chewxy/math32"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/dataflix/dataflix/base"
	"github.com/dataflix/dataflix/base/log"
	"github.com/dataflix/dataflix/dataset"
)

const epsilon = 1e-9

// NMFConfig holds the hyper-parameters of the non-negative matrix
// factorization.
//
//	NComponents   - The requested number of latent factors. Clamped to the
//	                smaller matrix dimension before training. Default is 10.
//	MaxIterations - The maximum number of multiplicative update iterations.
//	                Default is 200.
//	Tolerance     - Stop early when the decrease of the reconstruction error
//	                relative to the initial error falls below this value.
//	                Default is 1e-4.
//	RandomState   - Seed of the uniform random initialization. Default is 42.
type NMFConfig struct {
	NComponents   int     `mapstructure:"n_components" toml:"n_components"`
	MaxIterations int     `mapstructure:"max_iter" toml:"max_iter"`
	Tolerance     float32 `mapstructure:"tol" toml:"tol"`
	RandomState   int64   `mapstructure:"random_state" toml:"random_state"`
}

func (c *NMFConfig) LoadDefaultIfNil() *NMFConfig {
	if c == nil {
		return &NMFConfig{
			NComponents:   10,
			MaxIterations: 200,
			Tolerance:     1e-4,
			RandomState:   42,
		}
	}
	return c
}

// NMF factorizes V into non-negative W (users x k) and H (k x items) by
// Lee-Seung multiplicative updates. Each update never increases the Frobenius
// reconstruction error.
type NMF struct {
	config *NMFConfig
	trace  []float32
}

func NewNMF(config *NMFConfig) *NMF {
	return &NMF{config: config.LoadDefaultIfNil()}
}

// ErrorTrace returns the reconstruction error after every iteration of the
// last fit.
func (nmf *NMF) ErrorTrace() []float32 {
	return nmf.trace
}

// Fit trains the factorization. Running out of iterations is not a failure:
// the best factors found are returned with Converged set false in the
// metadata.
func (nmf *NMF) Fit(_ context.Context, matrix *dataset.Matrix, config *FitConfig) (*FactorBundle, error) {
	config = config.LoadDefaultIfNil()
	if nmf.config.NComponents <= 0 || nmf.config.MaxIterations <= 0 || nmf.config.Tolerance < 0 {
		return nil, errors.Annotatef(ErrInvalidConfiguration,
			"n_components=%d max_iter=%d tol=%f", nmf.config.NComponents, nmf.config.MaxIterations, nmf.config.Tolerance)
	}
	if err := validateMatrix(matrix); err != nil {
		return nil, errors.Trace(err)
	}
	numUsers := matrix.CountUsers()
	numItems := matrix.CountItems()
	// Never allow a rank exceeding the smaller matrix dimension.
	k := nmf.config.NComponents
	if k > numUsers {
		k = numUsers
	}
	if k > numItems {
		k = numItems
	}
	log.Logger().Info("fit nmf",
		zap.Int("n_users", numUsers),
		zap.Int("n_items", numItems),
		zap.Int("n_components", k),
		zap.Int("max_iter", nmf.config.MaxIterations),
		zap.Int64("random_state", nmf.config.RandomState))

	// Initialize factors uniformly in [0, sqrt(mean(V)/k)) from a fixed seed,
	// so a fixed random state always yields the same factors.
	rng := base.NewRandomGenerator(nmf.config.RandomState)
	scale := math32.Sqrt(matrix.Mean()/float32(k)) + epsilon
	w := rng.UniformMatrix(numUsers, k, 0, scale)
	h := rng.UniformMatrix(k, numItems, 0, scale)

	var bar *progressbar.ProgressBar
	if config.Progress {
		bar = progressbar.Default(int64(nmf.config.MaxIterations), "fit nmf")
	}

	// buffers reused across iterations
	wtv := base.NewMatrix32(k, numItems)
	wtw := base.NewMatrix32(k, k)
	vht := base.NewMatrix32(numUsers, k)
	hht := base.NewMatrix32(k, k)

	nmf.trace = make([]float32, 0, nmf.config.MaxIterations)
	initialError := reconstructionError(matrix.Data, w, h)
	previousError := initialError
	converged := false
	iterations := 0
	fitStart := time.Now()
	for it := 1; it <= nmf.config.MaxIterations; it++ {
		// H <- H * (W^T V) / (W^T W H)
		transposeMul(w, matrix.Data, wtv)
		gram(w, wtw)
		for f := 0; f < k; f++ {
			for j := 0; j < numItems; j++ {
				var denominator float32
				for g := 0; g < k; g++ {
					denominator += wtw[f][g] * h[g][j]
				}
				h[f][j] *= wtv[f][j] / (denominator + epsilon)
			}
		}
		// W <- W * (V H^T) / (W H H^T)
		mulTranspose(matrix.Data, h, vht)
		gramRows(h, hht)
		for u := 0; u < numUsers; u++ {
			for f := 0; f < k; f++ {
				var denominator float32
				for g := 0; g < k; g++ {
					denominator += w[u][g] * hht[g][f]
				}
				w[u][f] *= vht[u][f] / (denominator + epsilon)
			}
		}
		currentError := reconstructionError(matrix.Data, w, h)
		nmf.trace = append(nmf.trace, currentError)
		iterations = it
		if bar != nil {
			_ = bar.Add(1)
		}
		if (config.Verbose > 0 && it%config.Verbose == 0) || it == nmf.config.MaxIterations {
			log.Logger().Debug(fmt.Sprintf("fit nmf %v/%v", it, nmf.config.MaxIterations),
				zap.Float32("reconstruction_error", currentError))
		}
		if initialError > 0 && (previousError-currentError)/initialError < nmf.config.Tolerance {
			converged = true
			break
		}
		previousError = currentError
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if hasNaN(w) || hasNaN(h) {
		return nil, errors.Annotatef(ErrNumericInstability, "NaN in factors after %d iterations", iterations)
	}

	bundle := &FactorBundle{
		UserFactor:     w,
		ItemFactor:     h,
		UserDict:       matrix.UserDict,
		ItemDict:       matrix.ItemDict,
		ItemPopularity: matrix.ItemMeans(),
		Metadata: Metadata{
			RunId:               uuid.NewString(),
			Algorithm:           "nmf",
			NComponents:         k,
			RequestedComponents: nmf.config.NComponents,
			MaxIterations:       nmf.config.MaxIterations,
			Iterations:          iterations,
			Converged:           converged,
			NumUsers:            numUsers,
			NumItems:            numItems,
			TrainedAt:           time.Now().UTC(),
		},
		Metrics: evaluate(matrix, w, h),
	}
	log.Logger().Info("fit nmf complete",
		zap.Duration("fit_time", time.Since(fitStart)),
		zap.Int("iterations", iterations),
		zap.Bool("converged", converged),
		zap.Float32("rmse", bundle.Metrics.RMSE),
		zap.Float32("mae", bundle.Metrics.MAE),
		zap.Float32("reconstruction_error", bundle.Metrics.ReconstructionError))
	return bundle, nil
}

func validateMatrix(matrix *dataset.Matrix) error {
	if matrix == nil || matrix.UserDict == nil || matrix.ItemDict == nil {
		return errors.Annotatef(ErrInvalidConfiguration, "nil matrix")
	}
	if len(matrix.Data) != matrix.CountUsers() {
		return errors.Annotatef(ErrInvalidConfiguration,
			"matrix has %d rows but user dictionary has %d entries", len(matrix.Data), matrix.CountUsers())
	}
	for _, row := range matrix.Data {
		if len(row) != matrix.CountItems() {
			return errors.Annotatef(ErrInvalidConfiguration,
				"matrix has %d columns but item dictionary has %d entries", len(row), matrix.CountItems())
		}
		for _, v := range row {
			if math32.IsNaN(v) || v < 0 {
				return errors.Annotatef(ErrNumericInstability, "matrix entry %f", v)
			}
		}
	}
	return nil
}

// transposeMul computes dst = a^T b where a is n x k and b is n x m.
func transposeMul(a, b, dst [][]float32) {
	for f := range dst {
		for j := range dst[f] {
			dst[f][j] = 0
		}
	}
	for u := range a {
		for f := range a[u] {
			for j := range b[u] {
				dst[f][j] += a[u][f] * b[u][j]
			}
		}
	}
}

// mulTranspose computes dst = a b^T where a is n x m and b is k x m.
func mulTranspose(a, b, dst [][]float32) {
	for u := range a {
		for f := range b {
			var sum float32
			for j := range a[u] {
				sum += a[u][j] * b[f][j]
			}
			dst[u][f] = sum
		}
	}
}

// gram computes dst = a^T a for a n x k matrix.
func gram(a, dst [][]float32) {
	for f := range dst {
		for g := range dst[f] {
			dst[f][g] = 0
		}
	}
	for u := range a {
		for f := range a[u] {
			for g := range a[u] {
				dst[f][g] += a[u][f] * a[u][g]
			}
		}
	}
}

// gramRows computes dst = a a^T for a k x m matrix.
func gramRows(a, dst [][]float32) {
	for f := range a {
		for g := range a {
			var sum float32
			for j := range a[f] {
				sum += a[f][j] * a[g][j]
			}
			dst[f][g] = sum
		}
	}
}

func reconstructionError(v, w, h [][]float32) float32 {
	var sum float32
	for u := range v {
		for j := range v[u] {
			var predicted float32
			for f := range h {
				predicted += w[u][f] * h[f][j]
			}
			diff := v[u][j] - predicted
			sum += diff * diff
		}
	}
	return math32.Sqrt(sum)
}

func evaluate(matrix *dataset.Matrix, w, h [][]float32) Metrics {
	var squared, absolute float32
	cells := float32(matrix.CountUsers() * matrix.CountItems())
	for u := range matrix.Data {
		for j := range matrix.Data[u] {
			var predicted float32
			for f := range h {
				predicted += w[u][f] * h[f][j]
			}
			diff := matrix.Data[u][j] - predicted
			squared += diff * diff
			absolute += math32.Abs(diff)
		}
	}
	return Metrics{
		RMSE:                math32.Sqrt(squared / cells),
		MAE:                 absolute / cells,
		Sparsity:            matrix.Sparsity(),
		ReconstructionError: math32.Sqrt(squared),
	}
}

func hasNaN(m [][]float32) bool {
	for _, row := range m {
		for _, v := range row {
			if math32.IsNaN(v) {
				return true
			}
		}
	}
	return false
}
