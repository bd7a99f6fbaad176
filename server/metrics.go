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

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GetRecommendSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dataflix",
		Subsystem: "server",
		Name:      "get_recommend_seconds",
	})
	TrainSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dataflix",
		Subsystem: "server",
		Name:      "train_seconds",
	})
	RecommendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dataflix",
		Subsystem: "server",
		Name:      "recommend_total",
	}, []string{"source"})
)
