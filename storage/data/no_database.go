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

package data

import (
	"context"

	"github.com/dataflix/dataflix/dataset"
)

// NoDatabase stands in when no interaction database is configured. Every
// operation fails with ErrNoDatabase.
type NoDatabase struct{}

func (NoDatabase) Init() error {
	return ErrNoDatabase
}

func (NoDatabase) Ping() error {
	return ErrNoDatabase
}

func (NoDatabase) Close() error {
	return ErrNoDatabase
}

func (NoDatabase) Purge() error {
	return ErrNoDatabase
}

func (NoDatabase) BatchInsertInteractions(_ context.Context, _ []dataset.Interaction) error {
	return ErrNoDatabase
}

func (NoDatabase) CountInteractions(_ context.Context) (int64, error) {
	return 0, ErrNoDatabase
}

func (NoDatabase) ListInteractions(_ context.Context) ([]dataset.Interaction, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) ListWatched(_ context.Context, _ int64) ([]int64, error) {
	return nil, ErrNoDatabase
}
